package metrics

import (
	"fmt"
	"time"
)

// Series column names.
const (
	SeriesLatency = "latency_ms"
	SeriesDevice  = "device_ms"
)

// StageSeriesName is the Series column holding stage j.
func StageSeriesName(j int) string {
	return fmt.Sprintf("stage_%d_ms", j)
}

// DurationStats aggregates a set of durations.
type DurationStats struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"-"`
	Max   time.Duration `json:"-"`
	Mean  time.Duration `json:"-"`
	P50   time.Duration `json:"-"`
	P90   time.Duration `json:"-"`
	P99   time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms,omitempty"`
	P90Ms  float64 `json:"p90_ms,omitempty"`
	P99Ms  float64 `json:"p99_ms,omitempty"`
}

// StageStats aggregates one positional stage across requests.
type StageStats struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	DurationStats
}

// Summary is the reduced outcome of a run.
type Summary struct {
	Expected   int            `json:"expected"`
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Latency    DurationStats  `json:"latency"`
	Span       time.Duration  `json:"-"`
	SpanMs     float64        `json:"span_ms"`
	Throughput float64        `json:"throughput_per_sec"`
	Stages     []StageStats   `json:"stages,omitempty"`
	Envelope   time.Duration  `json:"-"`
	EnvelopeMs float64        `json:"stage_envelope_ms,omitempty"`
	Device     *DurationStats `json:"device,omitempty"`
	Errors     map[string]int `json:"errors,omitempty"`
	Workers    []WorkerBucket `json:"workers,omitempty"`
}

// Empty reports whether nothing was recorded.
func (s Summary) Empty() bool { return s.Total == 0 }

func summarize(records []record, expected int, profile bool) Summary {
	sum := Summary{Expected: expected}

	var (
		latencies  []time.Duration
		device     []time.Duration
		stageVals  [][]time.Duration
		stageNames []string
		first      time.Time
		last       time.Time
		envStart   time.Time
		envEnd     time.Time
	)
	workers := map[string]map[int]int{}

	for _, r := range records {
		if !r.set {
			continue
		}
		sum.Total++
		if !r.start.IsZero() && (first.IsZero() || r.start.Before(first)) {
			first = r.start
		}
		if r.end.After(last) {
			last = r.end
		}

		if r.err != nil {
			sum.Failed++
			if sum.Errors == nil {
				sum.Errors = make(map[string]int)
			}
			sum.Errors[ErrorLabel(r.err)]++
			continue
		}
		sum.Completed++
		latencies = append(latencies, r.end.Sub(r.start))

		rep := r.report
		if rep == nil {
			continue
		}
		wk := rep.WorkerID.String()
		if workers[wk] == nil {
			workers[wk] = map[int]int{}
		}
		workers[wk][rep.QueueID]++
		if rep.HasDeviceTime() {
			device = append(device, rep.DeviceTime)
		}
		if !profile {
			continue
		}
		for j, st := range rep.Stages {
			for len(stageVals) <= j {
				stageVals = append(stageVals, nil)
				stageNames = append(stageNames, st.Name)
			}
			stageVals[j] = append(stageVals[j], st.Duration())
			if !st.Start.IsZero() && (envStart.IsZero() || st.Start.Before(envStart)) {
				envStart = st.Start
			}
			if st.End.After(envEnd) {
				envEnd = st.End
			}
		}
	}

	sum.Latency = durationStats(latencies, true)
	if !first.IsZero() && last.After(first) {
		sum.Span = last.Sub(first)
		sum.SpanMs = toMs(sum.Span)
		sum.Throughput = float64(sum.Completed) / sum.Span.Seconds()
	}
	if len(device) > 0 {
		d := durationStats(device, false)
		sum.Device = &d
	}
	for j, vals := range stageVals {
		sum.Stages = append(sum.Stages, StageStats{
			Index:         j,
			Name:          stageNames[j],
			DurationStats: durationStats(vals, false),
		})
	}
	if !envStart.IsZero() && envEnd.After(envStart) {
		sum.Envelope = envEnd.Sub(envStart)
		sum.EnvelopeMs = toMs(sum.Envelope)
	}
	sum.Workers = FlattenWorkerBuckets(workers)
	return sum
}

// durationStats computes min/max/mean and, when asked, histogram
// percentiles. An empty input gives the zero value.
func durationStats(values []time.Duration, percentiles bool) DurationStats {
	st := DurationStats{Count: len(values)}
	if len(values) == 0 {
		return st
	}

	st.Min, st.Max = values[0], values[0]
	var total time.Duration
	for _, v := range values {
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		total += v
	}
	st.Mean = total / time.Duration(len(values))

	if percentiles {
		h := newLatencyHistogram()
		for _, v := range values {
			recordLatency(h, v)
		}
		st.P50 = time.Duration(h.ValueAtQuantile(50)) * time.Microsecond
		st.P90 = time.Duration(h.ValueAtQuantile(90)) * time.Microsecond
		st.P99 = time.Duration(h.ValueAtQuantile(99)) * time.Microsecond
	}

	st.MinMs = toMs(st.Min)
	st.MaxMs = toMs(st.Max)
	st.MeanMs = toMs(st.Mean)
	st.P50Ms = toMs(st.P50)
	st.P90Ms = toMs(st.P90)
	st.P99Ms = toMs(st.P99)
	return st
}

package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/poolbench/internal/worker"
)

// recentWindow is how many of the latest latencies a Snapshot carries.
const recentWindow = 64

// Options configure a Collector.
type Options struct {
	Requests int  // planned request count; series are at least this long
	Profile  bool // include per-stage statistics
}

type record struct {
	set    bool
	start  time.Time
	end    time.Time
	report *worker.Report
	err    error
}

// Collector records per-request outcomes. It is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	profile  bool
	expected int
	records  []record

	// Running counters backing Snapshot.
	completed int
	failed    int
	sumLat    time.Duration
	recent    []time.Duration
	live      *hdrhistogram.Histogram
}

func NewCollector(opts Options) *Collector {
	n := opts.Requests
	if n < 0 {
		n = 0
	}
	return &Collector{
		profile:  opts.Profile,
		expected: n,
		records:  make([]record, n),
		recent:   make([]time.Duration, 0, recentWindow),
		live:     newLatencyHistogram(),
	}
}

// Track latencies from 1µs up to 60s with 3 significant figures.
func newLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 60_000_000, 3)
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// Record stores the outcome of request id. report must be nil when err is
// set. Recording an id twice replaces the earlier record.
func (c *Collector) Record(id int, start, end time.Time, report *worker.Report, err error) {
	if id < 0 {
		return
	}
	if err != nil {
		report = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id >= len(c.records) {
		c.records = append(c.records, record{})
	}
	c.records[id] = record{set: true, start: start, end: end, report: report, err: err}

	if err != nil {
		c.failed++
		return
	}
	latency := end.Sub(start)
	c.completed++
	c.sumLat += latency
	recordLatency(c.live, latency)
	if len(c.recent) == recentWindow {
		copy(c.recent, c.recent[1:])
		c.recent = c.recent[:recentWindow-1]
	}
	c.recent = append(c.recent, latency)
}

// Snapshot is a point-in-time view of a run in progress.
type Snapshot struct {
	Expected    int
	Completed   int
	Failed      int
	MeanLatency time.Duration
	P99Latency  time.Duration
	Recent      []time.Duration // latest latencies, oldest first
}

// Done is the number of requests that reached a terminal state.
func (s Snapshot) Done() int { return s.Completed + s.Failed }

// Snapshot returns live counters without walking the records.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Expected:  c.expected,
		Completed: c.completed,
		Failed:    c.failed,
		Recent:    append([]time.Duration(nil), c.recent...),
	}
	if c.completed > 0 {
		snap.MeanLatency = c.sumLat / time.Duration(c.completed)
		snap.P99Latency = time.Duration(c.live.ValueAtQuantile(99)) * time.Microsecond
	}
	return snap
}

// Summarize reduces every record to a Summary. It does not modify the
// collector.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	records := make([]record, len(c.records))
	copy(records, c.records)
	expected, profile := c.expected, c.profile
	c.mu.Unlock()

	return summarize(records, expected, profile)
}

// Series returns the per-request columns keyed by statistic name. Every
// column has one entry per request id; absent values are NaN.
func (c *Collector) Series() map[string][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.records)
	latency := nanSeries(n)
	device := nanSeries(n)
	var stages [][]float64

	for i, r := range c.records {
		if !r.set || r.err != nil {
			continue
		}
		latency[i] = toMs(r.end.Sub(r.start))
		if r.report == nil {
			continue
		}
		if r.report.HasDeviceTime() {
			device[i] = toMs(r.report.DeviceTime)
		}
		if !c.profile {
			continue
		}
		for j, st := range r.report.Stages {
			for len(stages) <= j {
				stages = append(stages, nanSeries(n))
			}
			stages[j][i] = toMs(st.Duration())
		}
	}

	out := map[string][]float64{
		SeriesLatency: latency,
		SeriesDevice:  device,
	}
	for j, col := range stages {
		out[StageSeriesName(j)] = col
	}
	return out
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

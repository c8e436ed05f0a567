package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/threshold"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, info RunInfo, sum metrics.Summary) {
	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	fmt.Fprintf(w, "Mode:              %s (pool %d, queues %s)\n", info.Mode, info.PoolSize, info.QueueMode())
	fmt.Fprintf(w, "Target Rate:       %.2f req/s (%s arrivals)\n", info.Rate, info.Arrival)
	fmt.Fprintf(w, "Total Requests:    %d\n", sum.Total)
	fmt.Fprintf(w, "Completed:         %d\n", sum.Completed)
	fmt.Fprintf(w, "Failed:            %d\n", sum.Failed)
	fmt.Fprintf(w, "Wall Span:         %s\n", sum.Span)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", sum.Throughput)

	if sum.Empty() {
		fmt.Fprintln(w, "\nNo requests recorded.")
		return
	}

	fmt.Fprintln(w, "\nLatency:")
	writeDurationStats(w, sum.Latency, true)

	if sum.Device != nil {
		fmt.Fprintln(w, "\nDevice Time:")
		writeDurationStats(w, *sum.Device, false)
	}

	if len(sum.Stages) > 0 {
		fmt.Fprintln(w, "\nStages:")
		for _, st := range sum.Stages {
			fmt.Fprintf(w, "  [%d] %-12s min=%s max=%s mean=%s\n", st.Index, st.Name, st.Min, st.Max, st.Mean)
		}
		fmt.Fprintf(w, "  Envelope:        %s\n", sum.Envelope)
	}

	if len(sum.Errors) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		labels := make([]string, 0, len(sum.Errors))
		for label := range sum.Errors {
			labels = append(labels, label)
		}
		sort.Slice(labels, func(i, j int) bool {
			if sum.Errors[labels[i]] == sum.Errors[labels[j]] {
				return labels[i] < labels[j]
			}
			return sum.Errors[labels[i]] > sum.Errors[labels[j]]
		})
		for _, label := range labels {
			fmt.Fprintf(w, "  %s: %d\n", label, sum.Errors[label])
		}
	}

	if len(sum.Workers) > 0 {
		fmt.Fprintln(w, "\nWork Distribution:")
		for _, row := range sum.Workers {
			share := 0.0
			if sum.Completed > 0 {
				share = float64(row.Count) / float64(sum.Completed) * 100
			}
			fmt.Fprintf(w, "  - %s queue %d: %d (%.1f%%)\n", row.Worker, row.Queue, row.Count, share)
		}
	}
}

func writeDurationStats(w io.Writer, st metrics.DurationStats, percentiles bool) {
	fmt.Fprintf(w, "  Min:             %s\n", st.Min)
	fmt.Fprintf(w, "  Max:             %s\n", st.Max)
	fmt.Fprintf(w, "  Mean:            %s\n", st.Mean)
	if !percentiles {
		return
	}
	fmt.Fprintf(w, "  P50:             %s\n", st.P50)
	fmt.Fprintf(w, "  P90:             %s\n", st.P90)
	fmt.Fprintf(w, "  P99:             %s\n", st.P99)
}

// PrintThresholdResults lists every evaluated threshold.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}
	fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", passed, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

type jsonReport struct {
	Run        RunInfo               `json:"run"`
	Summary    metrics.Summary       `json:"summary"`
	Thresholds []ThresholdResultJSON `json:"thresholds,omitempty"`
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, info RunInfo, sum metrics.Summary, results []threshold.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		Run:        info,
		Summary:    sum,
		Thresholds: thresholdRows(results),
	})
}

func formatMs(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d)/float64(time.Millisecond))
}

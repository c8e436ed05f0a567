package output

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/torosent/poolbench/internal/metrics"
	"github.com/torosent/poolbench/internal/threshold"
)

func TestGenerateHTMLReport(t *testing.T) {
	series := map[string][]float64{
		metrics.SeriesLatency:      {3.5, math.NaN(), 4.25},
		metrics.SeriesDevice:       {2, math.NaN(), 3},
		metrics.StageSeriesName(0): {1, math.NaN(), 1},
		metrics.StageSeriesName(1): {1, math.NaN(), 2},
	}
	ths, err := threshold.ParseMultiple([]string{"latency:p99 < 50", "failed:count == 0"})
	if err != nil {
		t.Fatal(err)
	}
	results := threshold.NewEvaluator(ths).Evaluate(sampleSummary())

	var buf bytes.Buffer
	if err := GenerateHTMLReport(&buf, sampleRun(), sampleSummary(), series, results); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"<!DOCTYPE html>",
		"Pool Benchmark Report",
		"threaded mode",
		"Thresholds (1/2 Passed)",
		"compute",
		"worker-1",
		"Latency by Request",
		"latency_ms",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "NaN") {
		t.Error("NaN must not leak into the embedded JSON")
	}
}

func TestGenerateHTMLReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := GenerateHTMLReport(&buf, sampleRun(), metrics.Summary{}, map[string][]float64{}, nil); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "latency-chart\" class") {
		t.Error("empty run should not render the chart")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Error("no thresholds section expected")
	}
}

func TestNullable(t *testing.T) {
	got := nullable([]float64{1, math.NaN()})
	if got[0] == nil || *got[0] != 1 {
		t.Errorf("got[0] = %v", got[0])
	}
	if got[1] != nil {
		t.Errorf("got[1] = %v, want nil", *got[1])
	}
}

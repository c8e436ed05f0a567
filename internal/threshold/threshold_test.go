package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/poolbench/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "latency percentile",
			input: "latency:p99 < 50",
			want: Threshold{
				Metric:    "latency",
				Aggregate: "p99",
				Operator:  "<",
				Value:     50,
				Raw:       "latency:p99 < 50",
			},
		},
		{
			name:  "failure rate without spaces",
			input: "failed:rate<0.01",
			want: Threshold{
				Metric:    "failed",
				Aggregate: "rate",
				Operator:  "<",
				Value:     0.01,
				Raw:       "failed:rate<0.01",
			},
		},
		{
			name:  "stage envelope",
			input: "  stage_envelope:max <= 900 ",
			want: Threshold{
				Metric:    "stage_envelope",
				Aggregate: "max",
				Operator:  "<=",
				Value:     900,
				Raw:       "stage_envelope:max <= 900",
			},
		},
		{name: "empty", input: "", wantError: true},
		{name: "missing aggregate", input: "latency < 5", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "aggregate not valid for metric", input: "failed:p99 < 1", wantError: true},
		{name: "envelope percentile", input: "stage_envelope:p50 < 1", wantError: true},
		{name: "bad operator", input: "latency:max != 5", wantError: true},
		{name: "bad value", input: "latency:max < 1.2.3", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	got, err := ParseMultiple(nil)
	if err != nil || got != nil {
		t.Fatalf("ParseMultiple(nil) = %v, %v", got, err)
	}

	got, err = ParseMultiple([]string{"latency:avg < 10", "requests:count == 100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 thresholds, got %d", len(got))
	}

	_, err = ParseMultiple([]string{"latency:avg < 10", "bogus", "nope:x > 1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("error should list every bad entry: %v", err)
	}
}

func sampleSummary() metrics.Summary {
	return metrics.Summary{
		Expected:   100,
		Total:      100,
		Completed:  98,
		Failed:     2,
		Throughput: 49.5,
		Latency: metrics.DurationStats{
			Count:  98,
			Min:    2 * time.Millisecond,
			MinMs:  2,
			MaxMs:  40,
			MeanMs: 12.5,
			P50Ms:  11,
			P90Ms:  20,
			P99Ms:  35,
		},
		Stages:     []metrics.StageStats{{Index: 0, Name: "compute"}},
		EnvelopeMs: 850,
		Device:     &metrics.DurationStats{Count: 98, MinMs: 1, MaxMs: 9, MeanMs: 4},
	}
}

func TestEvaluate(t *testing.T) {
	sum := sampleSummary()
	tests := []struct {
		raw    string
		actual float64
		pass   bool
	}{
		{raw: "latency:p99 < 50", actual: 35, pass: true},
		{raw: "latency:p50 < 10", actual: 11, pass: false},
		{raw: "latency:p90 <= 20", actual: 20, pass: true},
		{raw: "latency:avg < 12.5", actual: 12.5, pass: false},
		{raw: "latency:min >= 2", actual: 2, pass: true},
		{raw: "latency:max > 40", actual: 40, pass: false},
		{raw: "device:avg < 5", actual: 4, pass: true},
		{raw: "stage_envelope:max < 900", actual: 850, pass: true},
		{raw: "failed:count == 2", actual: 2, pass: true},
		{raw: "failed:rate < 0.01", actual: 0.02, pass: false},
		{raw: "requests:count == 100", actual: 100, pass: true},
		{raw: "requests:rate > 50", actual: 49.5, pass: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			th, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			results := NewEvaluator([]Threshold{th}).Evaluate(sum)
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			r := results[0]
			if r.Actual != tt.actual {
				t.Errorf("Actual = %v, want %v", r.Actual, tt.actual)
			}
			if r.Pass != tt.pass {
				t.Errorf("Pass = %v, want %v (%s)", r.Pass, tt.pass, r.Message)
			}
		})
	}
}

func TestEvaluateMissingData(t *testing.T) {
	sum := metrics.Summary{}
	ths, err := ParseMultiple([]string{"device:max < 1", "stage_envelope:max < 1", "failed:rate < 1"})
	if err != nil {
		t.Fatal(err)
	}
	results := NewEvaluator(ths).Evaluate(sum)
	if results[0].Pass || !strings.HasPrefix(results[0].Message, "error:") {
		t.Errorf("device threshold without device data should fail: %+v", results[0])
	}
	if results[1].Pass {
		t.Errorf("envelope threshold without stages should fail: %+v", results[1])
	}
	if !results[2].Pass {
		t.Errorf("failure rate over an empty run is 0: %+v", results[2])
	}
	if AllPassed(results) {
		t.Error("AllPassed should be false")
	}
}

func TestEvaluateNoThresholds(t *testing.T) {
	if got := NewEvaluator(nil).Evaluate(sampleSummary()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) should be true")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual   float64
		op       string
		expected float64
		want     bool
	}{
		{1, "<", 2, true},
		{2, "<", 2, false},
		{2, "<=", 2, true},
		{0.1 + 0.2, "<=", 0.3, true},
		{3, ">", 2, true},
		{2, ">=", 2, true},
		{0.3, "==", 0.1 + 0.2, true},
		{1, "!=", 2, false},
	}
	for _, tt := range tests {
		if got := compareValues(tt.actual, tt.op, tt.expected); got != tt.want {
			t.Errorf("compareValues(%v %s %v) = %v, want %v", tt.actual, tt.op, tt.expected, got, tt.want)
		}
	}
}

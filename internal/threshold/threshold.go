package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/poolbench/internal/metrics"
)

// Supported metric names.
const (
	MetricLatency       = "latency"
	MetricDevice        = "device"
	MetricStageEnvelope = "stage_envelope"
	MetricFailed        = "failed"
	MetricRequests      = "requests"
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "latency", "failed"
	Aggregate string  // e.g., "p99", "avg", "max", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a run summary.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided summary.
func (e *Evaluator) Evaluate(sum metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, sum))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, sum metrics.Summary) Result {
	actual, err := extractMetricValue(t, sum)
	if err != nil {
		return Result{
			Threshold: t,
			Actual:    0,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "latency:p99 < 50"          (latency percentile in ms)
// - "latency:avg < 20"          (average latency in ms)
// - "device:max < 10"           (device time in ms)
// - "stage_envelope:max < 900"  (batch-wide stage envelope in ms)
// - "failed:rate < 0.01"        (failure rate as decimal)
// - "failed:count == 0"         (failure count)
// - "requests:rate > 100"       (completed requests per second)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'latency:p99 < 50')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := supported[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, device, stage_envelope, failed, requests)", metric)
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var supported = map[string][]string{
	MetricLatency:       {"p50", "p90", "p99", "avg", "min", "max"},
	MetricDevice:        {"avg", "min", "max"},
	MetricStageEnvelope: {"max"},
	MetricFailed:        {"count", "rate"},
	MetricRequests:      {"count", "rate"},
}

var operators = []string{"<", "<=", ">", ">=", "=="}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, sum metrics.Summary) (float64, error) {
	switch t.Metric {
	case MetricLatency:
		return extractDurationMetric(t.Aggregate, sum.Latency)
	case MetricDevice:
		if sum.Device == nil {
			return 0, fmt.Errorf("no device time reported")
		}
		return extractDurationMetric(t.Aggregate, *sum.Device)
	case MetricStageEnvelope:
		if len(sum.Stages) == 0 {
			return 0, fmt.Errorf("no stage timings recorded (enable profiling)")
		}
		return sum.EnvelopeMs, nil
	case MetricFailed:
		return extractFailureMetric(t.Aggregate, sum)
	case MetricRequests:
		return extractRequestMetric(t.Aggregate, sum)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractDurationMetric(aggregate string, st metrics.DurationStats) (float64, error) {
	switch aggregate {
	case "p50":
		return st.P50Ms, nil
	case "p90":
		return st.P90Ms, nil
	case "p99":
		return st.P99Ms, nil
	case "avg":
		return st.MeanMs, nil
	case "min":
		return st.MinMs, nil
	case "max":
		return st.MaxMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for durations", aggregate)
	}
}

func extractFailureMetric(aggregate string, sum metrics.Summary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(sum.Failed), nil
	case "rate":
		if sum.Total == 0 {
			return 0, nil
		}
		return float64(sum.Failed) / float64(sum.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for failed (use 'count' or 'rate')", aggregate)
	}
}

func extractRequestMetric(aggregate string, sum metrics.Summary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(sum.Total), nil
	case "rate":
		return sum.Throughput, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for requests (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}

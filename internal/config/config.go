package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Dispatch modes.
const (
	ModeThreaded = "threaded"
	ModePolling  = "polling"
)

// Arrival modes.
const (
	ArrivalRandom  = "random"
	ArrivalUniform = "uniform"
	ArrivalFixed   = "fixed"
)

// Defaults applied before the config file and flags.
const (
	DefaultRequests       = 100
	DefaultRate           = 20.0
	DefaultPoolSize       = 8
	DefaultQueueCount     = 4
	DefaultWorkTime       = 5 * time.Millisecond
	DefaultStallThreshold = 10 * time.Second
	DefaultLogLevel       = "info"
)

type Config struct {
	Requests       int           `yaml:"requests"`
	Rate           float64       `yaml:"qps"`
	PoolSize       int           `yaml:"pool_size"`
	Mode           string        `yaml:"mode"`
	Arrival        string        `yaml:"arrival"`
	DistDir        string        `yaml:"dist_dir"`
	Seed           int64         `yaml:"seed"`
	WarmUp         bool          `yaml:"warm_up"`
	SingleQueue    bool          `yaml:"single_queue"`
	QueueCount     int           `yaml:"queue_count"`
	WorkTime       time.Duration `yaml:"work_time"`
	WorkJitter     float64       `yaml:"work_jitter"`
	FailureRate    float64       `yaml:"failure_rate"`
	Stages         []string      `yaml:"stages,omitempty"`
	Profile        bool          `yaml:"profile"`
	LogLevel       string        `yaml:"log_level"`
	ResultsFile    string        `yaml:"results_file,omitempty"`
	JSONOutput     bool          `yaml:"json_output"`
	HTMLOutput     string        `yaml:"html_output,omitempty"`
	Dashboard      bool          `yaml:"dashboard"`
	Progress       time.Duration `yaml:"progress_interval"`
	Thresholds     []string      `yaml:"thresholds,omitempty"`
	StallThreshold time.Duration `yaml:"stall_threshold"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Tracing        TracingConfig `yaml:"tracing"`
	ConfigFile     string        `yaml:"-"`
	PrintConfig    bool          `yaml:"-"`
}

// TracingConfig controls the OTLP span exporter.
type TracingConfig struct {
	Enable      bool    `yaml:"enable"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Protocol    string  `yaml:"protocol,omitempty"`
	ServiceName string  `yaml:"service_name,omitempty"`
	SampleRate  float64 `yaml:"sample_rate"`
	Insecure    bool    `yaml:"insecure"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return t.Enable || strings.TrimSpace(t.Endpoint) != ""
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() Config {
	return Config{
		Requests:       DefaultRequests,
		Rate:           DefaultRate,
		PoolSize:       DefaultPoolSize,
		Mode:           ModeThreaded,
		Arrival:        ArrivalRandom,
		DistDir:        ".",
		QueueCount:     DefaultQueueCount,
		WorkTime:       DefaultWorkTime,
		LogLevel:       DefaultLogLevel,
		StallThreshold: DefaultStallThreshold,
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// MarshalYAML writes durations as strings ("5ms") so an echoed config can
// be loaded back through --config.
func (c Config) MarshalYAML() (interface{}, error) {
	type plain Config
	var node yaml.Node
	if err := node.Encode(plain(c)); err != nil {
		return nil, err
	}
	durations := map[string]time.Duration{
		"work_time":         c.WorkTime,
		"progress_interval": c.Progress,
		"stall_threshold":   c.StallThreshold,
		"poll_interval":     c.PollInterval,
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if d, ok := durations[node.Content[i].Value]; ok {
			node.Content[i+1].SetString(d.String())
		}
	}
	return &node, nil
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Requests < 0 {
		issues = append(issues, "requests must be >= 0")
	}
	if c.PoolSize < 1 {
		issues = append(issues, "pool-size must be >= 1")
	}
	if c.QueueCount < 1 {
		issues = append(issues, "queue-count must be >= 1")
	}
	if c.WorkTime < 0 {
		issues = append(issues, "work-time must be >= 0")
	}
	if c.WorkJitter < 0 || c.WorkJitter > 1 {
		issues = append(issues, "work-jitter must be between 0 and 1")
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		issues = append(issues, "failure-rate must be between 0 and 1")
	}
	if c.PollInterval < 0 {
		issues = append(issues, "poll-interval must be >= 0")
	}
	if c.Progress < 0 {
		issues = append(issues, "progress-interval must be >= 0")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("log-level: %v", err))
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	switch c.Mode {
	case ModeThreaded, ModePolling:
	default:
		issues = append(issues, fmt.Sprintf("mode %q is not supported (use threaded or polling)", c.Mode))
	}

	issues = append(issues, validateArrival(c.Arrival, c.Rate)...)
	issues = append(issues, validateStages(c.Stages)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateArrival(mode string, rate float64) []string {
	switch mode {
	case ArrivalRandom, ArrivalUniform, ArrivalFixed:
		// fixed falls back to random arrivals at this rate when the trace is unusable
		if rate <= 0 {
			return []string{"qps must be > 0"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("arrival mode %q is not supported (use random, uniform or fixed)", mode)}
	}
}

func validateStages(stages []string) []string {
	var issues []string
	seen := map[string]int{}
	for idx, name := range stages {
		name = strings.TrimSpace(name)
		if name == "" {
			issues = append(issues, fmt.Sprintf("stages[%d]: name is required", idx))
			continue
		}
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			issues = append(issues, fmt.Sprintf("stages[%d]: duplicate name also defined at index %d", idx, prev))
			continue
		}
		seen[key] = idx
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	if !t.Enabled() {
		return nil
	}
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0 and 1")
	}
	return issues
}

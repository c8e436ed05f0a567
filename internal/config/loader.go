package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

var (
	// ErrHelpRequested is returned when the user requests help via --help flag.
	ErrHelpRequested = errors.New("help requested")
	// ErrNoArguments is returned, after the usage text, when the command line
	// is empty. An empty command line is a usage error, not a run.
	ErrNoArguments = errors.New("no arguments passed")
)

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Precedence: built-in defaults, then the config file, then explicitly set flags.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", rest[0])
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrNoArguments
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.Arrival = strings.ToLower(strings.TrimSpace(cfg.Arrival))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Stages = trimAll(cfg.Stages)
	cfg.Thresholds = trimAll(cfg.Thresholds)
	if cfg.DistDir == "" {
		cfg.DistDir = "."
	}

	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "requests", "queries", "total"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("requests: %w", err)
		}
		cfg.Requests = val
	}

	if raw, ok := lookupSetting(settings, "qps", "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("qps: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "pool_size", "poolsize", "pool-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("pool_size: %w", err)
		}
		cfg.PoolSize = val
	}

	if raw, ok := lookupSetting(settings, "mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("mode: %w", err)
		}
		if val != "" {
			cfg.Mode = val
		}
	}

	if raw, ok := lookupSetting(settings, "single_thread", "singlethread", "single-thread"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("single_thread: %w", err)
		}
		if val {
			cfg.Mode = ModePolling
		}
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if val != "" {
			cfg.Arrival = val
		}
	}

	if raw, ok := lookupSetting(settings, "fixed_dist", "fixeddist", "fixed-dist"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("fixed_dist: %w", err)
		}
		if val {
			cfg.Arrival = ArrivalFixed
		}
	}

	if raw, ok := lookupSetting(settings, "dist_dir", "distdir", "dist-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("dist_dir: %w", err)
		}
		cfg.DistDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}

	if raw, ok := lookupSetting(settings, "warm_up", "warmup", "warm-up"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("warm_up: %w", err)
		}
		cfg.WarmUp = val
	}

	if raw, ok := lookupSetting(settings, "single_queue", "singlequeue", "single-queue"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("single_queue: %w", err)
		}
		cfg.SingleQueue = val
	}

	if raw, ok := lookupSetting(settings, "queue_count", "queuecount", "queue-count"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("queue_count: %w", err)
		}
		cfg.QueueCount = val
	}

	if raw, ok := lookupSetting(settings, "work_time", "worktime", "work-time"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("work_time: %w", err)
		}
		cfg.WorkTime = val
	}

	if raw, ok := lookupSetting(settings, "work_jitter", "workjitter", "work-jitter"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("work_jitter: %w", err)
		}
		cfg.WorkJitter = val
	}

	if raw, ok := lookupSetting(settings, "failure_rate", "failurerate", "failure-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("failure_rate: %w", err)
		}
		cfg.FailureRate = val
	}

	if raw, ok := lookupSetting(settings, "stages"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		cfg.Stages = val
	}

	if raw, ok := lookupSetting(settings, "profile"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		cfg.Profile = val
	}

	if raw, ok := lookupSetting(settings, "stall_threshold", "stallthreshold", "stall-threshold"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("stall_threshold: %w", err)
		}
		cfg.StallThreshold = val
	}

	if raw, ok := lookupSetting(settings, "poll_interval", "pollinterval", "poll-interval"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		cfg.PollInterval = val
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		if val {
			cfg.LogLevel = "debug"
		}
	}

	if raw, ok := lookupSetting(settings, "log_level", "loglevel", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		if val != "" {
			cfg.LogLevel = val
		}
	}

	if raw, ok := lookupSetting(settings, "results_file", "resultsfile", "results-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("results_file: %w", err)
		}
		cfg.ResultsFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "json_output", "jsonoutput", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "html_output", "htmloutput", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("html_output: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "progress_interval", "progressinterval", "progress-interval"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("progress_interval: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}

	return nil
}

// parseTracing overlays a tracing section onto base.
func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := base
	if raw, ok := lookupSetting(settings, "enable", "enabled"); ok {
		if tc.Enable, err = asBool(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("enable: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		if tc.Protocol, err = asString(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		if tc.ServiceName, err = asString(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		if tc.SampleRate, err = asFloat64(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if tc.Insecure, err = asBool(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
	}
	return tc, nil
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

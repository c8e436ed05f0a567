package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/torosent/poolbench/internal/config"
)

func TestLoadNoArgsIsUsageError(t *testing.T) {
	_, err := config.NewLoader().Load([]string{})
	if !errors.Is(err, config.ErrNoArguments) {
		t.Fatalf("Load() error = %v, want ErrNoArguments", err)
	}
	if errors.Is(err, config.ErrHelpRequested) {
		t.Fatal("an empty command line must not be treated as a help request")
	}
}

func TestLoadHelpFlag(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadUnknownFlag(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--bogus"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, config.ErrHelpRequested))
}

func TestLoadPositionalArgumentRejected(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"-q", "5", "extra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra")
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--profile=false"})
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Requests)
	assert.Equal(t, 20.0, cfg.Rate)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, config.ModeThreaded, cfg.Mode)
	assert.Equal(t, config.ArrivalRandom, cfg.Arrival)
	assert.Equal(t, ".", cfg.DistDir)
	assert.Equal(t, 4, cfg.QueueCount)
	assert.Equal(t, 5*time.Millisecond, cfg.WorkTime)
	assert.Equal(t, 10*time.Second, cfg.StallThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
	assert.False(t, cfg.Tracing.Enabled())
	assert.False(t, cfg.SingleQueue)
	assert.False(t, cfg.WarmUp)
	assert.NoError(t, cfg.Validate())
}

func TestShortFlagsAndAliases(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{
		"-q", "250", "-r", "12.5", "-s", "3",
		"--single-thread", "--fixed-dist", "--log",
	})
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Requests)
	assert.Equal(t, 12.5, cfg.Rate)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, config.ModePolling, cfg.Mode)
	assert.Equal(t, config.ArrivalFixed, cfg.Arrival)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestExplicitLogLevelBeatsLogShortcut(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--log", "--log-level", "WARN"})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	content := `
requests: 40
qps: 55.5
pool_size: 6
mode: Polling
arrival: uniform
dist_dir: ./traces
seed: 42
warm_up: true
single_queue: true
queue_count: 2
work_time: 3ms
work_jitter: 0.2
failure_rate: 0.05
stages: [upload, compute, download]
profile: true
results_file: results.csv
html_output: report.html
progress_interval: 500ms
poll_interval: 100us
thresholds:
  - "latency:p99 < 50"
tracing:
  endpoint: localhost:4317
  protocol: http
  sample_rate: 0.25
  insecure: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.NewLoader().Load([]string{"--config", path, "-s", "9"})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, 40, cfg.Requests)
	assert.Equal(t, 55.5, cfg.Rate)
	assert.Equal(t, 9, cfg.PoolSize, "flag must override file")
	assert.Equal(t, config.ModePolling, cfg.Mode)
	assert.Equal(t, config.ArrivalUniform, cfg.Arrival)
	assert.Equal(t, "./traces", cfg.DistDir)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.True(t, cfg.WarmUp)
	assert.True(t, cfg.SingleQueue)
	assert.Equal(t, 2, cfg.QueueCount)
	assert.Equal(t, 3*time.Millisecond, cfg.WorkTime)
	assert.Equal(t, 0.2, cfg.WorkJitter)
	assert.Equal(t, 0.05, cfg.FailureRate)
	assert.Equal(t, []string{"upload", "compute", "download"}, cfg.Stages)
	assert.True(t, cfg.Profile)
	assert.Equal(t, "results.csv", cfg.ResultsFile)
	assert.Equal(t, "report.html", cfg.HTMLOutput)
	assert.Equal(t, 500*time.Millisecond, cfg.Progress)
	assert.Equal(t, 100*time.Microsecond, cfg.PollInterval)
	assert.Equal(t, []string{"latency:p99 < 50"}, cfg.Thresholds)
	assert.True(t, cfg.Tracing.Enabled())
	assert.Equal(t, "http", cfg.Tracing.Protocol)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRate)
	assert.True(t, cfg.Tracing.Insecure)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"requests": 12,
		"qps": 8,
		"singleThread": true,
		"fixedDist": true,
		"jsonOutput": true,
		"stallThreshold": "250ms"
	}`), 0o600))

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Requests)
	assert.Equal(t, 8.0, cfg.Rate)
	assert.Equal(t, config.ModePolling, cfg.Mode)
	assert.Equal(t, config.ArrivalFixed, cfg.Arrival)
	assert.True(t, cfg.JSONOutput)
	assert.Equal(t, 250*time.Millisecond, cfg.StallThreshold)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

func TestConfigValidationErrors(t *testing.T) {
	valid := config.Defaults()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name: "negative values",
			mutate: func(c *config.Config) {
				c.Requests = -1
				c.PoolSize = 0
				c.QueueCount = 0
				c.WorkTime = -time.Millisecond
			},
			want: []string{"requests", "pool-size", "queue-count", "work-time"},
		},
		{
			name: "probabilities out of range",
			mutate: func(c *config.Config) {
				c.WorkJitter = 1.5
				c.FailureRate = -0.1
			},
			want: []string{"work-jitter", "failure-rate"},
		},
		{
			name:   "bad mode",
			mutate: func(c *config.Config) { c.Mode = "fibers" },
			want:   []string{"mode"},
		},
		{
			name:   "bad arrival",
			mutate: func(c *config.Config) { c.Arrival = "bursty" },
			want:   []string{"arrival"},
		},
		{
			name:   "zero rate",
			mutate: func(c *config.Config) { c.Rate = 0 },
			want:   []string{"qps"},
		},
		{
			name:   "duplicate stages",
			mutate: func(c *config.Config) { c.Stages = []string{"copy", "Copy", ""} },
			want:   []string{"stages[1]", "stages[2]"},
		},
		{
			name: "output conflict",
			mutate: func(c *config.Config) {
				c.Dashboard = true
				c.JSONOutput = true
			},
			want: []string{"mutually exclusive"},
		},
		{
			name:   "bad log level",
			mutate: func(c *config.Config) { c.LogLevel = "loud" },
			want:   []string{"log-level"},
		},
		{
			name: "bad tracing",
			mutate: func(c *config.Config) {
				c.Tracing.Enable = true
				c.Tracing.Protocol = "udp"
				c.Tracing.SampleRate = 2
			},
			want: []string{"protocol", "sample_rate"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verr config.ValidationError
			require.True(t, errors.As(err, &verr))
			joined := strings.Join(verr.Issues(), "\n")
			for _, fragment := range tc.want {
				assert.Contains(t, joined, fragment)
			}
		})
	}
}

func TestTracingEnabled(t *testing.T) {
	assert.False(t, config.TracingConfig{}.Enabled())
	assert.True(t, config.TracingConfig{Enable: true}.Enabled())
	assert.True(t, config.TracingConfig{Endpoint: "collector:4317"}.Enabled())
	assert.False(t, config.TracingConfig{Endpoint: "  "}.Enabled())
}

func TestConfigYAMLEchoRoundTrips(t *testing.T) {
	cfg := config.Defaults()
	cfg.Requests = 33
	cfg.Mode = config.ModePolling
	cfg.WorkTime = 750 * time.Microsecond
	cfg.PollInterval = 50 * time.Microsecond
	cfg.Stages = []string{"a", "b"}

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "work_time: 750µs")

	path := filepath.Join(t.TempDir(), "echo.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := config.NewLoader().Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, cfg.Requests, loaded.Requests)
	assert.Equal(t, cfg.Mode, loaded.Mode)
	assert.Equal(t, cfg.WorkTime, loaded.WorkTime)
	assert.Equal(t, cfg.PollInterval, loaded.PollInterval)
	assert.Equal(t, cfg.StallThreshold, loaded.StallThreshold)
	assert.Equal(t, cfg.Stages, loaded.Stages)
}

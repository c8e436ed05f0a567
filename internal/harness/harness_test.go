package harness

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/torosent/poolbench/internal/arrival"
	"github.com/torosent/poolbench/internal/config"
	"github.com/torosent/poolbench/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() logrus.FieldLogger {
	log, _ := logtest.NewNullLogger()
	return log
}

// fastConfig is a small run that finishes in a few milliseconds.
func fastConfig() config.Config {
	cfg := config.Defaults()
	cfg.Requests = 20
	cfg.Rate = 5000
	cfg.PoolSize = 4
	cfg.Arrival = config.ArrivalUniform
	cfg.WorkTime = 200 * time.Microsecond
	cfg.Seed = 7
	cfg.DistDir = ""
	return cfg
}

func newHarness(t *testing.T, cfg config.Config, stdout *bytes.Buffer) *Harness {
	t.Helper()
	h, err := New(context.Background(), cfg, Options{Stdout: stdout, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRunThreadedEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig()
	cfg.ResultsFile = filepath.Join(dir, "out", "results.csv")
	cfg.HTMLOutput = filepath.Join(dir, "report.html")
	cfg.Thresholds = []string{"failed:count == 0", "requests:count == 20"}

	var stdout bytes.Buffer
	h := newHarness(t, cfg, &stdout)

	rep, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, rep.Result.Total)
	assert.Equal(t, 20, rep.Result.Completed)
	assert.Equal(t, 0, rep.Result.Failed)
	assert.Equal(t, 20, rep.Summary.Completed)
	assert.True(t, rep.Passed())
	assert.NotEmpty(t, rep.Info.RunID)
	assert.False(t, rep.Info.Timestamp.IsZero())
	assert.Equal(t, "threaded", rep.Info.Mode)

	out := stdout.String()
	assert.Contains(t, out, "Thresholds (2/2 passed)")

	html, err := os.ReadFile(cfg.HTMLOutput)
	require.NoError(t, err)
	assert.Contains(t, string(html), rep.Info.RunID)

	f, err := os.Open(cfg.ResultsFile)
	require.NoError(t, err)
	rows, err := csv.NewReader(f).ReadAll()
	_ = f.Close()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run_id", rows[0][0])
	assert.Equal(t, rep.Info.RunID, rows[1][0])

	require.NoError(t, h.Close())
	assert.Equal(t, 0, h.device.References(), "closing the pool must drop every device reference")
	assert.False(t, h.device.Ready())
	require.NoError(t, h.Close(), "Close is idempotent")
}

func TestRunPollingFailuresTripThresholds(t *testing.T) {
	cfg := fastConfig()
	cfg.Mode = config.ModePolling
	cfg.Requests = 10
	cfg.PoolSize = 3
	cfg.FailureRate = 1
	cfg.Thresholds = []string{"failed:count == 0"}

	var stdout bytes.Buffer
	h := newHarness(t, cfg, &stdout)

	rep, err := h.Run(context.Background())
	require.ErrorIs(t, err, ErrThresholdsFailed)

	assert.Equal(t, 10, rep.Result.Failed)
	assert.Equal(t, 0, rep.Result.Completed)
	assert.Equal(t, 10, rep.Summary.Failed)
	assert.False(t, rep.Passed())
	assert.Contains(t, stdout.String(), "Thresholds (0/1 passed)")
}

func TestRunJSONOutput(t *testing.T) {
	cfg := fastConfig()
	cfg.JSONOutput = true
	cfg.Requests = 5
	cfg.Profile = true
	cfg.Stages = []string{"upload", "compute"}

	var stdout bytes.Buffer
	h := newHarness(t, cfg, &stdout)

	_, err := h.Run(context.Background())
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Contains(t, decoded, "run")
	assert.Contains(t, decoded, "summary")

	var sum struct {
		Completed int `json:"completed"`
		Stages    []struct {
			Name string `json:"name"`
		} `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(decoded["summary"], &sum))
	assert.Equal(t, 5, sum.Completed)
	require.Len(t, sum.Stages, 2)
	assert.Equal(t, "upload", sum.Stages[0].Name)
}

func TestFixedArrivalReplaysTrace(t *testing.T) {
	dir := t.TempDir()
	path := arrival.PlanPath(dir, 5)
	require.NoError(t, os.WriteFile(path, []byte("100 200 300\n400 500\n"), 0o600))

	cfg := fastConfig()
	cfg.Requests = 5
	cfg.Arrival = config.ArrivalFixed
	cfg.DistDir = dir

	var stdout bytes.Buffer
	h := newHarness(t, cfg, &stdout)
	assert.Equal(t, []int64{100, 200, 300, 400, 500}, h.Plan().Micros())

	rep, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", rep.Info.Arrival)
}

func TestFixedArrivalPersistsGeneratedPlan(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig()
	cfg.Requests = 6
	cfg.Arrival = config.ArrivalFixed
	cfg.DistDir = dir

	var stdout bytes.Buffer
	h := newHarness(t, cfg, &stdout)

	loaded, err := arrival.LoadPlan(arrival.PlanPath(dir, 6), 6)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(h.Plan()))
}

func TestCancelledContextAbandonsRequests(t *testing.T) {
	cfg := fastConfig()
	cfg.Rate = 1

	var stdout bytes.Buffer
	h := newHarness(t, cfg, &stdout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := h.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, cfg.Requests, rep.Result.Failed)
}

func TestNewRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "zero pool", mutate: func(c *config.Config) { c.PoolSize = 0 }},
		{name: "bad mode", mutate: func(c *config.Config) { c.Mode = "fibers" }},
		{name: "bad threshold", mutate: func(c *config.Config) { c.Thresholds = []string{"latency:p95 < 1"} }},
		{name: "bad tracing protocol", mutate: func(c *config.Config) {
			c.Tracing.Endpoint = "localhost:4317"
			c.Tracing.Protocol = "udp"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fastConfig()
			tt.mutate(&cfg)
			_, err := New(context.Background(), cfg, Options{Logger: quietLogger()})
			require.Error(t, err)
		})
	}
}

func TestNewValidationErrorIsTyped(t *testing.T) {
	cfg := fastConfig()
	cfg.Requests = -1
	_, err := New(context.Background(), cfg, Options{Logger: quietLogger()})
	var verr config.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestLargePoolWarnsOnce(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	cfg := fastConfig()
	cfg.PoolSize = largePoolSize + 1
	h, err := New(context.Background(), cfg, Options{Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "large pool") {
			warnings++
			assert.Equal(t, largePoolSize+1, e.Data["pool_size"])
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestNewFactoryFailure(t *testing.T) {
	boom := errors.New("no device")
	cfg := fastConfig()
	_, err := New(context.Background(), cfg, Options{
		Logger: quietLogger(),
		Factory: func(id worker.ID) (worker.Worker, error) {
			return nil, boom
		},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "create worker pool")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("warn", &buf)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown")
	assert.False(t, strings.Contains(buf.String(), "hidden"))
	assert.Contains(t, buf.String(), "shown")

	_, err = NewLogger("loud", &buf)
	require.Error(t, err)
}

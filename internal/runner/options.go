package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/poolbench/internal/arrival"
	"github.com/torosent/poolbench/internal/worker"
)

// Mode selects the dispatch strategy.
type Mode string

const (
	ModeThreaded Mode = "threaded"
	ModePolling  Mode = "polling"
)

// ParseMode converts a configuration string to a Mode. Empty means threaded.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeThreaded:
		return ModeThreaded, nil
	case ModePolling:
		return ModePolling, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q (want threaded or polling)", s)
	}
}

// Pool is the checkout surface the runner needs from a worker pool.
type Pool interface {
	Acquire(ctx context.Context) (worker.Worker, error)
	Release(w worker.Worker) error
	Size() int
}

// Recorder receives every finished request. report is nil for failures.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(id int, start, end time.Time, report *worker.Report, err error)
}

// Options configure the Runner.
type Options struct {
	Plan         arrival.Plan       // one delay per request (required)
	Pool         Pool               // worker pool (required)
	Mode         Mode               // dispatch strategy, default threaded
	WarmUp       bool               // run request 0 once, unrecorded, before timing starts
	PollInterval time.Duration      // polling idle sleep, 0 yields instead
	Recorder     Recorder           // optional
	Tracer       trace.Tracer       // optional, no-op when nil
	Logger       logrus.FieldLogger // optional
}

func (o *Options) normalize() {
	if o.Mode == "" {
		o.Mode = ModeThreaded
	}
	if o.PollInterval < 0 {
		o.PollInterval = 0
	}
	if o.Recorder == nil {
		o.Recorder = discardRecorder{}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("poolbench")
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

type discardRecorder struct{}

func (discardRecorder) Record(int, time.Time, time.Time, *worker.Report, error) {}

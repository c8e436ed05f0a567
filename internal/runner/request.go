package runner

import (
	"time"

	"github.com/torosent/poolbench/internal/worker"
)

// State is the lifecycle position of a request.
type State int

const (
	StatePending State = iota
	StateDispatched
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatched:
		return "dispatched"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s == StateCompleted || s == StateFailed
}

// Request is one planned unit of work. It is written only by the goroutine
// that owns it during the run and is read-only once Run returns.
type Request struct {
	ID     int
	Offset time.Duration // planned offset from run start
	State  State
	Start  time.Time
	End    time.Time
	Report *worker.Report
	Err    error
}

// Latency is the end-to-end wall time. Zero until the request is done.
func (r *Request) Latency() time.Duration {
	if !r.State.Done() || r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

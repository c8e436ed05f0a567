package worker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned by Submit when the worker already has work in flight.
	ErrBusy = errors.New("worker: request already in flight")
	// ErrNotFinished is returned by Result before the submitted work completes.
	ErrNotFinished = errors.New("worker: result not ready")
	// ErrNotInitialized is returned when a worker is used before Init.
	ErrNotInitialized = errors.New("worker: not initialized")
	// ErrClosed is returned when a worker is used after Close.
	ErrClosed = errors.New("worker: closed")
	// ErrExecutionFailed marks a failure reported by the executed work itself.
	ErrExecutionFailed = errors.New("worker: execution failed")
)

// ID identifies a worker by its pool slot.
type ID int

func (id ID) String() string {
	return fmt.Sprintf("worker-%d", int(id))
}

// Worker is an opaque, reusable execution context.
type Worker interface {
	ID() ID
	Init(ctx context.Context) error
	Execute(ctx context.Context, requestID int) (Report, error)
	Close() error
}

// AsyncWorker is a Worker that can also be driven in fire-and-poll fashion.
type AsyncWorker interface {
	Worker
	Submit(ctx context.Context, requestID int) error
	IsFinished() bool
	Result() (Report, error)
}

// Stage is one timed sub-step of an execution.
type Stage struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the elapsed time of the stage.
func (s Stage) Duration() time.Duration {
	if s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Report describes one completed execution.
type Report struct {
	RequestID int           `json:"request_id"`
	WorkerID  ID            `json:"worker_id"`
	QueueID   int           `json:"queue_id"`
	Duration  time.Duration `json:"duration"`
	Stages    []Stage       `json:"stages,omitempty"`

	// Finished is when the worker completed the request. Zero means unknown,
	// and the dispatcher uses the time it collected the report instead.
	Finished time.Time `json:"finished"`

	// DeviceTime is the aggregate time spent on the device queue. Zero means
	// the worker did not report one.
	DeviceTime time.Duration `json:"device_time,omitempty"`
}

// HasDeviceTime reports whether the worker measured device-side time.
func (r Report) HasDeviceTime() bool {
	return r.DeviceTime > 0
}

package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// DefaultStages mirrors a copy-in / compute / copy-out command list.
var DefaultStages = []string{"copy_in", "compute", "copy_out"}

const defaultBufferSize = 4096

// SimulatedOptions configure a Simulated worker.
type SimulatedOptions struct {
	Device      *Device       // shared device context (required)
	WorkTime    time.Duration // nominal device time per request
	Jitter      float64       // relative jitter applied to WorkTime, in [0,1]
	FailureRate float64       // probability that an execution fails, in [0,1]
	Stages      []string      // stage names; the work time is split evenly
	BufferSize  int           // size of the input/output buffers
	Seed        int64         // seed for jitter and failure sampling
	Logger      logrus.FieldLogger
}

// Simulated is a device-backed worker whose work is a timed sequence of
// stages executed on one device queue.
type Simulated struct {
	id   ID
	opts SimulatedOptions
	log  logrus.FieldLogger

	queue  int
	rng    *rand.Rand
	input  []byte
	output []byte

	initialized atomic.Bool
	closeOnce   sync.Once
	closed      atomic.Bool

	busy   atomic.Bool
	done   atomic.Bool
	report Report
	err    error
}

// NewSimulated builds a worker for the given pool slot. Init must be called
// before use.
func NewSimulated(id ID, opts SimulatedOptions) *Simulated {
	if len(opts.Stages) == 0 {
		opts.Stages = DefaultStages
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Simulated{
		id:   id,
		opts: opts,
		log:  log.WithField("worker_id", int(id)),
		rng:  rand.New(rand.NewSource(opts.Seed + int64(id))),
	}
}

func (s *Simulated) ID() ID { return s.id }

// Queue returns the device queue the worker was pinned to by Init.
func (s *Simulated) Queue() int { return s.queue }

// Init acquires a device reference, picks a queue and allocates buffers.
func (s *Simulated) Init(ctx context.Context) error {
	if s.opts.Device == nil {
		return fmt.Errorf("%s: device is required", s.id)
	}
	if s.initialized.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.opts.Device.AcquireReference(); err != nil {
		return fmt.Errorf("%s: %w", s.id, err)
	}
	s.queue = s.opts.Device.AssignQueue()
	s.input = make([]byte, s.opts.BufferSize)
	s.output = make([]byte, s.opts.BufferSize)
	s.initialized.Store(true)
	s.log.WithField("queue_id", s.queue).Debug("worker initialized")
	return nil
}

// Execute runs one request to completion.
func (s *Simulated) Execute(ctx context.Context, requestID int) (Report, error) {
	if s.closed.Load() {
		return Report{}, ErrClosed
	}
	if !s.initialized.Load() {
		return Report{}, ErrNotInitialized
	}

	start := time.Now()
	fill(s.input, byte(requestID))

	total := s.workTime()
	share := time.Duration(0)
	if n := len(s.opts.Stages); n > 0 {
		share = total / time.Duration(n)
	}
	fail := s.opts.FailureRate > 0 && s.rng.Float64() < s.opts.FailureRate

	stages := make([]Stage, 0, len(s.opts.Stages))
	var deviceTime time.Duration
	var runErr error
	s.opts.Device.RunOnQueue(s.queue, func() {
		onDevice := time.Now()
		for i, name := range s.opts.Stages {
			st := Stage{Name: name, Start: time.Now()}
			if err := sleepContext(ctx, share); err != nil {
				runErr = err
				return
			}
			if i == len(s.opts.Stages)-1 {
				copy(s.output, s.input)
			}
			st.End = time.Now()
			stages = append(stages, st)
		}
		deviceTime = time.Since(onDevice)
	})
	if runErr != nil {
		return Report{}, runErr
	}
	if fail {
		return Report{}, fmt.Errorf("request %d on %s: %w", requestID, s.id, ErrExecutionFailed)
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"queue_id":   s.queue,
	}).Debug("request executed")

	end := time.Now()
	return Report{
		RequestID:  requestID,
		WorkerID:   s.id,
		QueueID:    s.queue,
		Duration:   end.Sub(start),
		Stages:     stages,
		DeviceTime: deviceTime,
		Finished:   end,
	}, nil
}

// Submit starts a request without waiting for it.
func (s *Simulated) Submit(ctx context.Context, requestID int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.initialized.Load() {
		return ErrNotInitialized
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	s.done.Store(false)
	go func() {
		report, err := s.Execute(ctx, requestID)
		s.report, s.err = report, err
		s.done.Store(true)
	}()
	return nil
}

// IsFinished reports whether submitted work has completed.
func (s *Simulated) IsFinished() bool {
	return s.busy.Load() && s.done.Load()
}

// Result collects the outcome of the last submission and frees the worker
// for the next one.
func (s *Simulated) Result() (Report, error) {
	if !s.IsFinished() {
		return Report{}, ErrNotFinished
	}
	report, err := s.report, s.err
	s.report, s.err = Report{}, nil
	s.done.Store(false)
	s.busy.Store(false)
	return report, err
}

// Close releases the device reference. Calling Close more than once is a
// no-op.
func (s *Simulated) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.initialized.Load() {
			err = s.opts.Device.ReleaseReference()
		}
	})
	return err
}

func (s *Simulated) workTime() time.Duration {
	base := s.opts.WorkTime
	if base <= 0 || s.opts.Jitter <= 0 {
		return base
	}
	j := s.opts.Jitter
	if j > 1 {
		j = 1
	}
	factor := 1 + j*(2*s.rng.Float64()-1)
	return time.Duration(float64(base) * factor)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func fill(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}

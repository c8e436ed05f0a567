// Package pool provides a fixed-size pool of reusable workers with exclusive
// checkout semantics.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/torosent/poolbench/internal/worker"
)

// DefaultStallThreshold is how long Acquire waits before warning that the
// pool looks saturated.
const DefaultStallThreshold = 10 * time.Second

var (
	// ErrEmptyPool is returned when a pool is built with no workers.
	ErrEmptyPool = errors.New("pool: size must be >= 1")
	// ErrNotCheckedOut is returned when releasing a worker the caller does not hold.
	ErrNotCheckedOut = errors.New("pool: worker is not checked out")
	// ErrWorkersOutstanding is returned by Close while workers are still in use.
	ErrWorkersOutstanding = errors.New("pool: workers still checked out")
	// ErrClosed is returned when using a pool after Close.
	ErrClosed = errors.New("pool: closed")
)

// Factory builds the worker for a pool slot. The returned worker must report
// the slot as its ID.
type Factory func(id worker.ID) (worker.Worker, error)

// Options configure a WorkerPool.
type Options struct {
	StallThreshold time.Duration // 0 uses DefaultStallThreshold, negative disables the warning
	Logger         logrus.FieldLogger
}

// WorkerPool owns a fixed set of workers. Workers move between the pool and
// callers via Acquire and Release; a worker is never handed to two callers
// at once.
type WorkerPool struct {
	workers    []worker.Worker
	checkedOut []atomic.Bool
	available  chan worker.Worker
	done       chan struct{}

	outstanding atomic.Int64
	closed      atomic.Bool
	closeOnce   sync.Once

	stallAfter time.Duration
	stallWarn  rate.Sometimes
	log        logrus.FieldLogger
}

// New builds and initializes size workers. If any worker fails to build or
// initialize, the ones already built are closed and the error is returned.
func New(ctx context.Context, size int, factory Factory, opts Options) (*WorkerPool, error) {
	if size < 1 {
		return nil, ErrEmptyPool
	}
	if factory == nil {
		return nil, errors.New("pool: factory is required")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	stall := opts.StallThreshold
	if stall == 0 {
		stall = DefaultStallThreshold
	}

	p := &WorkerPool{
		workers:    make([]worker.Worker, 0, size),
		checkedOut: make([]atomic.Bool, size),
		available:  make(chan worker.Worker, size),
		done:       make(chan struct{}),
		stallAfter: stall,
		stallWarn:  rate.Sometimes{First: 1, Interval: stall},
		log:        log,
	}

	for i := 0; i < size; i++ {
		id := worker.ID(i)
		w, err := factory(id)
		if err != nil {
			p.closeWorkers()
			return nil, fmt.Errorf("pool: build %s: %w", id, err)
		}
		if w.ID() != id {
			p.closeWorkers()
			_ = w.Close()
			return nil, fmt.Errorf("pool: factory returned %s for slot %d", w.ID(), i)
		}
		if err := w.Init(ctx); err != nil {
			p.closeWorkers()
			_ = w.Close()
			return nil, fmt.Errorf("pool: init %s: %w", id, err)
		}
		p.workers = append(p.workers, w)
		p.available <- w
	}

	log.WithField("size", size).Debug("worker pool ready")
	return p, nil
}

// Acquire blocks until a worker is available and checks it out.
func (p *WorkerPool) Acquire(ctx context.Context) (worker.Worker, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	// Fast path.
	select {
	case w := <-p.available:
		return p.checkout(w), nil
	default:
	}

	var stall <-chan time.Time
	if p.stallAfter > 0 {
		timer := time.NewTimer(p.stallAfter)
		defer timer.Stop()
		stall = timer.C
		start := time.Now()
		for {
			select {
			case w := <-p.available:
				return p.checkout(w), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-p.done:
				return nil, ErrClosed
			case <-stall:
				p.stallWarn.Do(func() {
					p.log.WithFields(logrus.Fields{
						"waited":      time.Since(start).Round(time.Millisecond),
						"size":        p.Size(),
						"checked_out": p.CheckedOut(),
					}).Warn("worker acquisition stalled, pool saturated")
				})
				timer.Reset(p.stallAfter)
			}
		}
	}

	select {
	case w := <-p.available:
		return p.checkout(w), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

// TryAcquire checks out a worker if one is immediately available.
func (p *WorkerPool) TryAcquire() (worker.Worker, bool) {
	if p.closed.Load() {
		return nil, false
	}
	select {
	case w := <-p.available:
		return p.checkout(w), true
	default:
		return nil, false
	}
}

// Release returns a checked-out worker. The caller must not use it afterwards.
func (p *WorkerPool) Release(w worker.Worker) error {
	if w == nil {
		return ErrNotCheckedOut
	}
	if p.closed.Load() {
		return ErrClosed
	}
	id := int(w.ID())
	if id < 0 || id >= len(p.workers) || p.workers[id] != w {
		return fmt.Errorf("%w: %s does not belong to this pool", ErrNotCheckedOut, w.ID())
	}
	if !p.checkedOut[id].CompareAndSwap(true, false) {
		return fmt.Errorf("%w: %s", ErrNotCheckedOut, w.ID())
	}
	p.outstanding.Dec()
	p.available <- w
	return nil
}

// Size returns the fixed number of workers.
func (p *WorkerPool) Size() int { return len(p.workers) }

// Available returns the number of workers ready for checkout.
func (p *WorkerPool) Available() int { return len(p.available) }

// CheckedOut returns the number of workers currently held by callers.
func (p *WorkerPool) CheckedOut() int { return int(p.outstanding.Load()) }

// Close destroys every worker exactly once. All workers must have been
// released first.
func (p *WorkerPool) Close() error {
	if n := p.CheckedOut(); n > 0 {
		return fmt.Errorf("%w: %d", ErrWorkersOutstanding, n)
	}
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		for len(p.available) > 0 {
			<-p.available
		}
		err = p.closeWorkers()
		p.log.Debug("worker pool closed")
	})
	return err
}

func (p *WorkerPool) checkout(w worker.Worker) worker.Worker {
	p.checkedOut[int(w.ID())].Store(true)
	p.outstanding.Inc()
	return w
}

func (p *WorkerPool) closeWorkers() error {
	var errs []string
	for _, w := range p.workers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", w.ID(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pool close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

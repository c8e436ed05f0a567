package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/poolbench/internal/worker"
)

// ErrNotAsync is returned by the polling strategy when a pooled worker does
// not implement worker.AsyncWorker.
var ErrNotAsync = errors.New("runner: polling mode requires asynchronous workers")

// DispatchStrategy runs a batch of requests against the pool.
type DispatchStrategy interface {
	// WarmUp executes request 0 once outside the timed run. Nothing is recorded.
	WarmUp(ctx context.Context, b *batch) error
	// Dispatch paces and runs every request in the batch. It returns once
	// every request has reached a terminal state.
	Dispatch(ctx context.Context, b *batch) error
}

// NewStrategy returns the strategy for mode.
func NewStrategy(mode Mode, pollInterval time.Duration) (DispatchStrategy, error) {
	switch mode {
	case ModeThreaded, "":
		return threaded{}, nil
	case ModePolling:
		return polling{interval: pollInterval}, nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", mode)
	}
}

// threaded spawns one goroutine per request.
type threaded struct{}

func (threaded) WarmUp(ctx context.Context, b *batch) error {
	w, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("warm-up acquire: %w", err)
	}
	_, err = guardExecute(ctx, w, 0)
	if rerr := b.pool.Release(w); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

func (threaded) Dispatch(ctx context.Context, b *batch) error {
	var (
		wg      sync.WaitGroup
		stopErr error
	)
	for i := 0; i < b.len(); i++ {
		if err := b.pacer.wait(ctx, i); err != nil {
			stopErr = err
			b.abandon(i, err)
			break
		}
		b.requests[i].State = StateDispatched
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runBlocking(ctx, b, i)
		}(i)
	}
	wg.Wait()
	return stopErr
}

func runBlocking(ctx context.Context, b *batch, i int) {
	ctx, span := b.startSpan(ctx, i)

	w, err := b.pool.Acquire(ctx)
	if err != nil {
		b.finish(i, span, nil, fmt.Errorf("acquire worker: %w", err))
		return
	}
	b.requests[i].State = StateRunning

	rep, err := guardExecute(ctx, w, i)
	if rerr := b.pool.Release(w); rerr != nil {
		b.log.WithError(rerr).WithField("worker_id", w.ID()).Error("release worker")
	}
	if err != nil {
		b.finish(i, span, nil, err)
		return
	}
	b.finish(i, span, &rep, nil)
}

// polling drives every pool slot from the calling goroutine.
type polling struct {
	interval time.Duration
}

type slot struct {
	w       worker.AsyncWorker
	request int
	busy    bool
	span    trace.Span
}

func (p polling) WarmUp(ctx context.Context, b *batch) error {
	w, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("warm-up acquire: %w", err)
	}
	defer func() {
		if rerr := b.pool.Release(w); rerr != nil {
			b.log.WithError(rerr).Error("release warm-up worker")
		}
	}()
	aw, ok := w.(worker.AsyncWorker)
	if !ok {
		return ErrNotAsync
	}
	if err := guardSubmit(ctx, aw, 0); err != nil {
		return err
	}
	// The submission is always collected so the worker goes back to the pool
	// idle, even after ctx is cancelled.
	for {
		done, err := guardFinished(aw)
		if err != nil {
			return err
		}
		if done {
			_, err = guardResult(aw)
			if err == nil {
				err = ctx.Err()
			}
			return err
		}
		_ = p.sleep(context.Background(), p.interval)
	}
}

func (p polling) Dispatch(ctx context.Context, b *batch) error {
	n := b.len()
	if n == 0 {
		return nil
	}

	slots, err := p.checkoutAll(ctx, b)
	if err != nil {
		b.abandon(0, err)
		return err
	}
	defer func() {
		for _, s := range slots {
			if rerr := b.pool.Release(s.w); rerr != nil {
				b.log.WithError(rerr).WithField("worker_id", s.w.ID()).Error("release worker")
			}
		}
	}()

	var (
		next    int
		stopErr error
	)
	// submitDue puts the next request into the free slot s once its planned
	// start has passed. It never waits. Requests whose submission fails are
	// settled and skipped.
	submitDue := func(s *slot) bool {
		for next < n && stopErr == nil {
			if err := ctx.Err(); err != nil {
				stopErr = err
				b.abandon(next, err)
				next = n
				return false
			}
			if b.pacer.delay(next) > 0 {
				return false
			}
			i := next
			next++
			b.requests[i].State = StateDispatched
			spanCtx, span := b.startSpan(ctx, i)
			b.requests[i].State = StateRunning
			if err := guardSubmit(spanCtx, s.w, i); err != nil {
				b.finish(i, span, nil, err)
				continue
			}
			s.request, s.span, s.busy = i, span, true
			return true
		}
		return false
	}

	for b.settled.Load() < int64(n) {
		progressed := false
		inFlight := 0
		for i := range slots {
			s := &slots[i]
			if s.busy {
				done, err := guardFinished(s.w)
				if err == nil && !done {
					inFlight++
					continue
				}
				if err == nil {
					var rep worker.Report
					if rep, err = guardResult(s.w); err == nil {
						b.finish(s.request, s.span, &rep, nil)
					}
				}
				if err != nil {
					b.finish(s.request, s.span, nil, err)
				}
				s.busy, s.span = false, nil
				progressed = true
			}
			if submitDue(s) {
				inFlight++
				progressed = true
			}
		}
		if !progressed {
			p.pause(ctx, b, next, inFlight)
		}
	}
	return stopErr
}

// pause runs when a sweep neither collected nor submitted anything. With
// nothing in flight it sleeps until the next planned start. Otherwise it
// sleeps for the poll interval, cut short at the next planned start, so
// completions are still noticed promptly.
func (p polling) pause(ctx context.Context, b *batch, next, inFlight int) {
	due := time.Duration(-1)
	if next < b.len() {
		due = b.pacer.delay(next)
	}
	if inFlight == 0 && due > 0 {
		// Cancellation is picked up by the next submission attempt.
		_ = b.pacer.wait(ctx, next)
		return
	}
	d := p.interval
	if due > 0 && d > 0 && due < d {
		d = due
	}
	// In-flight work still has to be collected after cancellation.
	_ = p.sleep(context.Background(), d)
}

// checkoutAll takes every worker the batch can use for the rest of the run.
func (p polling) checkoutAll(ctx context.Context, b *batch) ([]slot, error) {
	size := b.pool.Size()
	if size > b.len() {
		size = b.len()
	}
	slots := make([]slot, 0, size)
	release := func() {
		for _, s := range slots {
			_ = b.pool.Release(s.w)
		}
	}
	for i := 0; i < size; i++ {
		w, err := b.pool.Acquire(ctx)
		if err != nil {
			release()
			return nil, fmt.Errorf("acquire worker: %w", err)
		}
		aw, ok := w.(worker.AsyncWorker)
		if !ok {
			_ = b.pool.Release(w)
			release()
			return nil, fmt.Errorf("%w: %s is %T", ErrNotAsync, w.ID(), w)
		}
		slots = append(slots, slot{w: aw})
	}
	return slots, nil
}

// sleep waits d, or yields the processor when d is not positive.
func (p polling) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
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

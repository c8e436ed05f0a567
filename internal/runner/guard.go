package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/torosent/poolbench/internal/worker"
)

// ErrWorkerPanic wraps a panic raised by a worker.
var ErrWorkerPanic = errors.New("worker panicked")

// The guards below turn worker panics into request failures so one bad
// request cannot take down the dispatch loop.

func guardExecute(ctx context.Context, w worker.Worker, id int) (rep worker.Report, err error) {
	defer recoverInto(&err)
	return w.Execute(ctx, id)
}

func guardSubmit(ctx context.Context, w worker.AsyncWorker, id int) (err error) {
	defer recoverInto(&err)
	return w.Submit(ctx, id)
}

func guardFinished(w worker.AsyncWorker) (done bool, err error) {
	defer recoverInto(&err)
	return w.IsFinished(), nil
}

func guardResult(w worker.AsyncWorker) (rep worker.Report, err error) {
	defer recoverInto(&err)
	return w.Result()
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
	}
}

// Package runner dispatches a planned batch of requests onto a worker pool.
//
// Two dispatch strategies share one pacing discipline. Request i is
// dispatched no earlier than its planned cumulative offset from the run
// start, and the wait before it is corrected for time already spent, so
// scheduling error does not accumulate.
//
// # Threaded
//
// One goroutine per request. The dispatch loop never waits for completions:
// it paces, spawns, and moves on. Each goroutine acquires a worker from the
// pool, calls Execute, releases the worker and records the outcome. Offered
// load is independent of achieved service rate.
//
// # Polling
//
// A single cooperative loop owns every pool slot. It fills the slots, then
// polls them round-robin and resubmits into each slot as it frees up. At
// most pool-size requests are ever in flight. Workers must implement
// [worker.AsyncWorker].
//
// # Failures
//
// Worker errors and panics are caught at the dispatch boundary. The request
// is marked [StateFailed], its report is left nil, and it still counts
// toward the batch total so the run terminates.
//
//	r, err := runner.New(runner.Options{
//		Plan:     plan,
//		Pool:     workers,
//		Mode:     runner.ModeThreaded,
//		Recorder: collector,
//	})
//	if err != nil {
//		return err
//	}
//	result, err := r.Run(ctx)
package runner

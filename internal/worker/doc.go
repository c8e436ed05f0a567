// Package worker defines the execution boundary of the harness.
//
// A [Worker] is one reusable execution context: it owns device-side
// resources, serves exactly one request at a time and lives for the whole
// run. Two calling conventions are supported:
//
//   - blocking: [Worker.Execute] returns once the work has completed
//   - non-blocking: [AsyncWorker.Submit] returns immediately and the caller
//     polls [AsyncWorker.IsFinished] before collecting [AsyncWorker.Result]
//
// Workers share process-wide device state through an explicit [Device]
// handle. The device is initialized lazily by the first worker that acquires
// a reference and torn down when the last worker releases it.
//
// [Simulated] is the built-in worker. It models a command-list submission as
// a sequence of timed stages executed on one of the device's queues, so the
// dispatch engine can be exercised without real hardware.
package worker

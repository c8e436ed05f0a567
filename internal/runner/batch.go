package runner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/torosent/poolbench/internal/tracing"
	"github.com/torosent/poolbench/internal/worker"
)

// batch is the shared state of one run handed to a DispatchStrategy.
// requests[i] is only touched by the goroutine currently owning request i.
type batch struct {
	requests []Request
	pacer    *pacer
	pool     Pool
	mode     Mode
	recorder Recorder
	tracer   trace.Tracer
	log      logrus.FieldLogger

	settled atomic.Int64
}

func newBatch(opt Options) *batch {
	offsets := opt.Plan.Offsets()
	requests := make([]Request, len(offsets))
	for i := range requests {
		requests[i] = Request{ID: i, Offset: offsets[i], State: StatePending}
	}
	return &batch{
		requests: requests,
		pacer:    newPacer(opt.Plan),
		pool:     opt.Pool,
		mode:     opt.Mode,
		recorder: opt.Recorder,
		tracer:   opt.Tracer,
		log:      opt.Logger,
	}
}

func (b *batch) len() int { return len(b.requests) }

// startSpan opens the request span and stamps the start time.
func (b *batch) startSpan(ctx context.Context, i int) (context.Context, trace.Span) {
	ctx, span := tracing.StartRequestSpan(ctx, b.tracer, i, string(b.mode))
	b.requests[i].Start = time.Now()
	return ctx, span
}

// finish moves request i to its terminal state, hands it to the recorder
// and closes its span. report must be nil when err is set. The end time is
// the worker's own completion stamp when it has one, so a late collection
// does not inflate latency.
func (b *batch) finish(i int, span trace.Span, report *worker.Report, err error) {
	req := &b.requests[i]
	req.End = time.Now()
	if req.Start.IsZero() {
		req.Start = req.End
	}
	if report != nil && !report.Finished.IsZero() &&
		!report.Finished.Before(req.Start) && report.Finished.Before(req.End) {
		req.End = report.Finished
	}
	req.Err = err
	if err != nil {
		req.State = StateFailed
		req.Report = nil
		b.log.WithFields(logrus.Fields{
			"request_id": i,
			"mode":       b.mode,
		}).WithError(err).Warn("request failed")
	} else {
		req.State = StateCompleted
		req.Report = report
	}
	b.recorder.Record(i, req.Start, req.End, req.Report, err)
	b.settled.Inc()

	if span != nil {
		var attrs []attribute.KeyValue
		if report != nil {
			attrs = append(attrs,
				tracing.AttrWorkerID.Int(int(report.WorkerID)),
				tracing.AttrQueueID.Int(report.QueueID),
			)
		}
		tracing.EndSpan(span, err, attrs...)
	}
}

// abandon fails every request from i onward without dispatching it.
func (b *batch) abandon(from int, err error) {
	if from >= b.len() {
		return
	}
	b.log.WithError(err).WithField("remaining", b.len()-from).Warn("dispatch stopped, abandoning remaining requests")
	now := time.Now()
	for i := from; i < b.len(); i++ {
		req := &b.requests[i]
		req.Start, req.End = now, now
		req.State = StateFailed
		req.Err = err
		b.recorder.Record(i, now, now, nil, err)
		b.settled.Inc()
	}
}

func (b *batch) result(start time.Time, elapsed time.Duration) Result {
	res := Result{
		Total:    b.len(),
		Start:    start,
		Duration: elapsed,
		Requests: b.requests,
	}
	for i := range b.requests {
		switch b.requests[i].State {
		case StateCompleted:
			res.Completed++
		case StateFailed:
			res.Failed++
		}
	}
	return res
}

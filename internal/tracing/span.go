package tracing

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRequestID = attribute.Key("poolbench.request_id")
	AttrMode      = attribute.Key("poolbench.mode")
	AttrWorkerID  = attribute.Key("poolbench.worker_id")
	AttrQueueID   = attribute.Key("poolbench.queue_id")
)

// StartRequestSpan starts the span covering one dispatched request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, requestID int, mode string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "request "+strconv.Itoa(requestID),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		AttrRequestID.Int(requestID),
		AttrMode.String(mode),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

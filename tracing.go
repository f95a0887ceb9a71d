package resilience

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// spanName is the span emitted for one logical call through the client.
const spanName = "outbound.execute"

// noopTracer is used when no tracer is configured so span operations need
// no guards on the hot path.
var noopTracer = tracenoop.NewTracerProvider().Tracer("")

// startSpan starts the span for one logical call, attaching the
// deduplication key and request ID when present.
func (c *Client) startSpan(ctx context.Context, key, requestID string) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, 2)
	if key != "" {
		attrs = append(attrs, attribute.String("outbound.key", key))
	}
	if requestID != "" {
		attrs = append(attrs, attribute.String("outbound.request_id", requestID))
	}

	return c.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// endSpan finalizes the span, recording the error when the call failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// addSpanEvent attaches an event to the span active in ctx, if any.
func addSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

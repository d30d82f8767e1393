package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/couchcryptid/quake-catalog-loader"

// Spans wraps run and per-event stage spans. The zero value traces through
// the global provider, which is a no-op until InitTracing installs one.
type Spans struct {
	tracer trace.Tracer
}

// NewSpans traces through tp, or the global provider when tp is nil.
func NewSpans(tp trace.TracerProvider) Spans {
	if tp == nil {
		return Spans{}
	}
	return Spans{tracer: tp.Tracer(tracerName)}
}

func (s Spans) t() trace.Tracer {
	if s.tracer == nil {
		return otel.Tracer(tracerName)
	}
	return s.tracer
}

// StartRun starts the span covering one batch or stream cycle.
func (s Spans) StartRun(ctx context.Context, runID string, productType string) (context.Context, trace.Span) {
	return s.t().Start(ctx, "loader.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("product.type", productType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartStage starts a child span for one stage of one event,
// e.g. "associate", "render" or "dispatch".
func (s Spans) StartStage(ctx context.Context, stage, eventID string) (context.Context, trace.Span) {
	return s.t().Start(ctx, "loader."+stage,
		trace.WithAttributes(attribute.String("event.id", eventID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// End completes a span, recording err when non-nil.
func (Spans) End(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Event adds a named event to the span in ctx.
func (Spans) Event(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

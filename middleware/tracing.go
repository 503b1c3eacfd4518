package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Bondifuzz/api-gateway/task"
)

// tracerName is the instrumentation scope name for gateway tracing.
const tracerName = "github.com/Bondifuzz/api-gateway"

// Tracing returns middleware that wraps the dispatch round trip in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: gateway.task.id, gateway.task.kind,
// gateway.triple.language, gateway.triple.engine, gateway.triple.image.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, s *task.Submission, next Handler) error {
		ctx, span := tracer.Start(ctx, "gateway.task.submit",
			trace.WithAttributes(
				attribute.String("gateway.task.id", s.ID.String()),
				attribute.String("gateway.task.kind", s.Kind),
				attribute.String("gateway.triple.language", s.Triple.Language),
				attribute.String("gateway.triple.engine", s.Triple.Engine),
				attribute.String("gateway.triple.image", s.Triple.Image),
				attribute.Bool("gateway.task.background", s.Background),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}

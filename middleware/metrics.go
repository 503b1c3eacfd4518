package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Bondifuzz/api-gateway/task"
)

// meterName is the instrumentation scope name for gateway metrics.
const meterName = "github.com/Bondifuzz/api-gateway"

// Metrics returns middleware that records per-submission metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - gateway.submission.duration (Float64Histogram): round-trip time in
//     seconds, with attributes: kind, engine, status ("ok" or "error")
//   - gateway.submission.total (Int64Counter): total submissions,
//     with attributes: kind, engine, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"gateway.submission.duration",
		metric.WithDescription("Round-trip time of task submissions in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	total, tErr := meter.Int64Counter(
		"gateway.submission.total",
		metric.WithDescription("Total number of task submissions"),
		metric.WithUnit("{submission}"),
	)
	_ = tErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, s *task.Submission, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("kind", s.Kind),
			attribute.String("engine", s.Triple.Engine),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		total.Add(ctx, 1, attrs)

		return err
	}
}

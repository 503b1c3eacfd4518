package gateway

import (
	"log/slog"
	"time"

	"github.com/Bondifuzz/api-gateway/backoff"
	"github.com/Bondifuzz/api-gateway/middleware"
	"github.com/Bondifuzz/api-gateway/store"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) error {
		d.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the submission record store. Records are bookkeeping
// only: store failures are logged, never surfaced to callers.
func WithStore(s store.Store) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}

// WithBackoff sets the delay strategy between background retries.
func WithBackoff(s backoff.Strategy) Option {
	return func(d *Dispatcher) error {
		d.strategy = s
		return nil
	}
}

// WithMiddleware appends middleware wrapping every dispatch round trip.
// Middleware run in the order given, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(d *Dispatcher) error {
		d.chain = append(d.chain, mws...)
		return nil
	}
}

// WithInteractiveTimeout sets the per-call deadline for SubmitJob.
func WithInteractiveTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.InteractiveTimeout = timeout
		return nil
	}
}

// WithBackgroundTimeout sets the per-call deadline for SubmitBackground.
func WithBackgroundTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.BackgroundTimeout = timeout
		return nil
	}
}

// WithMaxRetries bounds background retries after transport errors.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) error {
		d.config.MaxRetries = n
		return nil
	}
}

// WithSweepInterval sets the correlation broker's deadline sweep period.
func WithSweepInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.SweepInterval = interval
		return nil
	}
}

// Package worker provides the loopback worker harness: a Registry that
// maps command kinds to typed handlers, and a Pool that consumes command
// envelopes from the outbound topic and publishes result envelopes back.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Bondifuzz/api-gateway/backoff"
	"github.com/Bondifuzz/api-gateway/id"
	"github.com/Bondifuzz/api-gateway/mq"
)

// commandSource is the slice of mq.CommandConsumer the pool needs.
// Tests substitute a fake.
type commandSource interface {
	Run(ctx context.Context, handler mq.CommandHandler) error
}

// resultSink is the slice of mq.ResultProducer the pool needs.
type resultSink interface {
	Publish(ctx context.Context, res mq.ResultEnvelope) error
}

// Pool manages a set of concurrent goroutines that consume command
// envelopes, execute registered handlers, and publish result envelopes
// echoing the command's correlation id.
type Pool struct {
	source      commandSource
	sink        resultSink
	registry    *Registry
	limits      *Limits
	concurrency int
	reconnect   backoff.Strategy
	workerID    id.WorkerID
	logger      *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent consumer goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithLimits sets per-kind rate limiting and concurrency control.
func WithLimits(l *Limits) PoolOption {
	return func(p *Pool) { p.limits = l }
}

// WithReconnectBackoff sets the delay strategy between consumer restarts
// after a transport failure.
func WithReconnectBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.reconnect = s }
}

// NewPool creates a worker pool over the given worker-side channels.
func NewPool(channels *mq.WorkerChannels, registry *Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	return newPool(channels.Commands, channels.Results, registry, logger, opts...)
}

func newPool(source commandSource, sink resultSink, registry *Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		source:      source,
		sink:        sink,
		registry:    registry,
		concurrency: 4,
		reconnect:   backoff.DefaultStrategy(),
		workerID:    id.NewWorkerID(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the consumer goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("kinds", p.registry.Kinds()),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.consumeLoop(ctx)
	}

	return nil
}

// Stop signals all consumers to stop and waits for them to finish, or
// until the context deadline expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}

// consumeLoop is run by each consumer goroutine. The command consumer is
// restarted with backoff after transport failures.
func (p *Pool) consumeLoop(ctx context.Context) {
	defer p.wg.Done()

	attempt := 0
	for {
		err := p.source.Run(ctx, func(cmd mq.CommandEnvelope) error {
			return p.handle(ctx, cmd)
		})
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := p.reconnect.Delay(attempt)
		p.logger.Error("command consumer failed, restarting",
			slog.String("worker_id", p.workerID.String()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// handle processes one command envelope. A nil return acknowledges the
// command on the inbound topic.
func (p *Pool) handle(ctx context.Context, cmd mq.CommandEnvelope) error {
	// Commands whose deadline already passed are answered with a timeout
	// result without invoking the handler. The gateway side has given up
	// on the correlation id, but a worker that restarts mid-backlog must
	// still drain them.
	if cmd.Expired(time.Now()) {
		return p.publish(ctx, mq.ResultEnvelope{
			CorrelationID: cmd.CorrelationID,
			Status:        mq.StatusTimeout,
			Error:         "deadline exceeded before execution",
		})
	}

	if p.limits != nil {
		if err := p.acquire(ctx, cmd.Kind); err != nil {
			return err
		}
		defer p.limits.Release(cmd.Kind)
	}

	handler, ok := p.registry.Get(cmd.Kind)
	if !ok {
		p.logger.Warn("no handler for command kind",
			slog.String("kind", cmd.Kind),
			slog.String("correlation_id", cmd.CorrelationID.String()),
		)
		return p.publish(ctx, mq.ResultEnvelope{
			CorrelationID: cmd.CorrelationID,
			Status:        mq.StatusFailed,
			Error:         fmt.Sprintf("no handler registered for kind %q", cmd.Kind),
		})
	}

	payload, execErr := p.execute(ctx, handler, cmd)
	if execErr != nil {
		return p.publish(ctx, mq.ResultEnvelope{
			CorrelationID: cmd.CorrelationID,
			Status:        mq.StatusFailed,
			Error:         execErr.Error(),
		})
	}

	return p.publish(ctx, mq.ResultEnvelope{
		CorrelationID: cmd.CorrelationID,
		Status:        mq.StatusOk,
		Payload:       payload,
	})
}

// execute runs the handler with panic recovery. A panicking handler
// produces a failed result instead of taking the consumer down.
func (p *Pool) execute(ctx context.Context, handler HandlerFunc, cmd mq.CommandEnvelope) (payload json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked",
				slog.String("kind", cmd.Kind),
				slog.String("correlation_id", cmd.CorrelationID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler for kind %q panicked: %v", cmd.Kind, r)
		}
	}()
	return handler(ctx, cmd.Payload)
}

// acquire blocks until the per-kind limits admit the command or the
// context is cancelled.
func (p *Pool) acquire(ctx context.Context, kind string) error {
	for {
		if p.limits.Acquire(kind) {
			return nil
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pool) publish(ctx context.Context, res mq.ResultEnvelope) error {
	if err := p.sink.Publish(ctx, res); err != nil {
		p.logger.Error("publish result failed",
			slog.String("correlation_id", res.CorrelationID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

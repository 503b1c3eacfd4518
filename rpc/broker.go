// Package rpc turns the fire-and-forget channel pair into synchronous
// request/response calls. A Broker matches inbound result envelopes to
// pending outbound requests by correlation id.
//
// Concurrency model: the pending-request table is the only mutable shared
// state, guarded by one mutex. Every mutation (insert on Call, remove on
// match, timeout, or cancellation) is atomic with respect to concurrent
// deliveries, so a timeout firing and a result arriving simultaneously
// can never both resolve the same request. Timeouts are enforced by a
// shared sweep loop, not by per-caller timers.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Bondifuzz/api-gateway/mq"
)

// Errors returned by Call.
var (
	// ErrTimeout means the deadline elapsed with no matching result.
	// Assumed to indicate a worker-side stall: callers must not retry.
	ErrTimeout = errors.New("rpc: call timed out")

	// ErrCancelled means the caller's context was cancelled. The
	// in-flight command is not retracted; its eventual result is
	// discarded as orphaned.
	ErrCancelled = errors.New("rpc: call cancelled")

	// ErrClosed means the broker has shut down.
	ErrClosed = errors.New("rpc: broker closed")
)

// Publisher is the outbound half of the channel pair the broker needs.
type Publisher interface {
	Publish(ctx context.Context, cmd mq.CommandEnvelope) error
}

// outcome is what a waiter receives: exactly one of res or err.
type outcome struct {
	res mq.ResultEnvelope
	err error
}

// pending is the bookkeeping record for one in-flight call. It lives in
// the broker's table from publish until match, timeout, or cancellation.
type pending struct {
	ch       chan outcome
	deadline time.Time
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithSweepInterval sets how often the sweep loop checks deadlines.
// Effective timeout precision is bounded by this interval.
func WithSweepInterval(d time.Duration) Option {
	return func(b *Broker) { b.sweepInterval = d }
}

// Broker matches asynchronous results to pending requests.
type Broker struct {
	publisher     Publisher
	logger        *slog.Logger
	sweepInterval time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]*pending
	closed  bool

	orphaned atomic.Uint64
}

// New creates a Broker publishing through the given outbound channel.
// Run must be started for timeouts to fire.
func New(publisher Publisher, opts ...Option) *Broker {
	b := &Broker{
		publisher:     publisher,
		logger:        slog.Default(),
		sweepInterval: 100 * time.Millisecond,
		pending:       make(map[uuid.UUID]*pending),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Call publishes a command and suspends the caller until a matching
// result arrives, the timeout elapses, or ctx is cancelled. Other
// concurrent callers are not blocked while this one waits.
//
// The returned error is nil (result delivered), ErrTimeout, ErrCancelled,
// ErrClosed, or a *mq.TransportError from the publish.
func (b *Broker) Call(ctx context.Context, kind string, payload json.RawMessage, timeout time.Duration) (mq.ResultEnvelope, error) {
	correlationID := uuid.New()
	now := time.Now().UTC()

	cmd := mq.CommandEnvelope{
		CorrelationID: correlationID,
		Kind:          kind,
		Payload:       payload,
		CreatedAt:     now,
		Deadline:      now.Add(timeout),
	}

	// Buffered so the delivering side never blocks on a waiter.
	ch := make(chan outcome, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return mq.ResultEnvelope{}, ErrClosed
	}
	b.pending[correlationID] = &pending{ch: ch, deadline: cmd.Deadline}
	b.mu.Unlock()

	if err := b.publisher.Publish(ctx, cmd); err != nil {
		b.remove(correlationID)
		return mq.ResultEnvelope{}, err
	}

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		b.remove(correlationID)
		return mq.ResultEnvelope{}, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// Deliver hands an inbound result to its waiter. Results with no pending
// request (already timed out, cancelled, or duplicate delivery) are
// discarded as orphaned: logged at low severity, counted, never an error.
// Deliver always returns nil so the consuming channel acknowledges the
// message; it exists to satisfy mq.ResultHandler.
func (b *Broker) Deliver(res mq.ResultEnvelope) error {
	b.mu.Lock()
	p, ok := b.pending[res.CorrelationID]
	if ok {
		delete(b.pending, res.CorrelationID)
	}
	b.mu.Unlock()

	if !ok {
		b.orphaned.Add(1)
		b.logger.Debug("discarding orphaned result",
			slog.String("correlation_id", res.CorrelationID.String()),
			slog.String("status", string(res.Status)),
		)
		return nil
	}

	p.ch <- outcome{res: res}
	return nil
}

// Run drives the deadline sweep until ctx is cancelled, then flushes all
// remaining pending requests as cancelled and returns ctx.Err().
func (b *Broker) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return ctx.Err()
		case <-ticker.C:
			b.sweep(time.Now().UTC())
		}
	}
}

// sweep expires every pending request whose deadline has passed.
func (b *Broker) sweep(now time.Time) {
	var expired []*pending

	b.mu.Lock()
	for correlationID, p := range b.pending {
		if now.After(p.deadline) {
			delete(b.pending, correlationID)
			expired = append(expired, p)
		}
	}
	b.mu.Unlock()

	for _, p := range expired {
		p.ch <- outcome{err: ErrTimeout}
	}
}

// shutdown flushes all pending requests as cancelled and rejects further
// calls.
func (b *Broker) shutdown() {
	b.mu.Lock()
	flushed := make([]*pending, 0, len(b.pending))
	for correlationID, p := range b.pending {
		delete(b.pending, correlationID)
		flushed = append(flushed, p)
	}
	b.closed = true
	b.mu.Unlock()

	for _, p := range flushed {
		p.ch <- outcome{err: ErrClosed}
	}

	if len(flushed) > 0 {
		b.logger.Info("flushed pending requests on shutdown",
			slog.Int("count", len(flushed)),
		)
	}
}

// remove deletes the bookkeeping entry for a cancelled call. Idempotent:
// the entry may already be gone if a result or timeout won the race.
func (b *Broker) remove(correlationID uuid.UUID) {
	b.mu.Lock()
	delete(b.pending, correlationID)
	b.mu.Unlock()
}

// PendingCount returns the number of in-flight requests.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// OrphanedCount returns how many results were discarded as orphaned.
func (b *Broker) OrphanedCount() uint64 {
	return b.orphaned.Load()
}

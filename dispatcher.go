package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bondifuzz/api-gateway/backoff"
	"github.com/Bondifuzz/api-gateway/catalog"
	"github.com/Bondifuzz/api-gateway/id"
	"github.com/Bondifuzz/api-gateway/middleware"
	"github.com/Bondifuzz/api-gateway/mq"
	"github.com/Bondifuzz/api-gateway/resolve"
	"github.com/Bondifuzz/api-gateway/rpc"
	"github.com/Bondifuzz/api-gateway/store"
	"github.com/Bondifuzz/api-gateway/task"
)

// commandPublisher is the outbound half of the channel pair the
// dispatcher needs. Tests substitute a fake.
type commandPublisher interface {
	Publish(ctx context.Context, cmd mq.CommandEnvelope) error
	Close() error
}

// resultConsumer is the inbound half of the channel pair.
type resultConsumer interface {
	Run(ctx context.Context, handler mq.ResultHandler) error
	Close() error
}

// commandPayload is the body embedded in every command envelope: the
// resolved triple plus the caller's opaque job payload.
type commandPayload struct {
	Triple resolve.Triple  `json:"triple"`
	Job    json.RawMessage `json:"job,omitempty"`
}

// Dispatcher is the only component callers interact with. It validates
// submissions against the catalog, publishes command envelopes, and
// suspends callers until the matching result arrives.
type Dispatcher struct {
	config   Config
	logger   *slog.Logger
	catalog  *catalog.Catalog
	resolver *resolve.Resolver
	broker   *rpc.Broker
	strategy backoff.Strategy
	chain    []middleware.Middleware
	store    store.Store

	publisher commandPublisher
	consumer  resultConsumer
}

// New creates a Dispatcher over the gateway-side channel pair.
func New(cat *catalog.Catalog, channels *mq.ChannelPair, opts ...Option) (*Dispatcher, error) {
	if channels == nil {
		return nil, ErrNoChannels
	}
	return newDispatcher(cat, channels.Commands, channels.Results, opts...)
}

func newDispatcher(cat *catalog.Catalog, publisher commandPublisher, consumer resultConsumer, opts ...Option) (*Dispatcher, error) {
	if cat == nil {
		return nil, ErrNoCatalog
	}

	d := &Dispatcher{
		config:    DefaultConfig(),
		logger:    slog.Default(),
		catalog:   cat,
		strategy:  backoff.DefaultStrategy(),
		publisher: publisher,
		consumer:  consumer,
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	d.resolver = resolve.New(cat)
	d.broker = rpc.New(publisher,
		rpc.WithLogger(d.logger),
		rpc.WithSweepInterval(d.config.SweepInterval),
	)
	return d, nil
}

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

// Catalog returns the read-only catalog snapshot.
func (d *Dispatcher) Catalog() *catalog.Catalog { return d.catalog }

// Config returns a copy of the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }

// Run drives the result consumer loop and the broker's deadline sweep
// until ctx is cancelled. The consumer is restarted with backoff after
// transport failures. Cancellation is a clean shutdown: pending calls
// are flushed and Run returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.broker.Run(ctx)
	})

	g.Go(func() error {
		attempt := 0
		for {
			err := d.consumer.Run(ctx, d.broker.Deliver)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			attempt++
			delay := d.strategy.Delay(attempt)
			d.logger.Error("result consumer failed, restarting",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases both transport channels. The first error wins.
func (d *Dispatcher) Close() error {
	errPublisher := d.publisher.Close()
	errConsumer := d.consumer.Close()
	if errPublisher != nil {
		return errPublisher
	}
	return errConsumer
}

// SubmitJob dispatches an interactive submission. Rejections are
// returned immediately without touching the queue; transport errors are
// surfaced without retry.
func (d *Dispatcher) SubmitJob(ctx context.Context, req task.Request) (task.Result, error) {
	return d.submit(ctx, req, d.config.InteractiveTimeout, false)
}

// SubmitBackground dispatches a non-interactive submission with a longer
// deadline. Transport errors are retried up to MaxRetries times with
// backoff; timeouts and rejections are never retried.
func (d *Dispatcher) SubmitBackground(ctx context.Context, req task.Request) (task.Result, error) {
	return d.submit(ctx, req, d.config.BackgroundTimeout, true)
}

func (d *Dispatcher) submit(ctx context.Context, req task.Request, timeout time.Duration, background bool) (task.Result, error) {
	triple, rej := d.resolver.Resolve(req.Language, req.Engine, req.Image)
	if rej != nil {
		return task.Result{}, rej
	}

	now := time.Now().UTC()
	sub := &task.Submission{
		ID:         id.NewTaskID(),
		Kind:       req.Kind,
		Triple:     triple,
		State:      task.StatePending,
		Background: background,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	d.record(ctx, sub)

	payload, err := json.Marshal(commandPayload{Triple: triple, Job: req.Payload})
	if err != nil {
		return task.Result{}, fmt.Errorf("gateway: marshal command payload: %w", err)
	}

	var result task.Result
	handler := func(ctx context.Context) error {
		res, callErr := d.call(ctx, sub, payload, timeout, background)
		if callErr != nil {
			return callErr
		}
		result = task.Result{Status: res.Status, Payload: res.Payload, Error: res.Error}
		return nil
	}

	err = middleware.Chain(d.chain...)(ctx, sub, handler)
	d.finish(ctx, sub, result, err)
	if err != nil {
		return task.Result{}, err
	}
	return result, nil
}

// call performs the broker round trip, retrying transport errors for
// background submissions. Timeouts are assumed to indicate a worker-side
// stall and are never retried.
func (d *Dispatcher) call(ctx context.Context, sub *task.Submission, payload json.RawMessage, timeout time.Duration, background bool) (mq.ResultEnvelope, error) {
	retry := 0
	for {
		res, err := d.broker.Call(ctx, sub.Kind, payload, timeout)
		sub.Attempts++
		if err == nil {
			return res, nil
		}

		var terr *mq.TransportError
		if !background || !errors.As(err, &terr) {
			return mq.ResultEnvelope{}, err
		}

		if retry >= d.config.MaxRetries {
			return mq.ResultEnvelope{}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, sub.Attempts, err)
		}

		retry++
		delay := d.strategy.Delay(retry)
		d.logger.Warn("transport error, retrying submission",
			slog.String("task_id", sub.ID.String()),
			slog.String("kind", sub.Kind),
			slog.Int("retry", retry),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return mq.ResultEnvelope{}, fmt.Errorf("gateway: retry wait: %w", ctx.Err())
		}
	}
}

// record saves the initial submission record. Bookkeeping only: failures
// are logged, never surfaced.
func (d *Dispatcher) record(ctx context.Context, sub *task.Submission) {
	if d.store == nil {
		return
	}
	if err := d.store.Save(context.WithoutCancel(ctx), sub); err != nil {
		d.logger.Warn("failed to record submission",
			slog.String("task_id", sub.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// finish updates the submission record with the terminal state.
func (d *Dispatcher) finish(ctx context.Context, sub *task.Submission, result task.Result, err error) {
	if d.store == nil {
		return
	}

	now := time.Now().UTC()
	switch {
	case err == nil:
		switch result.Status {
		case mq.StatusOk:
			sub.State = task.StateCompleted
		case mq.StatusTimeout:
			sub.State = task.StateTimedOut
			sub.LastError = result.Error
		default:
			sub.State = task.StateFailed
			sub.LastError = result.Error
		}
		sub.CompletedAt = &now
	case errors.Is(err, rpc.ErrTimeout):
		sub.State = task.StateTimedOut
		sub.LastError = err.Error()
	default:
		sub.State = task.StateFailed
		sub.LastError = err.Error()
	}
	sub.UpdatedAt = now

	if uerr := d.store.Update(context.WithoutCancel(ctx), sub); uerr != nil {
		d.logger.Warn("failed to update submission record",
			slog.String("task_id", sub.ID.String()),
			slog.String("error", uerr.Error()),
		)
	}
}

// Package mq implements the channel pair: durable, at-least-once delivery
// of command envelopes to workers and result envelopes back to the
// gateway, over Kafka topics.
//
// Outbound (producing) and inbound (consuming) channels are fully
// independent: a slow or broken consumer never blocks producers and vice
// versa. The consuming side acknowledges a message only after its handler
// has returned, so an unprocessed message is redelivered after a crash.
package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Config describes how to connect the channel pair to a Kafka cluster.
type Config struct {
	Brokers []string

	// CommandTopic carries command envelopes from the gateway to workers.
	CommandTopic string
	// ResultTopic carries result envelopes from workers to the gateway.
	ResultTopic string

	// GroupID is the consumer group for the inbound channel.
	GroupID string

	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

func (cfg *Config) validate() error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("mq: at least one broker must be provided")
	}
	if cfg.CommandTopic == "" {
		return fmt.Errorf("mq: command topic must be provided")
	}
	if cfg.ResultTopic == "" {
		return fmt.Errorf("mq: result topic must be provided")
	}
	return nil
}

func (cfg *Config) withDefaults() Config {
	out := *cfg
	if out.GroupID == "" {
		out.GroupID = "api-gateway"
	}
	if out.MinBytes == 0 {
		out.MinBytes = 1
	}
	if out.MaxBytes == 0 {
		out.MaxBytes = 10 * 1024 * 1024
	}
	if out.MaxWait == 0 {
		out.MaxWait = time.Second
	}
	return out
}

// messageWriter is the slice of kafka-go's Writer the producing channels
// need. Tests substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// messageFetcher is the slice of kafka-go's Reader the consuming channels
// need. FetchMessage and CommitMessages are split so acknowledgement can
// happen strictly after the handler returns.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

func newWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
	}
}

func newReader(cfg Config, topic string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})
}

// ──────────────────────────────────────────────────
// Producing channels
// ──────────────────────────────────────────────────

// CommandProducer publishes command envelopes to the outbound topic.
type CommandProducer struct {
	writer messageWriter
}

func newCommandProducer(writer messageWriter) *CommandProducer {
	return &CommandProducer{writer: writer}
}

// Publish writes the command to the broker. Broker failures are returned
// as *TransportError.
func (p *CommandProducer) Publish(ctx context.Context, cmd CommandEnvelope) error {
	msg, err := encodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return &TransportError{Op: "publish command", Err: err}
	}
	return nil
}

// Close releases the underlying writer.
func (p *CommandProducer) Close() error {
	return p.writer.Close()
}

// ResultProducer publishes result envelopes to the inbound topic. It is
// the worker-side mirror of CommandProducer.
type ResultProducer struct {
	writer messageWriter
}

func newResultProducer(writer messageWriter) *ResultProducer {
	return &ResultProducer{writer: writer}
}

// Publish writes the result to the broker. Broker failures are returned
// as *TransportError.
func (p *ResultProducer) Publish(ctx context.Context, res ResultEnvelope) error {
	msg, err := encodeResult(res)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return &TransportError{Op: "publish result", Err: err}
	}
	return nil
}

// Close releases the underlying writer.
func (p *ResultProducer) Close() error {
	return p.writer.Close()
}

// ──────────────────────────────────────────────────
// Consuming channels
// ──────────────────────────────────────────────────

// ResultHandler processes one inbound result envelope. A nil return
// acknowledges the message; an error leaves it unacknowledged for
// redelivery.
type ResultHandler func(res ResultEnvelope) error

// ResultConsumer reads result envelopes from the inbound topic and hands
// them to a handler with at-least-once semantics.
type ResultConsumer struct {
	reader messageFetcher
	logger *slog.Logger
}

func newResultConsumer(reader messageFetcher, logger *slog.Logger) *ResultConsumer {
	return &ResultConsumer{reader: reader, logger: logger}
}

// Run consumes until ctx is cancelled. Messages are committed only after
// the handler returns nil. Undecodable messages are committed and skipped
// so a poison message cannot wedge the channel.
func (c *ResultConsumer) Run(ctx context.Context, handler ResultHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return &TransportError{Op: "fetch result", Err: err}
		}

		res, decodeErr := decodeResult(msg)
		if decodeErr != nil {
			c.logger.Warn("skipping undecodable result message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", decodeErr.Error()),
			)
			c.commit(ctx, msg)
			continue
		}

		if handlerErr := handler(res); handlerErr != nil {
			// Not committed: the broker will redeliver.
			c.logger.Error("result handler failed, message will be redelivered",
				slog.String("correlation_id", res.CorrelationID.String()),
				slog.String("error", handlerErr.Error()),
			)
			continue
		}

		c.commit(ctx, msg)
	}
}

func (c *ResultConsumer) commit(ctx context.Context, msg kafkago.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.Error("commit failed",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close releases the underlying reader.
func (c *ResultConsumer) Close() error {
	return c.reader.Close()
}

// CommandHandler processes one inbound command envelope on the worker
// side. Same acknowledgement contract as ResultHandler.
type CommandHandler func(cmd CommandEnvelope) error

// CommandConsumer reads command envelopes from the outbound topic. It is
// the worker-side mirror of ResultConsumer.
type CommandConsumer struct {
	reader messageFetcher
	logger *slog.Logger
}

func newCommandConsumer(reader messageFetcher, logger *slog.Logger) *CommandConsumer {
	return &CommandConsumer{reader: reader, logger: logger}
}

// Run consumes until ctx is cancelled, with the same commit discipline as
// ResultConsumer.Run.
func (c *CommandConsumer) Run(ctx context.Context, handler CommandHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return &TransportError{Op: "fetch command", Err: err}
		}

		cmd, decodeErr := decodeCommand(msg)
		if decodeErr != nil {
			c.logger.Warn("skipping undecodable command message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", decodeErr.Error()),
			)
			c.commit(ctx, msg)
			continue
		}

		if handlerErr := handler(cmd); handlerErr != nil {
			c.logger.Error("command handler failed, message will be redelivered",
				slog.String("correlation_id", cmd.CorrelationID.String()),
				slog.String("kind", cmd.Kind),
				slog.String("error", handlerErr.Error()),
			)
			continue
		}

		c.commit(ctx, msg)
	}
}

func (c *CommandConsumer) commit(ctx context.Context, msg kafkago.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.Error("commit failed",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close releases the underlying reader.
func (c *CommandConsumer) Close() error {
	return c.reader.Close()
}

// ──────────────────────────────────────────────────
// Pairs
// ──────────────────────────────────────────────────

// ChannelPair is the gateway-side transport boundary: commands out,
// results in.
type ChannelPair struct {
	Commands *CommandProducer
	Results  *ResultConsumer
}

// NewChannelPair builds the gateway-side channel pair from configuration.
func NewChannelPair(cfg Config, logger *slog.Logger) (*ChannelPair, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &ChannelPair{
		Commands: newCommandProducer(newWriter(cfg.Brokers, cfg.CommandTopic)),
		Results:  newResultConsumer(newReader(cfg, cfg.ResultTopic), logger),
	}, nil
}

// Close releases both channels. The first error wins.
func (p *ChannelPair) Close() error {
	errProducer := p.Commands.Close()
	errConsumer := p.Results.Close()
	if errProducer != nil {
		return errProducer
	}
	return errConsumer
}

// WorkerChannels is the worker-side transport boundary: commands in,
// results out.
type WorkerChannels struct {
	Commands *CommandConsumer
	Results  *ResultProducer
}

// NewWorkerChannels builds the worker-side channels from configuration.
// GroupID should name the worker pool so multiple workers share the
// command topic as a consumer group.
func NewWorkerChannels(cfg Config, logger *slog.Logger) (*WorkerChannels, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &WorkerChannels{
		Commands: newCommandConsumer(newReader(cfg, cfg.CommandTopic), logger),
		Results:  newResultProducer(newWriter(cfg.Brokers, cfg.ResultTopic)),
	}, nil
}

// Close releases both channels. The first error wins.
func (w *WorkerChannels) Close() error {
	errConsumer := w.Commands.Close()
	errProducer := w.Results.Close()
	if errConsumer != nil {
		return errConsumer
	}
	return errProducer
}

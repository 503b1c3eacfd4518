package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Header keys attached to every message for routing and tracing without
// decoding the body.
const (
	headerCorrelationID = "correlation-id"
	headerKind          = "kind"
)

// ResultStatus is the worker-reported outcome of a command.
type ResultStatus string

const (
	// StatusOk means the worker processed the command successfully.
	StatusOk ResultStatus = "Ok"
	// StatusFailed means the worker processed the command and it failed.
	StatusFailed ResultStatus = "Failed"
	// StatusTimeout means the worker refused the command because its
	// deadline had already passed when it was picked up.
	StatusTimeout ResultStatus = "Timeout"
)

// CommandEnvelope is the unit published to the outbound topic. The
// correlation id ties the eventual result back to the pending request
// that produced the command.
type CommandEnvelope struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Deadline      time.Time       `json:"deadline"`
}

// Expired reports whether the command's deadline has passed.
func (c CommandEnvelope) Expired(now time.Time) bool {
	return !c.Deadline.IsZero() && now.After(c.Deadline)
}

// ResultEnvelope is the unit received on the inbound topic, produced by a
// worker and consumed exactly once by the correlation broker.
type ResultEnvelope struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Status        ResultStatus    `json:"status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}

func encodeCommand(cmd CommandEnvelope) (kafkago.Message, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("mq: marshal command: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(cmd.CorrelationID.String()),
		Value: body,
		Time:  time.Now(),
		Headers: []kafkago.Header{
			{Key: headerCorrelationID, Value: []byte(cmd.CorrelationID.String())},
			{Key: headerKind, Value: []byte(cmd.Kind)},
		},
	}, nil
}

func decodeCommand(msg kafkago.Message) (CommandEnvelope, error) {
	var cmd CommandEnvelope
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return CommandEnvelope{}, fmt.Errorf("mq: decode command: %w", err)
	}
	if cmd.CorrelationID == uuid.Nil {
		return CommandEnvelope{}, fmt.Errorf("mq: command message missing correlation id")
	}
	if cmd.Kind == "" {
		return CommandEnvelope{}, fmt.Errorf("mq: command message missing kind")
	}
	return cmd, nil
}

func encodeResult(res ResultEnvelope) (kafkago.Message, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("mq: marshal result: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(res.CorrelationID.String()),
		Value: body,
		Time:  time.Now(),
		Headers: []kafkago.Header{
			{Key: headerCorrelationID, Value: []byte(res.CorrelationID.String())},
		},
	}, nil
}

func decodeResult(msg kafkago.Message) (ResultEnvelope, error) {
	var res ResultEnvelope
	if err := json.Unmarshal(msg.Value, &res); err != nil {
		return ResultEnvelope{}, fmt.Errorf("mq: decode result: %w", err)
	}
	if res.CorrelationID == uuid.Nil {
		return ResultEnvelope{}, fmt.Errorf("mq: result message missing correlation id")
	}
	switch res.Status {
	case StatusOk, StatusFailed, StatusTimeout:
	default:
		return ResultEnvelope{}, fmt.Errorf("mq: unknown result status %q", res.Status)
	}
	return res, nil
}

// Package task defines the submission types shared by the dispatcher,
// middleware, and the submission store.
package task

import (
	"encoding/json"
	"time"

	"github.com/Bondifuzz/api-gateway/id"
	"github.com/Bondifuzz/api-gateway/mq"
	"github.com/Bondifuzz/api-gateway/resolve"
)

// Request is what callers hand to the dispatcher: the compatibility
// inputs plus an opaque job payload. Image may be empty to request
// implicit selection.
type Request struct {
	Language string          `json:"language"`
	Engine   string          `json:"engine"`
	Image    string          `json:"image,omitempty"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Result is the worker-reported outcome surfaced to the caller.
type Result struct {
	Status  mq.ResultStatus `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// State is the lifecycle state of a recorded submission.
type State string

const (
	// StatePending means the command is in flight.
	StatePending State = "pending"
	// StateCompleted means a worker reported Ok.
	StateCompleted State = "completed"
	// StateFailed means a worker reported Failed, the transport gave up,
	// or the call was cancelled.
	StateFailed State = "failed"
	// StateTimedOut means no result arrived before the deadline.
	StateTimedOut State = "timed_out"
)

// Submission is the bookkeeping record for one dispatched command.
// Records are written for observability only: no dispatch decision ever
// reads them back.
type Submission struct {
	ID          id.TaskID      `json:"id"`
	Kind        string         `json:"kind"`
	Triple      resolve.Triple `json:"triple"`
	State       State          `json:"state"`
	Background  bool           `json:"background"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

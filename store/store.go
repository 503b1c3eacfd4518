// Package store defines the submission persistence interface. Submission
// records are observability bookkeeping: the dispatcher writes them and
// operators read them, but no dispatch decision ever depends on a read.
// Backends: Redis and Memory.
package store

import (
	"context"
	"errors"

	"github.com/Bondifuzz/api-gateway/id"
	"github.com/Bondifuzz/api-gateway/task"
)

var (
	// ErrNotFound is returned when no submission exists for the given id.
	ErrNotFound = errors.New("store: submission not found")

	// ErrAlreadyExists is returned when saving a submission whose id is
	// already recorded.
	ErrAlreadyExists = errors.New("store: submission already exists")
)

// ListOpts filters and paginates List results. Zero values mean "no
// filter" and "no limit".
type ListOpts struct {
	State  task.State
	Kind   string
	Offset int
	Limit  int
}

// CountOpts filters Count results. Zero values mean "no filter".
type CountOpts struct {
	State task.State
	Kind  string
}

// Store persists submission records.
type Store interface {
	// Save records a new submission. Returns ErrAlreadyExists if the id
	// is already recorded.
	Save(ctx context.Context, sub *task.Submission) error

	// Update persists changes to an existing submission. Returns
	// ErrNotFound if the id is unknown.
	Update(ctx context.Context, sub *task.Submission) error

	// Get retrieves a submission by id.
	Get(ctx context.Context, taskID id.TaskID) (*task.Submission, error)

	// List returns submissions in insertion order, filtered and
	// paginated by opts.
	List(ctx context.Context, opts ListOpts) ([]*task.Submission, error)

	// Count returns the number of submissions matching opts.
	Count(ctx context.Context, opts CountOpts) (int64, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Package memory is a fully in-memory store.Store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Bondifuzz/api-gateway/id"
	"github.com/Bondifuzz/api-gateway/store"
	"github.com/Bondifuzz/api-gateway/task"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps submissions in a map plus an insertion-order index so List
// returns records in the order they were saved.
type Store struct {
	mu          sync.RWMutex
	submissions map[string]*task.Submission
	order       []string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		submissions: make(map[string]*task.Submission),
	}
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// Save records a new submission.
func (m *Store) Save(_ context.Context, sub *task.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sub.ID.String()
	if _, exists := m.submissions[key]; exists {
		return store.ErrAlreadyExists
	}
	cp := *sub
	m.submissions[key] = &cp
	m.order = append(m.order, key)
	return nil
}

// Update persists changes to an existing submission.
func (m *Store) Update(_ context.Context, sub *task.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sub.ID.String()
	if _, exists := m.submissions[key]; !exists {
		return store.ErrNotFound
	}
	cp := *sub
	cp.UpdatedAt = time.Now().UTC()
	m.submissions[key] = &cp
	return nil
}

// Get retrieves a submission by id.
func (m *Store) Get(_ context.Context, taskID id.TaskID) (*task.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.submissions[taskID.String()]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// List returns submissions in insertion order.
func (m *Store) List(_ context.Context, opts store.ListOpts) ([]*task.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*task.Submission, 0, len(m.order))
	for _, key := range m.order {
		sub := m.submissions[key]
		if !matches(sub, opts.State, opts.Kind) {
			continue
		}
		cp := *sub
		matched = append(matched, &cp)
	}

	if opts.Offset >= len(matched) {
		return nil, nil
	}
	if opts.Offset > 0 {
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Count returns the number of submissions matching opts.
func (m *Store) Count(_ context.Context, opts store.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, sub := range m.submissions {
		if matches(sub, opts.State, opts.Kind) {
			count++
		}
	}
	return count, nil
}

func matches(sub *task.Submission, state task.State, kind string) bool {
	if state != "" && sub.State != state {
		return false
	}
	if kind != "" && sub.Kind != kind {
		return false
	}
	return true
}

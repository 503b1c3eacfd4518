package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased command handler that accepts the raw JSON
// payload and returns the JSON result payload. The typed Definition[T]
// is converted to a HandlerFunc at registration time by closing over
// JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte) (json.RawMessage, error)

// Registry maps command kinds to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Definition is a typed command definition with a handler function.
// T is the command payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Kind is the unique identifier for this command type, e.g.
	// "fuzzer.start".
	Kind string

	// Handler processes the command payload and returns the result
	// payload carried back on the result envelope.
	Handler func(ctx context.Context, payload T) (json.RawMessage, error)
}

// NewDefinition creates a typed command definition.
func NewDefinition[T any](kind string, handler func(ctx context.Context, payload T) (json.RawMessage, error)) *Definition[T] {
	return &Definition[T]{Kind: kind, Handler: handler}
}

// RegisterDefinition registers a typed command definition. The generic
// handler is wrapped in a closure that JSON-unmarshals the payload into
// T before calling the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, payload []byte) (json.RawMessage, error) {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return nil, fmt.Errorf("unmarshal payload for command %q: %w", def.Kind, err)
			}
		}
		return def.Handler(ctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Kind] = handler
}

// Register registers a raw handler for the given command kind.
func (r *Registry) Register(kind string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Get returns the handler for the given command kind.
// Returns false if no handler is registered.
func (r *Registry) Get(kind string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns all registered command kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/Bondifuzz/api-gateway/worker"
)

type startPayload struct {
	ProjectID string `json:"project_id"`
	Target    string `json:"target"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := worker.NewRegistry()

	var got startPayload
	def := worker.NewDefinition("fuzzer.start", func(_ context.Context, p startPayload) (json.RawMessage, error) {
		got = p
		return json.RawMessage(`{"started":true}`), nil
	})

	worker.RegisterDefinition(r, def)

	h, ok := r.Get("fuzzer.start")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(startPayload{ProjectID: "proj-1", Target: "parse_input"})
	result, err := h(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ProjectID != "proj-1" {
		t.Errorf("ProjectID = %q, want %q", got.ProjectID, "proj-1")
	}
	if got.Target != "parse_input" {
		t.Errorf("Target = %q, want %q", got.Target, "parse_input")
	}
	if string(result) != `{"started":true}` {
		t.Errorf("result = %s, want %s", result, `{"started":true}`)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := worker.NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Fatal("expected no handler for unregistered kind")
	}
}

func TestRegistry_Kinds(t *testing.T) {
	r := worker.NewRegistry()

	worker.RegisterDefinition(r, worker.NewDefinition("fuzzer.start", nopHandler))
	worker.RegisterDefinition(r, worker.NewDefinition("fuzzer.stop", nopHandler))
	worker.RegisterDefinition(r, worker.NewDefinition("fuzzer.status", nopHandler))

	kinds := r.Kinds()
	sort.Strings(kinds)
	expected := []string{"fuzzer.start", "fuzzer.status", "fuzzer.stop"}
	if len(kinds) != len(expected) {
		t.Fatalf("expected %d kinds, got %d", len(expected), len(kinds))
	}
	for i, want := range expected {
		if kinds[i] != want {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want)
		}
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := worker.NewRegistry()
	worker.RegisterDefinition(r, worker.NewDefinition("typed", func(_ context.Context, _ startPayload) (json.RawMessage, error) {
		t.Fatal("handler should not be called with invalid JSON")
		return nil, nil
	}))

	h, _ := r.Get("typed")
	_, err := h(context.Background(), []byte(`{invalid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := worker.NewRegistry()
	called := false
	worker.RegisterDefinition(r, worker.NewDefinition("no-payload", func(_ context.Context, _ struct{}) (json.RawMessage, error) {
		called = true
		return nil, nil
	}))

	h, _ := r.Get("no-payload")
	if _, err := h(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := worker.NewRegistry()
	want := errors.New("handler failed")
	worker.RegisterDefinition(r, worker.NewDefinition("failing", func(_ context.Context, _ struct{}) (json.RawMessage, error) {
		return nil, want
	}))

	h, _ := r.Get("failing")
	_, err := h(context.Background(), nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func nopHandler(_ context.Context, _ struct{}) (json.RawMessage, error) {
	return nil, nil
}

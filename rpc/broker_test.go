package rpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Bondifuzz/api-gateway/mq"
	"github.com/Bondifuzz/api-gateway/rpc"
)

// fakePublisher records published commands and can be told to fail.
type fakePublisher struct {
	mu        sync.Mutex
	published []mq.CommandEnvelope
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, cmd mq.CommandEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, cmd)
	return nil
}

func (p *fakePublisher) commands() []mq.CommandEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]mq.CommandEnvelope, len(p.published))
	copy(out, p.published)
	return out
}

// waitForPublished polls until the publisher has seen n commands.
func waitForPublished(t *testing.T, p *fakePublisher, n int) []mq.CommandEnvelope {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cmds := p.commands(); len(cmds) >= n {
			return cmds
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d published commands", n)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestCall_DeliversMatchingResult(t *testing.T) {
	publisher := &fakePublisher{}
	broker := rpc.New(publisher)

	type callResult struct {
		res mq.ResultEnvelope
		err error
	}
	done := make(chan callResult, 1)
	go func() {
		res, err := broker.Call(context.Background(), "fuzzer.start", json.RawMessage(`{"rev":"r1"}`), time.Minute)
		done <- callResult{res, err}
	}()

	cmds := waitForPublished(t, publisher, 1)
	cmd := cmds[0]
	if cmd.Kind != "fuzzer.start" {
		t.Errorf("published kind = %q, want %q", cmd.Kind, "fuzzer.start")
	}
	if cmd.CorrelationID == uuid.Nil {
		t.Fatal("published command has nil correlation id")
	}

	want := mq.ResultEnvelope{
		CorrelationID: cmd.CorrelationID,
		Status:        mq.StatusOk,
		Payload:       json.RawMessage(`{"started":true}`),
	}
	if err := broker.Deliver(want); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	got := <-done
	if got.err != nil {
		t.Fatalf("Call() error = %v", got.err)
	}
	if got.res.CorrelationID != want.CorrelationID || got.res.Status != want.Status {
		t.Errorf("Call() = %+v, want %+v", got.res, want)
	}

	// The pending request is gone: a duplicate delivery is orphaned.
	if err := broker.Deliver(want); err != nil {
		t.Fatalf("duplicate Deliver() error = %v", err)
	}
	if broker.OrphanedCount() != 1 {
		t.Errorf("OrphanedCount() = %d, want 1", broker.OrphanedCount())
	}
	if broker.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", broker.PendingCount())
	}
}

func TestCall_Timeout(t *testing.T) {
	publisher := &fakePublisher{}
	broker := rpc.New(publisher, rpc.WithSweepInterval(5*time.Millisecond))

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go func() { _ = broker.Run(runCtx) }()

	_, err := broker.Call(context.Background(), "fuzzer.start", nil, 20*time.Millisecond)
	if !errors.Is(err, rpc.ErrTimeout) {
		t.Fatalf("Call() error = %v, want ErrTimeout", err)
	}
	if broker.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after timeout", broker.PendingCount())
	}

	// A late result for the timed-out call is discarded as orphaned.
	cmds := publisher.commands()
	if len(cmds) != 1 {
		t.Fatalf("published %d commands, want 1", len(cmds))
	}
	late := mq.ResultEnvelope{CorrelationID: cmds[0].CorrelationID, Status: mq.StatusOk}
	if err := broker.Deliver(late); err != nil {
		t.Fatalf("late Deliver() error = %v", err)
	}
	if broker.OrphanedCount() != 1 {
		t.Errorf("OrphanedCount() = %d, want 1", broker.OrphanedCount())
	}
}

func TestCall_Cancelled(t *testing.T) {
	publisher := &fakePublisher{}
	broker := rpc.New(publisher)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := broker.Call(ctx, "fuzzer.stop", nil, time.Minute)
		done <- err
	}()

	waitForPublished(t, publisher, 1)
	cancel()

	err := <-done
	if !errors.Is(err, rpc.ErrCancelled) {
		t.Fatalf("Call() error = %v, want ErrCancelled", err)
	}
	if broker.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after cancel", broker.PendingCount())
	}
}

func TestCall_PublishFailure(t *testing.T) {
	publisher := &fakePublisher{err: &mq.TransportError{Op: "publish command", Err: io.ErrClosedPipe}}
	broker := rpc.New(publisher)

	_, err := broker.Call(context.Background(), "fuzzer.start", nil, time.Minute)

	var te *mq.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Call() error = %v, want *mq.TransportError", err)
	}
	if broker.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 after failed publish", broker.PendingCount())
	}
}

func TestCall_ConcurrentCallsMatchTheirOwnResults(t *testing.T) {
	const callers = 32

	publisher := &fakePublisher{}
	broker := rpc.New(publisher)

	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := json.RawMessage(fmt.Sprintf(`{"caller":%d}`, i))
			res, err := broker.Call(context.Background(), "fuzzer.start", payload, time.Minute)
			if err != nil {
				errs <- fmt.Errorf("caller %d: %w", i, err)
				return
			}
			// Each caller must receive the result echoing its own payload.
			if string(res.Payload) != string(payload) {
				errs <- fmt.Errorf("caller %d got payload %s", i, res.Payload)
			}
		}()
	}

	cmds := waitForPublished(t, publisher, callers)

	// Deliver results in reverse order to interleave against call order.
	for i := len(cmds) - 1; i >= 0; i-- {
		cmd := cmds[i]
		res := mq.ResultEnvelope{
			CorrelationID: cmd.CorrelationID,
			Status:        mq.StatusOk,
			Payload:       cmd.Payload,
		}
		if err := broker.Deliver(res); err != nil {
			t.Fatalf("Deliver() error = %v", err)
		}
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if broker.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", broker.PendingCount())
	}
	if broker.OrphanedCount() != 0 {
		t.Errorf("OrphanedCount() = %d, want 0", broker.OrphanedCount())
	}
}

func TestRun_ShutdownFlushesPending(t *testing.T) {
	publisher := &fakePublisher{}
	broker := rpc.New(publisher, rpc.WithSweepInterval(time.Hour))

	runCtx, stopRun := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- broker.Run(runCtx) }()

	callDone := make(chan error, 1)
	go func() {
		_, err := broker.Call(context.Background(), "fuzzer.start", nil, time.Hour)
		callDone <- err
	}()
	waitForPublished(t, publisher, 1)

	stopRun()

	if err := <-callDone; !errors.Is(err, rpc.ErrClosed) {
		t.Errorf("Call() error = %v, want ErrClosed", err)
	}
	if err := <-runDone; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}

	// Further calls are rejected.
	_, err := broker.Call(context.Background(), "fuzzer.start", nil, time.Minute)
	if !errors.Is(err, rpc.ErrClosed) {
		t.Errorf("Call() after shutdown error = %v, want ErrClosed", err)
	}
}

func TestDeliver_OrphanWithUnknownID(t *testing.T) {
	broker := rpc.New(&fakePublisher{})

	err := broker.Deliver(mq.ResultEnvelope{CorrelationID: uuid.New(), Status: mq.StatusFailed})
	if err != nil {
		t.Fatalf("Deliver() error = %v, want nil for orphan", err)
	}
	if broker.OrphanedCount() != 1 {
		t.Errorf("OrphanedCount() = %d, want 1", broker.OrphanedCount())
	}
}

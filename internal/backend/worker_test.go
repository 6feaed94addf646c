package backend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/chatstream/visibility/internal/visindex"
	"github.com/chatstream/visibility/pkg/config"
	apperrors "github.com/chatstream/visibility/pkg/errors"
)

func newTestWorker(t *testing.T, cfg config.IndexingConfig) *Worker {
	t.Helper()
	w := NewWorker(cfg, nil)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWorkerExecute(t *testing.T) {
	w := newTestWorker(t, config.IndexingConfig{UseWorker: true})

	msgs := []visindex.Message{{ID: "a"}, {ID: "b"}}
	idx, err := BuildIndex(context.Background(), w, msgs)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Stats().Total != 2 {
		t.Fatalf("total = %d, want 2", idx.Stats().Total)
	}
	if w.PendingOps() != 0 {
		t.Fatalf("pending = %d, want 0", w.PendingOps())
	}
	if w.Degraded() {
		t.Fatal("worker degraded after a successful operation")
	}
}

func TestWorkerPropagatesUnsupportedAction(t *testing.T) {
	w := newTestWorker(t, config.IndexingConfig{UseWorker: true})

	_, err := w.Execute(context.Background(), Action("compactIndex"), []byte(`{}`))
	if !errors.Is(err, apperrors.ErrUnsupportedAction) {
		t.Fatalf("err = %v, want ErrUnsupportedAction", err)
	}
	if w.Degraded() {
		t.Fatal("operation error must not degrade the worker")
	}
}

func TestWorkerOperationTimeout(t *testing.T) {
	w := newTestWorker(t, config.IndexingConfig{
		UseWorker:        true,
		OperationTimeout: 30 * time.Millisecond,
	})

	release := make(chan struct{})
	w.exec = func(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
		<-release
		return run(ctx, action, data)
	}

	_, err := w.Execute(context.Background(), ActionBuildIndex, []byte(`{"messages":[]}`))
	if !errors.Is(err, apperrors.ErrOperationTimeout) {
		t.Fatalf("err = %v, want ErrOperationTimeout", err)
	}
	if w.PendingOps() != 0 {
		t.Fatalf("pending = %d, want 0 after timeout", w.PendingOps())
	}

	// Let the stalled operation finish; its late response must be dropped
	// without disturbing later operations.
	close(release)
	w.exec = run
	if _, err := BuildIndex(context.Background(), w, nil); err != nil {
		t.Fatalf("operation after timeout failed: %v", err)
	}
	if w.Degraded() {
		t.Fatal("timeout must not degrade the worker")
	}
}

func TestWorkerContextCancellation(t *testing.T) {
	w := newTestWorker(t, config.IndexingConfig{UseWorker: true})

	release := make(chan struct{})
	defer close(release)
	w.exec = func(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
		<-release
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.Execute(ctx, ActionBuildIndex, []byte(`{"messages":[]}`))
		done <- err
	}()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if w.PendingOps() != 0 {
		t.Fatalf("pending = %d, want 0 after cancellation", w.PendingOps())
	}
}

func TestWorkerPanicDegrades(t *testing.T) {
	w := newTestWorker(t, config.IndexingConfig{UseWorker: true})
	w.exec = func(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
		panic("index corrupted")
	}

	_, err := w.Execute(context.Background(), ActionBuildIndex, []byte(`{"messages":[]}`))
	if !errors.Is(err, apperrors.ErrBackendDegraded) {
		t.Fatalf("err = %v, want ErrBackendDegraded", err)
	}
	if !w.Degraded() {
		t.Fatal("worker not degraded after panic")
	}

	// Degradation is one-way: later operations succeed on the local
	// strategy in the calling goroutine.
	idx, err := BuildIndex(context.Background(), w, []visindex.Message{{ID: "a"}})
	if err != nil {
		t.Fatalf("post-degrade operation failed: %v", err)
	}
	if idx.Stats().Total != 1 {
		t.Fatalf("total = %d, want 1", idx.Stats().Total)
	}
	if !w.Degraded() {
		t.Fatal("worker recovered from degradation")
	}
}

func TestWorkerCloseRejectsPending(t *testing.T) {
	w := NewWorker(config.IndexingConfig{UseWorker: true}, nil)

	release := make(chan struct{})
	defer close(release)
	w.exec = func(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
		<-release
		return nil, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Execute(context.Background(), ActionBuildIndex, []byte(`{"messages":[]}`))
		done <- err
	}()

	// Wait until the operation is registered before closing.
	for i := 0; i < 100 && w.PendingOps() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := <-done; !errors.Is(err, apperrors.ErrBackendClosed) {
		t.Fatalf("err = %v, want ErrBackendClosed", err)
	}

	// Closed workers still serve callers, just synchronously.
	if _, err := BuildIndex(context.Background(), w, nil); err != nil {
		t.Fatalf("operation after close failed: %v", err)
	}
}

func TestWorkerPayloadIsCopied(t *testing.T) {
	w := newTestWorker(t, config.IndexingConfig{UseWorker: true})

	// Hold the worker at the gate so the caller's buffer can be clobbered
	// while the operation is still in flight.
	started := make(chan struct{})
	gate := make(chan struct{})
	w.exec = func(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
		close(started)
		<-gate
		return run(ctx, action, data)
	}

	payload := []byte(`{"messages":[{"id":"a","is_system":false}]}`)
	done := make(chan struct{})
	var (
		result  json.RawMessage
		execErr error
	)
	go func() {
		defer close(done)
		result, execErr = w.Execute(context.Background(), ActionBuildIndex, payload)
	}()

	<-started
	for i := range payload {
		payload[i] = 'x'
	}
	close(gate)
	<-done

	if execErr != nil {
		t.Fatal(execErr)
	}
	var built BuildResult
	if err := json.Unmarshal(result, &built); err != nil {
		t.Fatal(err)
	}
	idx := visindex.FromSnapshot(built.Index)
	if !idx.IsVisible("a") {
		t.Fatal("message a missing from built index")
	}
}

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatstream/visibility/pkg/config"
	apperrors "github.com/chatstream/visibility/pkg/errors"
	"github.com/chatstream/visibility/pkg/metrics"
)

// DefaultOperationTimeout bounds how long a dispatched operation may wait
// for a worker response.
const DefaultOperationTimeout = 5 * time.Second

// request is the outbound worker protocol envelope.
type request struct {
	OpID   uint64          `json:"operationId"`
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// response is the inbound worker protocol envelope. Either Data or Err is
// set, never both.
type response struct {
	OpID   uint64          `json:"operationId"`
	Action Action          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Err    string          `json:"error,omitempty"`
}

// Worker executes index operations on a dedicated goroutine. The caller and
// the worker share no state: requests and responses cross as envelopes with
// copied JSON payloads, matched by correlation id through an opMux.
//
// A fatal worker failure (panic or shutdown) permanently degrades the
// backend: all pending operations are rejected with the fatal error and
// every later Execute runs on the local strategy instead. Degradation is
// one-way; there is no automatic recovery.
type Worker struct {
	cfg       config.IndexingConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	mux       *opMux
	requests  chan request
	responses chan response
	quit      chan struct{}
	fallback  *Local

	degraded    atomic.Bool
	degradeOnce sync.Once
	closeOnce   sync.Once

	// exec is the operation implementation; overridable in tests to
	// simulate stalls and failures.
	exec func(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error)
}

// NewWorker creates the background strategy and starts its goroutines.
// m may be nil in tests.
func NewWorker(cfg config.IndexingConfig, m *metrics.Metrics) *Worker {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	w := &Worker{
		cfg:       cfg,
		logger:    slog.Default().With("component", "backend", "strategy", "worker"),
		metrics:   m,
		mux:       newOpMux(),
		requests:  make(chan request, depth),
		responses: make(chan response, depth),
		quit:      make(chan struct{}),
		fallback:  NewLocal(m),
		exec:      run,
	}
	go w.workLoop()
	go w.dispatchLoop()
	return w
}

// Execute dispatches the action to the worker and waits for the matching
// response, the operation deadline, or context cancellation, whichever comes
// first. On a degraded backend it transparently runs the local strategy.
func (w *Worker) Execute(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
	if w.degraded.Load() {
		return w.fallback.Execute(ctx, action, data)
	}

	id, ch := w.mux.register()
	w.observePending()

	// Copy the payload so the worker never shares a backing array with the
	// caller.
	payload := make(json.RawMessage, len(data))
	copy(payload, data)

	select {
	case w.requests <- request{OpID: id, Action: action, Data: payload}:
	case <-w.quit:
		w.mux.drop(id)
		return w.fallback.Execute(ctx, action, data)
	case <-ctx.Done():
		w.mux.drop(id)
		return nil, ctx.Err()
	}

	timeout := w.cfg.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		w.observePending()
		if res.err != nil {
			w.observe("error")
			return nil, res.err
		}
		w.observe("ok")
		return res.data, nil
	case <-timer.C:
		w.mux.drop(id)
		w.observePending()
		w.observe("timeout")
		w.logger.Warn("operation timed out", "op_id", id, "action", action, "timeout", timeout)
		return nil, fmt.Errorf("%w: no response for operation %d within %v", apperrors.ErrOperationTimeout, id, timeout)
	case <-ctx.Done():
		w.mux.drop(id)
		w.observePending()
		return nil, ctx.Err()
	}
}

// Degraded reports whether the worker has permanently fallen back to the
// local strategy.
func (w *Worker) Degraded() bool {
	return w.degraded.Load()
}

// PendingOps returns the number of operations awaiting a response.
func (w *Worker) PendingOps() int {
	return w.mux.len()
}

// Close stops the worker goroutines. Pending operations are rejected and
// subsequent calls run on the local strategy.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.quit)
		w.degrade(apperrors.ErrBackendClosed)
	})
	return nil
}

func (w *Worker) workLoop() {
	defer func() {
		if r := recover(); r != nil {
			w.degrade(fmt.Errorf("%w: worker panic: %v", apperrors.ErrBackendDegraded, r))
		}
	}()
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.requests:
			w.handle(req)
		}
	}
}

func (w *Worker) handle(req request) {
	data, err := w.exec(context.Background(), req.Action, req.Data)
	resp := response{OpID: req.OpID, Action: responseAction(req.Action)}
	if err != nil {
		resp.Err = err.Error()
	} else {
		resp.Data = data
	}
	select {
	case w.responses <- resp:
	case <-w.quit:
	}
}

func (w *Worker) dispatchLoop() {
	for {
		select {
		case <-w.quit:
			return
		case resp := <-w.responses:
			err := decodeWorkerError(resp.Err)
			if !w.mux.resolve(resp.OpID, resp.Data, err) {
				// Late reply after timeout or cancellation; drop it.
				w.logger.Debug("dropping response for unknown operation", "op_id", resp.OpID, "action", resp.Action)
			}
			w.observePending()
		}
	}
}

// degrade flips the backend into its terminal state: pending operations fail
// with the fatal cause and all future work runs locally.
func (w *Worker) degrade(cause error) {
	w.degradeOnce.Do(func() {
		w.degraded.Store(true)
		w.mux.failAll(cause)
		if w.metrics != nil {
			w.metrics.BackendDegraded.Set(1)
			w.metrics.BackendPendingOps.Set(0)
		}
		w.logger.Warn("worker degraded to local strategy", "cause", cause)
	})
}

// decodeWorkerError turns a protocol error string back into an error,
// restoring the unsupported-operation sentinel so callers can match on it.
func decodeWorkerError(msg string) error {
	if msg == "" {
		return nil
	}
	if strings.HasPrefix(msg, apperrors.ErrUnsupportedAction.Error()) {
		return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedAction, strings.TrimPrefix(msg, apperrors.ErrUnsupportedAction.Error()+": "))
	}
	return fmt.Errorf("worker: %s", msg)
}

func (w *Worker) observe(outcome string) {
	if w.metrics == nil {
		return
	}
	w.metrics.BackendOpsTotal.WithLabelValues("worker", outcome).Inc()
}

func (w *Worker) observePending() {
	if w.metrics == nil {
		return
	}
	w.metrics.BackendPendingOps.Set(float64(w.mux.len()))
}

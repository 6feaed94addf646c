package backend

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chatstream/visibility/pkg/metrics"
)

// Local runs index operations synchronously in the calling goroutine. It is
// the fallback strategy when the worker is disabled, failed to start, or has
// degraded.
type Local struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewLocal creates the synchronous strategy. m may be nil in tests.
func NewLocal(m *metrics.Metrics) *Local {
	return &Local{
		logger:  slog.Default().With("component", "backend", "strategy", "local"),
		metrics: m,
	}
}

// Execute runs the action immediately and returns its result.
func (l *Local) Execute(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
	result, err := run(ctx, action, data)
	if err != nil {
		l.logger.Error("operation failed", "action", action, "error", err)
		l.observe("error")
		return nil, err
	}
	l.observe("ok")
	return result, nil
}

func (l *Local) observe(outcome string) {
	if l.metrics == nil {
		return
	}
	l.metrics.BackendOpsTotal.WithLabelValues("local", outcome).Inc()
}

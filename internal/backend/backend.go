// Package backend executes visibility index operations either on a
// background worker goroutine (message passing, correlation ids, per-op
// deadlines) or synchronously in the calling goroutine. Both strategies
// dispatch into the same pure visindex functions, so their results are
// behaviourally identical; payloads cross the worker boundary as JSON,
// never as shared references.
package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chatstream/visibility/internal/visindex"
	"github.com/chatstream/visibility/pkg/config"
	apperrors "github.com/chatstream/visibility/pkg/errors"
	"github.com/chatstream/visibility/pkg/metrics"
)

// Action names an operation the backend can execute.
type Action string

const (
	ActionBuildIndex   Action = "buildIndex"
	ActionProcessRange Action = "processRange"

	// Response action names on the inbound side of the worker protocol.
	actionIndexBuilt     Action = "indexBuilt"
	actionRangeProcessed Action = "rangeProcessed"
)

// Backend runs a named action against a JSON payload and returns the JSON
// result. Implementations must treat the payload as immutable.
type Backend interface {
	Execute(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error)
}

// BuildRequest is the payload for ActionBuildIndex.
type BuildRequest struct {
	Messages []visindex.Message `json:"messages"`
}

// BuildResult is the result of ActionBuildIndex.
type BuildResult struct {
	Index visindex.Snapshot `json:"index"`
}

// RangeRequest is the payload for ActionProcessRange. Bounds are inclusive
// and must be pre-normalized by the caller.
type RangeRequest struct {
	Messages  []visindex.Message `json:"messages"`
	Index     visindex.Snapshot  `json:"index"`
	Start     int                `json:"start"`
	End       int                `json:"end"`
	Unhide    bool               `json:"unhide"`
	BatchSize int                `json:"batch_size"`
}

// RangeResult is the result of ActionProcessRange: the flips performed and
// the mutated index.
type RangeResult struct {
	Updates visindex.Updates  `json:"updates"`
	Index   visindex.Snapshot `json:"index"`
}

// New selects the execution strategy from config: the worker strategy when
// enabled, otherwise the synchronous local strategy.
func New(cfg config.IndexingConfig, m *metrics.Metrics) Backend {
	if !cfg.UseWorker {
		return NewLocal(m)
	}
	return NewWorker(cfg, m)
}

// run is the single implementation both strategies execute. It decodes the
// payload, applies the pure visindex operation, and encodes the result.
func run(ctx context.Context, action Action, data json.RawMessage) (json.RawMessage, error) {
	switch action {
	case ActionBuildIndex:
		var req BuildRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", action, err)
		}
		idx := visindex.Build(req.Messages)
		return marshalResult(BuildResult{Index: idx.Snapshot()})

	case ActionProcessRange:
		var req RangeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", action, err)
		}
		idx := visindex.FromSnapshot(req.Index)
		updates, err := visindex.ProcessRange(ctx, req.Messages, idx, req.Start, req.End, req.Unhide, req.BatchSize)
		if err != nil {
			return nil, err
		}
		if updates == nil {
			updates = visindex.Updates{}
		}
		return marshalResult(RangeResult{Updates: updates, Index: idx.Snapshot()})

	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedAction, action)
	}
}

func marshalResult(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return data, nil
}

func responseAction(req Action) Action {
	switch req {
	case ActionBuildIndex:
		return actionIndexBuilt
	case ActionProcessRange:
		return actionRangeProcessed
	default:
		return req
	}
}

// BuildIndex executes a buildIndex action on b and reconstructs the index.
func BuildIndex(ctx context.Context, b Backend, messages []visindex.Message) (*visindex.Index, error) {
	payload, err := json.Marshal(BuildRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("encoding build request: %w", err)
	}
	data, err := b.Execute(ctx, ActionBuildIndex, payload)
	if err != nil {
		return nil, err
	}
	var result BuildResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding build result: %w", err)
	}
	return visindex.FromSnapshot(result.Index), nil
}

// ProcessRange executes a processRange action on b, returning the flips and
// the mutated index.
func ProcessRange(ctx context.Context, b Backend, req RangeRequest) (visindex.Updates, *visindex.Index, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding range request: %w", err)
	}
	data, err := b.Execute(ctx, ActionProcessRange, payload)
	if err != nil {
		return nil, nil, err
	}
	var result RangeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, nil, fmt.Errorf("decoding range result: %w", err)
	}
	return result.Updates, visindex.FromSnapshot(result.Index), nil
}

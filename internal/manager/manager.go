// Package manager owns the current visibility index snapshot for a chat
// session. It serializes concurrent build requests onto a single in-flight
// build, delegates range operations to the execution backend, and answers
// point lookups from the snapshot without ever triggering a build.
package manager

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chatstream/visibility/internal/backend"
	"github.com/chatstream/visibility/internal/visindex"
	"github.com/chatstream/visibility/pkg/config"
	"github.com/chatstream/visibility/pkg/metrics"
	"github.com/chatstream/visibility/pkg/resilience"
)

// Manager is the facade over the visibility index. The snapshot it holds is
// replaced wholesale after each successful build or range operation; it is
// never mutated in place, so concurrent reads need no copying.
type Manager struct {
	cfg     config.IndexingConfig
	backend backend.Backend
	logger  *slog.Logger
	metrics *metrics.Metrics

	group singleflight.Group

	mu    sync.RWMutex
	index *visindex.Index
	gen   uint64
}

// New creates a Manager over the given execution backend. m may be nil in
// tests.
func New(cfg config.IndexingConfig, b backend.Backend, m *metrics.Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		backend: b,
		logger:  slog.Default().With("component", "index-manager"),
		metrics: m,
	}
}

// EnsureIndex returns the current index, building it at most once per chat
// session. Concurrent callers before the first build completes share the
// same in-flight build; the memo is re-armed only by Reset. The build runs
// under the configured operation deadline on either strategy.
func (m *Manager) EnsureIndex(ctx context.Context, messages []visindex.Message) (*visindex.Index, error) {
	m.mu.RLock()
	if m.index != nil {
		idx := m.index
		m.mu.RUnlock()
		return idx, nil
	}
	gen := m.gen
	m.mu.RUnlock()

	v, err, _ := m.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		start := time.Now()
		var idx *visindex.Index
		err := resilience.WithTimeout(ctx, m.cfg.OperationTimeout, "index-build", func(ctx context.Context) error {
			var err error
			idx, err = backend.BuildIndex(ctx, m.backend, messages)
			return err
		})
		if err != nil {
			m.observeBuild("error", 0, nil)
			return nil, err
		}
		m.storeIndex(gen, idx)
		m.observeBuild("ok", time.Since(start), idx)
		m.logger.Info("index built",
			"messages", len(messages),
			"hidden", idx.Stats().Hidden,
			"duration", time.Since(start),
		)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*visindex.Index), nil
}

// ProcessRange hides or unhides every message in the inclusive position
// range that is not already in the target state. Bounds are clamped into
// the sequence and swapped if inverted. A positive batchSize overrides the
// configured scan batch size for this call; pass 0 to use the default. The
// mutated index becomes the new snapshot; the returned updates preserve
// position scan order.
func (m *Manager) ProcessRange(ctx context.Context, messages []visindex.Message, start, end int, unhide bool, batchSize int) (visindex.Updates, error) {
	direction := "hide"
	if unhide {
		direction = "unhide"
	}

	start, end, ok := visindex.NormalizeRange(start, end, len(messages))
	if !ok {
		return visindex.Updates{}, nil
	}

	idx, err := m.EnsureIndex(ctx, messages)
	if err != nil {
		m.observeRange(direction, "error", 0)
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = m.cfg.BatchSize
	}

	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()

	var (
		updates visindex.Updates
		newIdx  *visindex.Index
	)
	err = resilience.WithTimeout(ctx, m.cfg.OperationTimeout, "range-process", func(ctx context.Context) error {
		var err error
		updates, newIdx, err = backend.ProcessRange(ctx, m.backend, backend.RangeRequest{
			Messages:  messages,
			Index:     idx.Snapshot(),
			Start:     start,
			End:       end,
			Unhide:    unhide,
			BatchSize: batchSize,
		})
		return err
	})
	if err != nil {
		m.observeRange(direction, "error", 0)
		return nil, err
	}

	m.storeIndex(gen, newIdx)
	m.observeRange(direction, "ok", len(updates))
	m.logger.Debug("range processed",
		"start", start,
		"end", end,
		"unhide", unhide,
		"updates", len(updates),
	)
	return updates, nil
}

// Reset discards the snapshot and re-arms the memoized build. Called when a
// new chat is loaded.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.index = nil
	m.gen++
	m.mu.Unlock()
	m.logger.Info("index reset")
}

// IsMessageHidden reports whether id is hidden; unknown ids default to
// false.
func (m *Manager) IsMessageHidden(id string) bool {
	m.mu.RLock()
	idx := m.index
	m.mu.RUnlock()
	if idx == nil {
		return false
	}
	return idx.IsHidden(id)
}

// IsMessageVisible reports whether id is visible; unknown ids default to
// true.
func (m *Manager) IsMessageVisible(id string) bool {
	m.mu.RLock()
	idx := m.index
	m.mu.RUnlock()
	if idx == nil {
		return true
	}
	return !idx.IsHidden(id)
}

// MessagePosition returns the position id held at the last build.
func (m *Manager) MessagePosition(id string) (int, bool) {
	m.mu.RLock()
	idx := m.index
	m.mu.RUnlock()
	if idx == nil {
		return 0, false
	}
	return idx.Position(id)
}

// IndexStats returns aggregate counts for the current snapshot, or nil when
// no index has been built.
func (m *Manager) IndexStats() *visindex.Stats {
	m.mu.RLock()
	idx := m.index
	m.mu.RUnlock()
	if idx == nil {
		return nil
	}
	stats := idx.Stats()
	return &stats
}

// storeIndex replaces the snapshot unless a Reset has happened since the
// operation that produced it started; a stale result must not clobber the
// next session's state.
func (m *Manager) storeIndex(gen uint64, idx *visindex.Index) {
	m.mu.Lock()
	if m.gen == gen {
		m.index = idx
	}
	m.mu.Unlock()
}

func (m *Manager) observeBuild(outcome string, d time.Duration, idx *visindex.Index) {
	if m.metrics == nil {
		return
	}
	m.metrics.IndexBuildsTotal.WithLabelValues(outcome).Inc()
	if outcome != "ok" || idx == nil {
		return
	}
	m.metrics.IndexBuildDuration.Observe(d.Seconds())
	stats := idx.Stats()
	m.metrics.IndexedMessages.Set(float64(stats.Total))
	m.metrics.HiddenMessages.Set(float64(stats.Hidden))
}

func (m *Manager) observeRange(direction, outcome string, updates int) {
	if m.metrics == nil {
		return
	}
	m.metrics.RangeOpsTotal.WithLabelValues(direction, outcome).Inc()
	if outcome == "ok" {
		m.metrics.RangeUpdatesEmitted.Add(float64(updates))
		if stats := m.IndexStats(); stats != nil {
			m.metrics.IndexedMessages.Set(float64(stats.Total))
			m.metrics.HiddenMessages.Set(float64(stats.Hidden))
		}
	}
}

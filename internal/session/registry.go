// Package session tracks one index manager per chat session. Managers are
// created lazily on first use and reset in place when the host reports the
// chat has changed.
package session

import (
	"sync"

	"github.com/chatstream/visibility/internal/backend"
	"github.com/chatstream/visibility/internal/manager"
	"github.com/chatstream/visibility/pkg/config"
	"github.com/chatstream/visibility/pkg/metrics"
)

// Registry maps chat ids to their index managers. All managers share one
// execution backend.
type Registry struct {
	cfg     config.IndexingConfig
	backend backend.Backend
	metrics *metrics.Metrics

	mu       sync.Mutex
	managers map[string]*manager.Manager
}

// NewRegistry creates an empty Registry over the given backend.
func NewRegistry(cfg config.IndexingConfig, b backend.Backend, m *metrics.Metrics) *Registry {
	return &Registry{
		cfg:      cfg,
		backend:  b,
		metrics:  m,
		managers: make(map[string]*manager.Manager),
	}
}

// Get returns the manager for chatID, creating it on first use.
func (r *Registry) Get(chatID string) *manager.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	mgr, ok := r.managers[chatID]
	if !ok {
		mgr = manager.New(r.cfg, r.backend, r.metrics)
		r.managers[chatID] = mgr
	}
	return mgr
}

// Reset discards the index snapshot for chatID, if one exists, so the next
// access rebuilds from the current message sequence.
func (r *Registry) Reset(chatID string) {
	r.mu.Lock()
	mgr, ok := r.managers[chatID]
	r.mu.Unlock()
	if ok {
		mgr.Reset()
	}
}

// Len returns the number of chat sessions currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

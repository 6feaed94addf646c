// Package settings persists the host-facing visibility settings in Redis.
// The settings object is deliberately simple: load returns defaults when
// nothing has been saved yet, and save validates before writing.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/chatstream/visibility/pkg/redis"
)

const storeKey = "visibility:settings"

// Policy names for automatic re-application on new messages.
const (
	PolicyNone     = "none"
	PolicyKeepTail = "keep-tail"
)

// Settings drives the visibility behaviour the host can tune at runtime.
type Settings struct {
	// IndexingEnabled toggles the whole component; when false, event
	// handlers become no-ops.
	IndexingEnabled bool `json:"indexing_enabled"`
	// BatchSize overrides the range scan batch size when positive.
	BatchSize int `json:"batch_size"`
	// Policy selects what happens when a new message arrives.
	Policy string `json:"policy"`
	// KeepVisibleTail is the number of trailing messages kept visible by
	// the keep-tail policy; everything before them is hidden.
	KeepVisibleTail int `json:"keep_visible_tail"`
}

// Validate checks the settings are internally consistent.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.BatchSize, validation.Min(1), validation.Max(10000)),
		validation.Field(&s.Policy, validation.Required, validation.In(PolicyNone, PolicyKeepTail)),
		validation.Field(&s.KeepVisibleTail, validation.Min(0)),
	)
}

// Default returns the settings used before anything has been saved.
func Default() Settings {
	return Settings{
		IndexingEnabled: true,
		BatchSize:       50,
		Policy:          PolicyNone,
		KeepVisibleTail: 0,
	}
}

// kv is the slice of the Redis client the store needs.
type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Store loads and saves Settings in Redis.
type Store struct {
	client kv
	logger *slog.Logger
}

// NewStore creates a settings Store over the given Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "settings"),
	}
}

// Load returns the persisted settings, or defaults when none exist.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	data, err := s.client.Get(ctx, storeKey)
	if err != nil {
		if redis.IsNilError(err) {
			return Default(), nil
		}
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	var cfg Settings
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		s.logger.Warn("stored settings corrupt, using defaults", "error", err)
		return Default(), nil
	}
	return cfg, nil
}

// Save validates and persists the settings.
func (s *Store) Save(ctx context.Context, cfg Settings) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.client.Set(ctx, storeKey, data, 0); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	s.logger.Info("settings saved", "policy", cfg.Policy, "indexing_enabled", cfg.IndexingEnabled)
	return nil
}

// Reset removes the persisted settings so Load returns defaults again.
func (s *Store) Reset(ctx context.Context) error {
	return s.client.Del(ctx, storeKey)
}

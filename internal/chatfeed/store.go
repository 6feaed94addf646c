// Package chatfeed reads the ordered message sequence of a chat from the
// host application's PostgreSQL message store. The store is an external
// collaborator: this package only ever reads it.
package chatfeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatstream/visibility/internal/visindex"
	"github.com/chatstream/visibility/pkg/metrics"
	"github.com/chatstream/visibility/pkg/postgres"
	"github.com/chatstream/visibility/pkg/resilience"
)

// Store fetches chat message sequences. Reads happen on every index build
// and range operation, so they run behind a circuit breaker.
type Store struct {
	client  *postgres.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewStore creates a Store over the given postgres client. m may be nil in
// tests.
func NewStore(client *postgres.Client, m *metrics.Metrics) *Store {
	cfg := resilience.CircuitBreakerConfig{}
	if m != nil {
		cfg.OnStateChange = func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		}
	}
	return &Store{
		client:  client,
		breaker: resilience.NewCircuitBreaker("chatfeed", cfg),
		logger:  slog.Default().With("component", "chatfeed"),
	}
}

// Messages returns the chat's messages ordered by position. An empty chat
// yields an empty slice, not an error.
func (s *Store) Messages(ctx context.Context, chatID string) ([]visindex.Message, error) {
	var messages []visindex.Message
	err := s.breaker.Execute(func() error {
		rows, err := s.client.DB.QueryContext(ctx,
			`SELECT COALESCE(message_id, ''), is_system
			 FROM chat_messages
			 WHERE chat_id = $1
			 ORDER BY position ASC`,
			chatID,
		)
		if err != nil {
			return fmt.Errorf("querying chat messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var msg visindex.Message
			if err := rows.Scan(&msg.ID, &msg.System); err != nil {
				return fmt.Errorf("scanning chat message: %w", err)
			}
			messages = append(messages, msg)
		}
		return rows.Err()
	})
	if err != nil {
		s.logger.Error("failed to load chat messages", "chat_id", chatID, "error", err)
		return nil, err
	}
	return messages, nil
}

// Exists reports whether the chat is known to the host store.
func (s *Store) Exists(ctx context.Context, chatID string) (bool, error) {
	var exists bool
	err := s.breaker.Execute(func() error {
		return s.client.DB.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM chat_messages WHERE chat_id = $1)`,
			chatID,
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("checking chat existence: %w", err)
	}
	return exists, nil
}

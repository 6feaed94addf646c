// Package render delivers visibility flips to the host UI. Each range
// operation's updates are deduplicated by position, wrapped in envelopes,
// and published as one batch to the render-updates topic.
package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatstream/visibility/internal/visindex"
	"github.com/chatstream/visibility/pkg/kafka"
	"github.com/chatstream/visibility/pkg/metrics"
	"github.com/chatstream/visibility/pkg/resilience"
)

// UpdateEvent is the envelope published for a single visibility flip.
type UpdateEvent struct {
	EventID   string    `json:"event_id"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	Position  int       `json:"position"`
	Hidden    bool      `json:"is_hidden"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Publisher writes render updates to Kafka, keyed by chat so the host
// consumes each chat's flips in order.
type Publisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewPublisher creates a Publisher over the given producer. m may be nil in
// tests.
func NewPublisher(producer *kafka.Producer, m *metrics.Metrics) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "render-publisher"),
		metrics:  m,
	}
}

// PublishUpdates publishes the updates of one range operation as a single
// batch, in scan order, deduplicated by position. Transient broker failures
// are retried with backoff.
func (p *Publisher) PublishUpdates(ctx context.Context, chatID string, updates visindex.Updates) error {
	deduped := dedupeByPosition(updates)
	if len(deduped) == 0 {
		return nil
	}

	now := time.Now().UTC()
	events := make([]kafka.Event, 0, len(deduped))
	for _, upd := range deduped {
		events = append(events, kafka.Event{
			Key: chatID,
			Value: UpdateEvent{
				EventID:   uuid.NewString(),
				ChatID:    chatID,
				MessageID: upd.ID,
				Position:  upd.Position,
				Hidden:    upd.Hidden,
				EmittedAt: now,
			},
		})
	}

	err := resilience.Retry(ctx, "render-publish", resilience.RetryConfig{}, func() error {
		return p.producer.PublishBatch(ctx, events)
	})
	if err != nil {
		p.observe("error")
		p.logger.Error("failed to publish render updates", "chat_id", chatID, "count", len(events), "error", err)
		return err
	}
	p.observe("ok")
	p.logger.Debug("render updates published", "chat_id", chatID, "count", len(events))
	return nil
}

// dedupeByPosition keeps the first update seen for each position, preserving
// scan order. Successive range operations are not merged; dedup applies per
// call only.
func dedupeByPosition(updates visindex.Updates) visindex.Updates {
	if len(updates) <= 1 {
		return updates
	}
	seen := make(map[int]struct{}, len(updates))
	result := make(visindex.Updates, 0, len(updates))
	for _, upd := range updates {
		if _, dup := seen[upd.Position]; dup {
			continue
		}
		seen[upd.Position] = struct{}{}
		result = append(result, upd)
	}
	return result
}

func (p *Publisher) observe(outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RenderPublishTotal.WithLabelValues(outcome).Inc()
}

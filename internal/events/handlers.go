package events

import (
	"context"
	"log/slog"

	"github.com/chatstream/visibility/internal/chatfeed"
	"github.com/chatstream/visibility/internal/render"
	"github.com/chatstream/visibility/internal/session"
	"github.com/chatstream/visibility/internal/settings"
	"github.com/chatstream/visibility/pkg/kafka"
	"github.com/chatstream/visibility/pkg/metrics"
)

// HandleChatChanged returns a handler that resets the chat's index and warms
// a rebuild from the current message sequence. Decode failures are logged
// and dropped so a poison message cannot wedge the topic.
func HandleChatChanged(reg *session.Registry, feed *chatfeed.Store, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "event-handler", "event", "chat-changed")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ChatChangedEvent](value)
		if err != nil || event.ChatID == "" {
			logger.Error("dropping undecodable event", "key", string(key), "error", err)
			observe(m, "chat.changed", "decode_error")
			return nil
		}

		reg.Reset(event.ChatID)

		messages, err := feed.Messages(ctx, event.ChatID)
		if err != nil {
			observe(m, "chat.changed", "feed_error")
			return err
		}
		if _, err := reg.Get(event.ChatID).EnsureIndex(ctx, messages); err != nil {
			observe(m, "chat.changed", "build_error")
			return err
		}

		observe(m, "chat.changed", "ok")
		logger.Info("index rebuilt after chat change", "chat_id", event.ChatID, "messages", len(messages))
		return nil
	}
}

// HandleMessageReceived returns a handler that applies the active visibility
// policy to the chat the message arrived in. With no active policy (or
// indexing disabled) the event is a no-op.
func HandleMessageReceived(reg *session.Registry, feed *chatfeed.Store, store *settings.Store, publisher *render.Publisher, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "event-handler", "event", "message-received")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[MessageReceivedEvent](value)
		if err != nil || event.ChatID == "" {
			logger.Error("dropping undecodable event", "key", string(key), "error", err)
			observe(m, "message.received", "decode_error")
			return nil
		}

		cfg, err := store.Load(ctx)
		if err != nil {
			observe(m, "message.received", "settings_error")
			return err
		}
		if !cfg.IndexingEnabled || cfg.Policy != settings.PolicyKeepTail {
			observe(m, "message.received", "skipped")
			return nil
		}

		messages, err := feed.Messages(ctx, event.ChatID)
		if err != nil {
			observe(m, "message.received", "feed_error")
			return err
		}
		if len(messages) <= cfg.KeepVisibleTail {
			observe(m, "message.received", "skipped")
			return nil
		}

		// Hide everything before the visible tail. Positions already hidden
		// are skipped by the range processor, so repeated application after
		// each message stays cheap. The persisted batch size applies here.
		end := len(messages) - cfg.KeepVisibleTail - 1
		updates, err := reg.Get(event.ChatID).ProcessRange(ctx, messages, 0, end, false, cfg.BatchSize)
		if err != nil {
			observe(m, "message.received", "range_error")
			return err
		}
		if err := publisher.PublishUpdates(ctx, event.ChatID, updates); err != nil {
			observe(m, "message.received", "publish_error")
			return err
		}

		observe(m, "message.received", "ok")
		logger.Debug("keep-tail policy applied",
			"chat_id", event.ChatID,
			"hidden_range_end", end,
			"updates", len(updates),
		)
		return nil
	}
}

func observe(m *metrics.Metrics, topic, outcome string) {
	if m == nil {
		return
	}
	m.EventsConsumedTotal.WithLabelValues(topic, outcome).Inc()
}

// Package api exposes the visibility index over HTTP: stats and point
// lookups, manual range operations, index rebuilds, and the persisted
// settings.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/chatstream/visibility/internal/chatfeed"
	"github.com/chatstream/visibility/internal/render"
	"github.com/chatstream/visibility/internal/session"
	"github.com/chatstream/visibility/internal/settings"
	"github.com/chatstream/visibility/internal/visindex"
	apperrors "github.com/chatstream/visibility/pkg/errors"
	"github.com/chatstream/visibility/pkg/logger"
)

// Handler serves the visibility API.
type Handler struct {
	registry  *session.Registry
	feed      *chatfeed.Store
	settings  *settings.Store
	publisher *render.Publisher
	logger    *slog.Logger
}

// New creates the API handler.
func New(reg *session.Registry, feed *chatfeed.Store, store *settings.Store, publisher *render.Publisher) *Handler {
	return &Handler{
		registry:  reg,
		feed:      feed,
		settings:  store,
		publisher: publisher,
		logger:    slog.Default().With("component", "api"),
	}
}

// IndexStats returns the aggregate counts of a chat's index snapshot. It
// never triggers a build: an unbuilt chat reports null stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	stats := h.registry.Get(chatID).IndexStats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"chat_id": chatID,
		"stats":   stats,
	})
}

// MessageVisibility returns the current visibility state of one message.
// Unknown messages default to visible with no position.
func (h *Handler) MessageVisibility(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	messageID := r.PathValue("msg")
	mgr := h.registry.Get(chatID)

	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"is_hidden":  mgr.IsMessageHidden(messageID),
		"is_visible": mgr.IsMessageVisible(messageID),
	}
	if pos, ok := mgr.MessagePosition(messageID); ok {
		body["position"] = pos
	}
	h.writeJSON(w, http.StatusOK, body)
}

type rangeRequest struct {
	Start  *int `json:"start"`
	End    *int `json:"end"`
	Unhide bool `json:"unhide"`
}

func (rr rangeRequest) Validate() error {
	return validation.ValidateStruct(&rr,
		validation.Field(&rr.Start, validation.NotNil),
		validation.Field(&rr.End, validation.NotNil),
	)
}

// ProcessRange applies a bulk visibility transition over a position range
// and publishes the resulting flips to the host UI.
func (h *Handler) ProcessRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	chatID := r.PathValue("id")

	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.feed.Messages(ctx, chatID)
	if err != nil {
		h.writeAppError(w, log, err)
		return
	}

	// The persisted batch size applies to manual range operations too; a
	// settings store outage falls back to the static default.
	batchSize := 0
	if cfg, err := h.settings.Load(ctx); err == nil {
		batchSize = cfg.BatchSize
	} else {
		log.Warn("settings unavailable, using default batch size", "error", err)
	}

	updates, err := h.registry.Get(chatID).ProcessRange(ctx, messages, *req.Start, *req.End, req.Unhide, batchSize)
	if err != nil {
		h.writeAppError(w, log, err)
		return
	}

	if err := h.publisher.PublishUpdates(ctx, chatID, updates); err != nil {
		// The index already moved; report the flips but flag delivery.
		log.Error("render publish failed", "chat_id", chatID, "error", err)
	}

	if updates == nil {
		updates = visindex.Updates{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"chat_id": chatID,
		"updates": updates,
	})
}

// RebuildIndex discards and rebuilds a chat's index from the current message
// sequence.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	chatID := r.PathValue("id")

	exists, err := h.feed.Exists(ctx, chatID)
	if err != nil {
		h.writeAppError(w, log, err)
		return
	}
	if !exists {
		h.writeError(w, apperrors.HTTPStatusCode(apperrors.ErrChatNotFound), "unknown chat")
		return
	}

	messages, err := h.feed.Messages(ctx, chatID)
	if err != nil {
		h.writeAppError(w, log, err)
		return
	}

	h.registry.Reset(chatID)
	mgr := h.registry.Get(chatID)
	if _, err := mgr.EnsureIndex(ctx, messages); err != nil {
		h.writeAppError(w, log, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"chat_id": chatID,
		"stats":   mgr.IndexStats(),
	})
}

// GetSettings returns the persisted visibility settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Load(r.Context())
	if err != nil {
		h.writeAppError(w, logger.FromContext(r.Context()), err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// PutSettings validates and persists new visibility settings.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var cfg settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := cfg.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.settings.Save(r.Context(), cfg); err != nil {
		h.writeAppError(w, logger.FromContext(r.Context()), err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

// ResetSettings removes the persisted settings; subsequent loads fall back
// to the defaults, which are returned in the response.
func (h *Handler) ResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Reset(r.Context()); err != nil {
		h.writeAppError(w, logger.FromContext(r.Context()), err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings.Default())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) writeAppError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "error", err)
	}
	h.writeError(w, status, err.Error())
}

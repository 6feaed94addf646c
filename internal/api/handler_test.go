package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatstream/visibility/internal/backend"
	"github.com/chatstream/visibility/internal/session"
	"github.com/chatstream/visibility/internal/visindex"
	"github.com/chatstream/visibility/pkg/config"
)

func newTestHandler(t *testing.T) (*Handler, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry(config.IndexingConfig{}, backend.NewLocal(nil), nil)
	return New(reg, nil, nil, nil), reg
}

func TestIndexStatsUnbuiltChat(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/c1/index/stats", nil)
	req.SetPathValue("id", "c1")
	rec := httptest.NewRecorder()
	h.IndexStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		ChatID string          `json:"chat_id"`
		Stats  *visindex.Stats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ChatID != "c1" {
		t.Fatalf("chat_id = %s, want c1", body.ChatID)
	}
	// Stats lookups never trigger a build.
	if body.Stats != nil {
		t.Fatalf("stats = %+v, want null before any build", body.Stats)
	}
}

func TestIndexStatsAfterBuild(t *testing.T) {
	h, reg := newTestHandler(t)

	msgs := []visindex.Message{{ID: "a"}, {ID: "b", System: true}}
	if _, err := reg.Get("c1").EnsureIndex(context.Background(), msgs); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/c1/index/stats", nil)
	req.SetPathValue("id", "c1")
	rec := httptest.NewRecorder()
	h.IndexStats(rec, req)

	var body struct {
		Stats *visindex.Stats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Stats == nil || body.Stats.Total != 2 || body.Stats.Hidden != 1 {
		t.Fatalf("stats = %+v, want total=2 hidden=1", body.Stats)
	}
}

func TestMessageVisibilityDefaults(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/c1/messages/m9/visibility", nil)
	req.SetPathValue("id", "c1")
	req.SetPathValue("msg", "m9")
	rec := httptest.NewRecorder()
	h.MessageVisibility(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["is_hidden"] != false || body["is_visible"] != true {
		t.Fatalf("body = %v, want default hidden=false visible=true", body)
	}
	if _, ok := body["position"]; ok {
		t.Fatal("position present for unknown message")
	}
}

func TestMessageVisibilityKnownMessage(t *testing.T) {
	h, reg := newTestHandler(t)

	msgs := []visindex.Message{{ID: "a"}, {ID: "b"}}
	mgr := reg.Get("c1")
	if _, err := mgr.ProcessRange(context.Background(), msgs, 1, 1, false, 0); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/c1/messages/b/visibility", nil)
	req.SetPathValue("id", "c1")
	req.SetPathValue("msg", "b")
	rec := httptest.NewRecorder()
	h.MessageVisibility(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["is_hidden"] != true || body["is_visible"] != false {
		t.Fatalf("body = %v, want hidden=true visible=false", body)
	}
	if pos, ok := body["position"].(float64); !ok || pos != 1 {
		t.Fatalf("position = %v, want 1", body["position"])
	}
}

func TestRangeRequestValidate(t *testing.T) {
	zero := 0
	tests := []struct {
		name    string
		req     rangeRequest
		wantErr bool
	}{
		{"both bounds", rangeRequest{Start: &zero, End: &zero}, false},
		{"missing start", rangeRequest{End: &zero}, true},
		{"missing end", rangeRequest{Start: &zero}, true},
		{"missing both", rangeRequest{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/chatstream/visibility/pkg/health"
	"github.com/chatstream/visibility/pkg/metrics"
	"github.com/chatstream/visibility/pkg/middleware"
)

// NewRouter builds the full HTTP handler with all routes and middleware.
//
// Route table:
//
//	GET    /api/v1/chats/{id}/index/stats                → index snapshot stats
//	POST   /api/v1/chats/{id}/index/rebuild              → reset + rebuild
//	GET    /api/v1/chats/{id}/messages/{msg}/visibility  → point lookup
//	POST   /api/v1/chats/{id}/visibility/range           → bulk range transition
//	GET    /api/v1/settings                              → persisted settings
//	PUT    /api/v1/settings                              → update settings
//	DELETE /api/v1/settings                              → reset to defaults
//	GET    /health/live                                  → liveness probe
//	GET    /health                                       → readiness probe
//
// Middleware chain (outermost first): RequestID → Metrics → Timeout → mux.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health", checker.ReadyHandler())

	mux.HandleFunc("GET /api/v1/chats/{id}/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/chats/{id}/index/rebuild", h.RebuildIndex)
	mux.HandleFunc("GET /api/v1/chats/{id}/messages/{msg}/visibility", h.MessageVisibility)
	mux.HandleFunc("POST /api/v1/chats/{id}/visibility/range", h.ProcessRange)

	mux.HandleFunc("GET /api/v1/settings", h.GetSettings)
	mux.HandleFunc("PUT /api/v1/settings", h.PutSettings)
	mux.HandleFunc("DELETE /api/v1/settings", h.ResetSettings)

	var chain http.Handler = mux
	chain = middleware.Timeout(requestTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	return chain
}

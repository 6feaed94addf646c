package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/chatstream/visibility/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation id, honouring one supplied by
// the client, and stores it in the request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := New(ErrChatNotFound, http.StatusNotFound, "chat abc123 does not exist")
	if !errors.Is(err, ErrChatNotFound) {
		t.Fatal("AppError does not unwrap to its sentinel")
	}
	if got := err.Error(); got != "chat not found: chat abc123 does not exist" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "position %d out of range", 42)
	if err.Message != "position 42 out of range" {
		t.Fatalf("Message = %q", err.Message)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrChatNotFound, http.StatusNotFound},
		{ErrMessageNotFound, http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnsupportedAction, http.StatusNotImplemented},
		{ErrOperationTimeout, http.StatusGatewayTimeout},
		{ErrBackendDegraded, http.StatusServiceUnavailable},
		{ErrBackendClosed, http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", ErrOperationTimeout), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTTPStatusCodePrefersAppError(t *testing.T) {
	// An explicit status on the AppError wins over the sentinel mapping.
	err := New(ErrOperationTimeout, http.StatusRequestTimeout, "client-facing deadline")
	if got := HTTPStatusCode(err); got != http.StatusRequestTimeout {
		t.Fatalf("HTTPStatusCode = %d, want %d", got, http.StatusRequestTimeout)
	}
}

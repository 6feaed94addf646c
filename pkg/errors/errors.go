// Package errors defines the sentinel error kinds shared across the
// visibility service and their mapping to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedAction = errors.New("unsupported operation")
	ErrOperationTimeout  = errors.New("operation timed out")
	ErrBackendDegraded   = errors.New("background execution degraded")
	ErrBackendClosed     = errors.New("execution backend closed")
	ErrInternal          = errors.New("internal error")
)

// AppError attaches a human-readable message and HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel error with a status code and message.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf is New with Sprintf-style message formatting.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode resolves err to the HTTP status the API layer should return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrChatNotFound), errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedAction):
		return http.StatusNotImplemented
	case errors.Is(err, ErrOperationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrBackendDegraded), errors.Is(err, ErrBackendClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

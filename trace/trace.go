// Package trace carries the request correlation id that the client sends as
// X-Request-ID so backend logs can be joined with client logs.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderXRequestID is the header name used for request correlation.
const HeaderXRequestID = "X-Request-ID"

// WithRequestID stores a request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns the id from ctx or a freshly generated one.
// The generated id is not stored; use EnsureContext to keep it for retries.
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return NewRequestID()
}

// EnsureContext returns ctx with a request id attached, reusing an existing one.
func EnsureContext(ctx context.Context) (context.Context, string) {
	if id, ok := RequestIDFromContext(ctx); ok {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}

// NewRequestID generates a random request id.
func NewRequestID() string {
	return uuid.NewString()
}

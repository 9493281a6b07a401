package logger

import (
	"context"
	"sync/atomic"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	// httpCounterKey tracks outbound API calls made on behalf of one logical operation
	httpCounterKey contextKey = "http_call_counter"
	// httpElapsedKey tracks total outbound API time for one logical operation
	httpElapsedKey contextKey = "http_elapsed_nanos"
)

// WithHTTPCounter returns a context that accumulates outbound call counts and
// elapsed time. Services attach it once per user-facing operation so a single
// log line can report how many API round-trips (retries included) it cost.
func WithHTTPCounter(ctx context.Context) context.Context {
	counter := int64(0)
	elapsed := int64(0)
	ctx = context.WithValue(ctx, httpCounterKey, &counter)
	ctx = context.WithValue(ctx, httpElapsedKey, &elapsed)
	return ctx
}

// IncrementHTTPCounter increments the outbound call counter in the context
func IncrementHTTPCounter(ctx context.Context) {
	if counter, ok := ctx.Value(httpCounterKey).(*int64); ok && counter != nil {
		atomic.AddInt64(counter, 1)
	}
}

// GetHTTPCounter returns the current outbound call count from the context
func GetHTTPCounter(ctx context.Context) int64 {
	if counter, ok := ctx.Value(httpCounterKey).(*int64); ok && counter != nil {
		return atomic.LoadInt64(counter)
	}
	return 0
}

// AddHTTPElapsed adds elapsed nanoseconds to the outbound time in the context
func AddHTTPElapsed(ctx context.Context, nanos int64) {
	if elapsed, ok := ctx.Value(httpElapsedKey).(*int64); ok && elapsed != nil {
		atomic.AddInt64(elapsed, nanos)
	}
}

// GetHTTPElapsed returns the accumulated outbound time in nanoseconds
func GetHTTPElapsed(ctx context.Context) int64 {
	if elapsed, ok := ctx.Value(httpElapsedKey).(*int64); ok && elapsed != nil {
		return atomic.LoadInt64(elapsed)
	}
	return 0
}

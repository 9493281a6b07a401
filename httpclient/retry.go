package httpclient

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultMaxRetries is the total number of attempts per request.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the sleep after the first failed attempt.
	DefaultRetryDelay = 1 * time.Second
	// DefaultRetryMultiplier grows the delay between attempts.
	DefaultRetryMultiplier = 2.0

	maxBackoff = 5 * time.Minute
)

// callState is the per-call retry state. It is copied, never shared, so a
// nested retry after a token refresh cannot disturb the outer loop.
type callState struct {
	attempt     int
	authRetried bool
}

func (s callState) next() callState {
	return callState{attempt: s.attempt + 1, authRetried: s.authRetried}
}

// BackoffDelay returns delay * multiplier^(attempt-1) for a 1-indexed attempt,
// capped at five minutes. A multiplier below 1 is treated as 1. There is no
// jitter.
func BackoffDelay(delay time.Duration, multiplier float64, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(delay) * math.Pow(multiplier, float64(attempt-1))
	if d > float64(maxBackoff) || math.IsInf(d, 0) {
		return maxBackoff
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

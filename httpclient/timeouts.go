package httpclient

import (
	"strings"
	"time"
)

// DefaultTimeout is the fallback request timeout.
const DefaultTimeout = 30 * time.Second

// defaultPattern names the fallback entry.
const defaultPattern = "default"

// EndpointTimeout assigns a timeout to endpoints containing Pattern.
type EndpointTimeout struct {
	Pattern string
	Timeout time.Duration
}

// TimeoutTable resolves the timeout for an endpoint. Entries are checked in
// declaration order and the first substring match wins; there is no scoring
// and no longest-match rule. Empty patterns and the reserved "default" key
// never match.
type TimeoutTable struct {
	Entries []EndpointTimeout
	Default time.Duration
}

// DefaultEndpointTimeouts mirrors the latencies of the AnalyticBot backend.
func DefaultEndpointTimeouts() []EndpointTimeout {
	return []EndpointTimeout{
		{Pattern: "/health", Timeout: 5 * time.Second},
		{Pattern: "/auth", Timeout: 10 * time.Second},
		{Pattern: "/analytics", Timeout: 45 * time.Second},
		{Pattern: "/exports", Timeout: 60 * time.Second},
		{Pattern: "/media/upload", Timeout: 120 * time.Second},
	}
}

// Resolve returns the timeout for endpoint.
func (t TimeoutTable) Resolve(endpoint string) time.Duration {
	_, d := t.Match(endpoint)
	return d
}

// Match returns the matching pattern and its timeout. The pattern is
// "default" when no entry matched.
func (t TimeoutTable) Match(endpoint string) (string, time.Duration) {
	for _, e := range t.Entries {
		if e.Pattern == "" || e.Pattern == defaultPattern {
			continue
		}
		if strings.Contains(endpoint, e.Pattern) {
			return e.Pattern, e.Timeout
		}
	}
	if t.Default > 0 {
		return defaultPattern, t.Default
	}
	return defaultPattern, DefaultTimeout
}

package httpclient

import (
	"context"
	nethttp "net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/config"
	"github.com/analyticbot/apiclient/logger"
)

// Builder provides a fluent interface for configuring the REST client
type Builder struct {
	config      *Config
	logger      logger.Logger
	transport   nethttp.RoundTripper
	tokens      TokenSource
	refresher   TokenRefresher
	clearer     SessionClearer
	fingerprint FingerprintProvider
	onExpired   SessionExpiredFunc
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		config: &Config{
			Timeout:              DefaultTimeout,
			MaxRetries:           DefaultMaxRetries,
			RetryDelay:           DefaultRetryDelay,
			RetryMultiplier:      DefaultRetryMultiplier,
			EndpointTimeouts:     DefaultEndpointTimeouts(),
			AuthStrategy:         auth.StrategyJWT,
			BootstrapPaths:       DefaultBootstrapPaths(),
			LoginPath:            DefaultLoginPath,
			MaxPayloadLogBytes:   DefaultMaxPayloadLogBytes,
			RequestInterceptors:  []RequestInterceptor{},
			ResponseInterceptors: []ResponseInterceptor{},
			DefaultHeaders:       make(map[string]string),
		},
		logger: log,
	}
}

// FromConfig creates a builder seeded from the api section of the application config.
func FromConfig(cfg *config.APIConfig, log logger.Logger) (*Builder, error) {
	b := NewBuilder(log).
		WithBaseURL(cfg.BaseURL).
		WithRetries(cfg.Retry.Max, cfg.Retry.Delay).
		WithRetryMultiplier(cfg.Retry.Multiplier).
		WithPayloadLogging(cfg.LogPayloads, DefaultMaxPayloadLogBytes).
		WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	if cfg.Timeout > 0 {
		b.WithTimeout(cfg.Timeout)
	}
	if len(cfg.Timeouts) > 0 {
		entries := make([]EndpointTimeout, 0, len(cfg.Timeouts))
		for _, t := range cfg.Timeouts {
			entries = append(entries, EndpointTimeout{Pattern: t.Pattern, Timeout: t.Timeout})
		}
		b.WithEndpointTimeouts(entries)
	}

	strategy, err := auth.ParseStrategy(cfg.Auth.Strategy)
	if err != nil {
		return nil, err
	}
	b.WithAuthStrategy(strategy)
	if len(cfg.Auth.Bootstrap) > 0 {
		b.WithBootstrapPaths(cfg.Auth.Bootstrap...)
	}
	if cfg.Auth.LoginPath != "" {
		b.WithLoginPath(cfg.Auth.LoginPath)
	}
	for k, v := range cfg.Headers {
		b.WithDefaultHeader(k, v)
	}
	return b, nil
}

// WithBaseURL sets the API origin endpoints are resolved against.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithTimeout sets the timeout used when no endpoint pattern matches
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetries sets the total attempt count and the first backoff delay.
func (b *Builder) WithRetries(maxRetries int, retryDelay time.Duration) *Builder {
	b.config.MaxRetries = maxRetries
	b.config.RetryDelay = retryDelay
	return b
}

// WithRetryMultiplier sets the backoff growth factor. Values below 1 would
// shrink the delay between attempts and are raised to 1, a constant backoff.
func (b *Builder) WithRetryMultiplier(multiplier float64) *Builder {
	if multiplier < 1 {
		b.logger.Warn().
			Str("multiplier", strconv.FormatFloat(multiplier, 'f', -1, 64)).
			Msg("Retry multiplier below 1, using constant backoff")
		multiplier = 1
	}
	b.config.RetryMultiplier = multiplier
	return b
}

// WithEndpointTimeouts replaces the endpoint timeout table.
func (b *Builder) WithEndpointTimeouts(entries []EndpointTimeout) *Builder {
	b.config.EndpointTimeouts = append([]EndpointTimeout(nil), entries...)
	return b
}

// WithEndpointTimeout appends a pattern to the timeout table.
func (b *Builder) WithEndpointTimeout(pattern string, timeout time.Duration) *Builder {
	b.config.EndpointTimeouts = append(b.config.EndpointTimeouts, EndpointTimeout{Pattern: pattern, Timeout: timeout})
	return b
}

// WithAuthStrategy sets the initial Authorization scheme.
func (b *Builder) WithAuthStrategy(strategy auth.Strategy) *Builder {
	b.config.AuthStrategy = strategy
	return b
}

// WithBootstrapPaths replaces the endpoints exempt from proactive refresh.
func (b *Builder) WithBootstrapPaths(paths ...string) *Builder {
	b.config.BootstrapPaths = append([]string(nil), paths...)
	return b
}

// WithLoginPath sets the route passed to the session expired handler.
func (b *Builder) WithLoginPath(path string) *Builder {
	b.config.LoginPath = path
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithPayloadLogging logs headers and bodies at debug level, truncated to maxBytes.
// Sensitive JSON fields are masked; non-JSON bodies are logged by size only.
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.config.LogPayloads = enabled
	b.config.MaxPayloadLogBytes = maxBytes
	return b
}

// WithRateLimit throttles outgoing attempts; rps <= 0 disables throttling.
func (b *Builder) WithRateLimit(rps float64, burst int) *Builder {
	b.config.RateLimit = rps
	b.config.RateBurst = burst
	return b
}

// WithTransport sets the round tripper used for requests.
func (b *Builder) WithTransport(rt nethttp.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithAuth wires an auth manager: it must supply tokens and may also
// refresh them and clear the session.
func (b *Builder) WithAuth(a TokenSource) *Builder {
	b.tokens = a
	if r, ok := a.(TokenRefresher); ok {
		b.refresher = r
	}
	if c, ok := a.(SessionClearer); ok {
		b.clearer = c
	}
	return b
}

// WithTokenRefresher overrides the refresher set by WithAuth.
func (b *Builder) WithTokenRefresher(r TokenRefresher) *Builder {
	b.refresher = r
	return b
}

// WithSessionClearer overrides the clearer set by WithAuth.
func (b *Builder) WithSessionClearer(c SessionClearer) *Builder {
	b.clearer = c
	return b
}

// WithFingerprint sets the X-Device-ID source.
func (b *Builder) WithFingerprint(p FingerprintProvider) *Builder {
	b.fingerprint = p
	return b
}

// WithSessionExpiredHandler is called after a failed refresh logged the user out.
func (b *Builder) WithSessionExpiredHandler(fn SessionExpiredFunc) *Builder {
	b.onExpired = fn
	return b
}

// Build creates the REST client with the configured options
func (b *Builder) Build() Client {
	sleepFn := b.sleep
	if sleepFn == nil {
		sleepFn = sleep
	}

	var limiter *rate.Limiter
	if b.config.RateLimit > 0 {
		burst := b.config.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(b.config.RateLimit), burst)
	}

	strategy := b.config.AuthStrategy
	if strategy == "" {
		strategy = auth.StrategyJWT
	}

	return &client{
		// Per-attempt contexts carry the endpoint timeouts.
		httpClient: &nethttp.Client{Transport: b.transport},
		logger:     b.logger,
		config:     b.config,
		timeouts: TimeoutTable{
			Entries: b.config.EndpointTimeouts,
			Default: b.config.Timeout,
		},
		requestInterceptors:  b.config.RequestInterceptors,
		responseInterceptors: b.config.ResponseInterceptors,
		tokens:               b.tokens,
		refresher:            b.refresher,
		clearer:              b.clearer,
		fingerprint:          b.fingerprint,
		onExpired:            b.onExpired,
		limiter:              limiter,
		filter:               logger.NewSensitiveDataFilter(nil),
		sleep:                sleepFn,
		strategy:             strategy,
	}
}

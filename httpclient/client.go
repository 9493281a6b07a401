package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/httpclient/internal/tracking"
	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/trace"
)

const (
	// HeaderDeviceID carries the device fingerprint.
	HeaderDeviceID = "X-Device-ID"

	// DefaultLoginPath is where users are sent after their session expired.
	DefaultLoginPath = "/login"

	// DefaultMaxPayloadLogBytes truncates logged bodies.
	DefaultMaxPayloadLogBytes = 4096
)

// DefaultBootstrapPaths are endpoints that never trigger a proactive refresh.
func DefaultBootstrapPaths() []string {
	return []string{"/auth/login", "/auth/register", "/auth/refresh"}
}

// client implements the Client interface
type client struct {
	httpClient           *nethttp.Client
	logger               logger.Logger
	config               *Config
	timeouts             TimeoutTable
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	callCount            int64

	tokens      TokenSource
	refresher   TokenRefresher
	clearer     SessionClearer
	fingerprint FingerprintProvider
	onExpired   SessionExpiredFunc
	limiter     *rate.Limiter
	filter      *logger.SensitiveDataFilter
	sleep       func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	strategy auth.Strategy
}

// call is one logical request; its payload is encoded once and reused by
// every attempt.
type call struct {
	method    string
	endpoint  string
	group     string
	timeout   time.Duration
	req       *Request
	payload   *payload
	requestID string
	start     time.Time
	callCount int64
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, endpoint string, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, endpoint, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, endpoint string, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, endpoint, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, endpoint string, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, endpoint, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, endpoint string, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, endpoint, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, endpoint string, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, endpoint, req)
}

// SetAuthStrategy switches the Authorization scheme for subsequent requests.
func (c *client) SetAuthStrategy(strategy auth.Strategy) {
	c.mu.Lock()
	c.strategy = strategy
	c.mu.Unlock()

	if s, ok := c.tokens.(strategySetter); ok {
		s.SetStrategy(strategy)
	}
	c.logger.Info().Str("strategy", strategy.String()).Msg("Auth strategy changed")
}

// AuthStrategy returns the active Authorization scheme.
func (c *client) AuthStrategy() auth.Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy
}

// Do performs an HTTP request with the specified method
func (c *client) Do(ctx context.Context, method, endpoint string, req *Request) (*Response, error) {
	if endpoint == "" {
		return nil, NewValidationError("endpoint cannot be empty", "endpoint")
	}
	if method == "" {
		method = nethttp.MethodGet
	}
	if req == nil {
		req = &Request{}
	}

	p, err := encodeBody(method, req.Body)
	if err != nil {
		return nil, &Error{Type: ValidationError, Message: "failed to encode request body", Cause: err}
	}

	ctx, requestID := trace.EnsureContext(ctx)
	group, timeout := c.timeouts.Match(endpoint)
	cl := &call{
		method:    strings.ToUpper(method),
		endpoint:  endpoint,
		group:     group,
		timeout:   timeout,
		req:       req,
		payload:   p,
		requestID: requestID,
		start:     time.Now(),
		callCount: atomic.AddInt64(&c.callCount, 1),
	}
	return c.execute(ctx, cl, callState{attempt: 1})
}

// execute runs the retry loop for one call. state is owned by this
// invocation; the post-refresh retry starts its own loop.
func (c *client) execute(ctx context.Context, cl *call, state callState) (*Response, error) {
	maxAttempts := c.maxAttempts()
	for {
		resp, err := c.attempt(ctx, cl, state)
		if err == nil {
			return resp, nil
		}

		if c.shouldRefresh(ctx, err, state) {
			return c.refreshAndRetry(ctx, cl, err)
		}

		if !IsRetryable(err) || state.attempt >= maxAttempts {
			return nil, err
		}

		delay := BackoffDelay(c.config.RetryDelay, c.config.RetryMultiplier, state.attempt)
		reason := retryReason(err)
		tracking.RecordRetry(ctx, cl.method, cl.group, reason)
		c.logger.Warn().
			Str("method", cl.method).
			Str("endpoint", cl.endpoint).
			Str("request_id", cl.requestID).
			Int("attempt", state.attempt).
			Int("max_attempts", maxAttempts).
			Str("reason", reason).
			Dur("delay", delay).
			Msg("Retrying API request")

		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, c.withCall(NewCanceledError(serr), cl)
		}
		state = state.next()
	}
}

func (c *client) maxAttempts() int {
	if c.config.MaxRetries < 1 {
		return 1
	}
	return c.config.MaxRetries
}

func retryReason(err error) string {
	if IsErrorType(err, NetworkError) {
		return string(NetworkError)
	}
	if IsErrorType(err, TimeoutError) {
		return string(TimeoutError)
	}
	return strconv.Itoa(StatusOf(err))
}

// shouldRefresh gates the reactive refresh: a 401 on the first pass of a
// call that has a refresh token. Timeouts never enter this path.
func (c *client) shouldRefresh(ctx context.Context, err error, state callState) bool {
	if state.authRetried || c.refresher == nil {
		return false
	}
	if IsErrorType(err, TimeoutError) || !IsHTTPStatusError(err, nethttp.StatusUnauthorized) {
		return false
	}
	return c.refresher.HasRefreshToken(ctx)
}

// refreshAndRetry refreshes the session and repeats the call once with a
// fresh attempt budget. A rejected refresh logs the user out and surfaces the
// original 401; a refresh cut short by a deadline keeps the session.
func (c *client) refreshAndRetry(ctx context.Context, cl *call, original error) (*Response, error) {
	c.logger.Info().
		Str("endpoint", cl.endpoint).
		Str("request_id", cl.requestID).
		Msg("Access token rejected, refreshing session")

	var resp *Response
	err := c.refresher.HandleAuthError(ctx, func(ctx context.Context) error {
		var rerr error
		resp, rerr = c.execute(ctx, cl, callState{attempt: 1, authRetried: true})
		return rerr
	})

	if err != nil && ctx.Err() != nil {
		return nil, c.withCall(NewCanceledError(ctx.Err()), cl)
	}

	if errors.Is(err, auth.ErrRefreshFailed) {
		tracking.RecordRefresh(ctx, tracking.TriggerReactive, err)
		if interrupted(err) {
			c.logger.Warn().Err(err).Str("request_id", cl.requestID).Msg("Token refresh interrupted, session kept")
			return nil, original
		}
		c.logger.Warn().Err(err).Str("request_id", cl.requestID).Msg("Token refresh failed, session expired")
		c.expireSession(ctx)
		return nil, original
	}

	tracking.RecordRefresh(ctx, tracking.TriggerReactive, nil)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// interrupted reports a refresh that ended on a context deadline or
// cancellation rather than a rejected refresh token.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *client) expireSession(ctx context.Context) {
	if c.clearer != nil {
		if err := c.clearer.ClearSession(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to clear session")
		}
	}

	loginPath := c.config.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if c.onExpired != nil {
		c.onExpired(ctx, loginPath)
		return
	}
	c.logger.Info().Str("login_path", loginPath).Msg("Session expired, login required")
}

// refreshProactively renews a JWT close to expiry. Failures are logged and
// the request proceeds; a 401 still triggers the reactive path.
func (c *client) refreshProactively(ctx context.Context, cl *call) {
	if c.refresher == nil || c.AuthStrategy() != auth.StrategyJWT || c.isBootstrap(cl.endpoint) {
		return
	}
	if err := c.refresher.RefreshIfNeeded(ctx); err != nil {
		tracking.RecordRefresh(ctx, tracking.TriggerProactive, err)
		c.logger.Warn().
			Err(err).
			Str("endpoint", cl.endpoint).
			Str("request_id", cl.requestID).
			Msg("Proactive token refresh failed")
	}
}

func (c *client) isBootstrap(endpoint string) bool {
	for _, p := range c.config.BootstrapPaths {
		if p != "" && strings.Contains(endpoint, p) {
			return true
		}
	}
	return false
}

// attempt performs a single round trip under the endpoint timeout.
func (c *client) attempt(ctx context.Context, cl *call, state callState) (*Response, error) {
	c.refreshProactively(ctx, cl)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.withCall(NewCanceledError(err), cl)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, cl.timeout)
	defer cancel()

	httpReq, err := c.buildRequest(attemptCtx, cl)
	if err != nil {
		return nil, c.withCall(err, cl)
	}

	c.logRequest(cl, state, httpReq)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cerr := c.classifyTransportError(ctx, attemptCtx, cl, err)
		c.finishAttempt(ctx, cl, 0, cerr, start)
		return nil, cerr
	}

	resp, err := c.buildResponse(ctx, attemptCtx, cl, state, httpReq, httpResp)
	if err != nil {
		cerr := c.withCall(err, cl)
		c.finishAttempt(ctx, cl, httpResp.StatusCode, cerr, start)
		return nil, cerr
	}

	c.logResponse(cl, resp)
	if !IsSuccessStatus(resp.StatusCode) {
		herr := c.withCall(newStatusError(resp), cl)
		c.finishAttempt(ctx, cl, resp.StatusCode, herr, start)
		return nil, herr
	}

	c.finishAttempt(ctx, cl, resp.StatusCode, nil, start)
	return resp, nil
}

func (c *client) finishAttempt(ctx context.Context, cl *call, status int, err error, start time.Time) {
	elapsed := time.Since(start)
	logger.IncrementHTTPCounter(ctx)
	logger.AddHTTPElapsed(ctx, elapsed.Nanoseconds())

	errType := ""
	var clientErr *Error
	if errors.As(err, &clientErr) {
		errType = string(clientErr.Type)
	}
	tracking.RecordAttempt(ctx, cl.method, cl.group, status, errType, elapsed)
}

// classifyTransportError separates caller cancellation from the endpoint
// timeout and from plain network failures.
func (c *client) classifyTransportError(ctx, attemptCtx context.Context, cl *call, err error) *Error {
	if ctx.Err() != nil {
		return c.withCall(NewCanceledError(ctx.Err()), cl)
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		terr := NewTimeoutError(fmt.Sprintf("no response within %v", cl.timeout), cl.timeout)
		terr.Cause = err
		return c.withCall(terr, cl)
	}
	return c.withCall(NewNetworkError("request execution failed", err), cl)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *client) withCall(err error, cl *call) *Error {
	var clientErr *Error
	if !errors.As(err, &clientErr) {
		clientErr = &Error{Type: NetworkError, Message: err.Error(), Status: StatusNetworkError, Cause: err}
	}
	clientErr.Method = cl.method
	clientErr.Endpoint = cl.endpoint
	return clientErr
}

func (c *client) resolveURL(cl *call) (string, error) {
	raw := cl.endpoint
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		base := strings.TrimRight(c.config.BaseURL, "/")
		if base == "" {
			return "", NewValidationError("base URL is not configured", "baseurl")
		}
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		raw = base + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &Error{Type: ValidationError, Message: "invalid request URL", Cause: err}
	}
	if len(cl.req.Query) > 0 {
		q := u.Query()
		for k, vs := range cl.req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// buildRequest constructs an *http.Request, applies headers, and runs request interceptors.
func (c *client) buildRequest(ctx context.Context, cl *call) (*nethttp.Request, error) {
	target, err := c.resolveURL(cl)
	if err != nil {
		return nil, err
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, cl.method, target, cl.payload.reader())
	if err != nil {
		return nil, NewNetworkError("failed to create HTTP request", err)
	}

	c.applyHeaders(ctx, httpReq, cl)

	if err := c.runRequestInterceptors(ctx, httpReq); err != nil {
		return nil, NewInterceptorError("request interceptor failed", "request", err)
	}
	return httpReq, nil
}

// applyHeaders layers defaults, device id, auth, request id and per-request
// overrides, in that order.
func (c *client) applyHeaders(ctx context.Context, httpReq *nethttp.Request, cl *call) {
	httpReq.Header.Set("Accept", contentTypeJSON)
	if !cl.payload.multipart {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}

	if c.fingerprint != nil {
		if id := c.fingerprint.ID(ctx); id != "" {
			httpReq.Header.Set(HeaderDeviceID, id)
		}
	}

	if authz := c.authorization(ctx); authz != "" {
		httpReq.Header.Set("Authorization", authz)
	}

	httpReq.Header.Set(trace.HeaderXRequestID, cl.requestID)

	for key, value := range cl.req.Headers {
		httpReq.Header.Set(key, value)
	}

	if cl.payload.multipart {
		httpReq.Header.Set("Content-Type", cl.payload.contentType)
	}
}

func (c *client) authorization(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	switch c.AuthStrategy() {
	case auth.StrategyJWT:
		token, err := c.tokens.AccessToken(ctx)
		if err != nil || token == "" {
			return ""
		}
		return "Bearer " + token
	case auth.StrategyTWA:
		initData, err := c.tokens.TWAInitData(ctx)
		if err != nil || initData == "" {
			return ""
		}
		return "TWA " + initData
	default:
		return ""
	}
}

// buildResponse runs response interceptors, reads body, and builds a Response.
func (c *client) buildResponse(ctx, attemptCtx context.Context, cl *call, state callState, httpReq *nethttp.Request, httpResp *nethttp.Response) (*Response, error) {
	defer httpResp.Body.Close()

	if err := c.runResponseInterceptors(ctx, httpReq, httpResp); err != nil {
		return nil, NewInterceptorError("response interceptor failed", "response", err)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.classifyTransportError(ctx, attemptCtx, cl, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     statusText(httpResp),
		Body:       respBody,
		Headers:    httpResp.Header,
		isJSON:     isJSONContentType(httpResp.Header.Get("Content-Type")),
		Stats: Stats{
			ElapsedTime: time.Since(cl.start),
			CallCount:   cl.callCount,
			Attempts:    state.attempt,
			RequestID:   cl.requestID,
		},
	}

	if len(strings.TrimSpace(string(respBody))) == 0 {
		return resp, nil
	}
	if !resp.isJSON {
		resp.data = map[string]any{"data": string(respBody)}
		return resp, nil
	}

	var data any
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, NewMalformedResponseError(httpResp.StatusCode, respBody, err)
	}
	resp.data = data
	return resp, nil
}

func statusText(resp *nethttp.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	return nethttp.StatusText(resp.StatusCode)
}

func newStatusError(resp *Response) *Error {
	return NewHTTPError(errorMessage(resp), resp.StatusCode, resp.Status, resp.Body, resp.data)
}

// errorMessage prefers the server's detail or message field.
func errorMessage(resp *Response) string {
	if m, ok := resp.data.(map[string]any); ok {
		for _, key := range []string{"detail", "message", "error"} {
			if s, ok := m[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("HTTP request failed with status %d", resp.StatusCode)
}

// runRequestInterceptors executes all request interceptors
func (c *client) runRequestInterceptors(ctx context.Context, req *nethttp.Request) error {
	for _, interceptor := range c.requestInterceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// runResponseInterceptors executes all response interceptors
func (c *client) runResponseInterceptors(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error {
	for _, interceptor := range c.responseInterceptors {
		if err := interceptor(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// logRequest logs the outgoing request
func (c *client) logRequest(cl *call, state callState, httpReq *nethttp.Request) {
	logEvent := c.logger.Debug().
		Str("direction", "outbound").
		Str("method", cl.method).
		Str("url", httpReq.URL.String()).
		Str("request_id", cl.requestID).
		Int("attempt", state.attempt).
		Bool("auth_retry", state.authRetried).
		Dur("timeout", cl.timeout)

	if c.config.LogPayloads {
		logEvent.Interface("headers", c.filter.FilterValue("headers", httpReq.Header))
		if !cl.payload.multipart && len(cl.payload.body) > 0 {
			c.logBody(logEvent, cl.payload.body)
		}
	}

	logEvent.Msg("REST client request")
}

// logResponse logs the incoming response
func (c *client) logResponse(cl *call, resp *Response) {
	logEvent := c.logger.Debug().
		Str("direction", "inbound").
		Str("method", cl.method).
		Str("endpoint", cl.endpoint).
		Str("request_id", cl.requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount)

	if c.config.LogPayloads && len(resp.Body) > 0 {
		c.logBody(logEvent, resp.Body)
	}

	logEvent.Msg("REST client response")
}

// logBody adds a payload to a debug event. JSON is masked before it is
// truncated; anything else is reported by size only.
func (c *client) logBody(event logger.LogEvent, body []byte) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		event.Int("body_bytes", len(body))
		return
	}

	filtered := c.filter.FilterValue("body", data)
	raw, err := json.Marshal(filtered)
	if err != nil {
		event.Int("body_bytes", len(body))
		return
	}
	if limit := c.config.MaxPayloadLogBytes; limit > 0 && len(raw) > limit {
		event.Str("body", string(raw[:limit]))
		return
	}
	event.Interface("body", filtered)
}

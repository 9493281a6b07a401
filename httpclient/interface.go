package httpclient

import (
	"context"
	"io"
	nethttp "net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/analyticbot/apiclient/auth"
)

// Client is the single gateway to the AnalyticBot API. Every request gets an
// endpoint-specific timeout, the device fingerprint, the active auth header
// and a correlation id; failures are retried and 401s trigger one token refresh.
type Client interface {
	Get(ctx context.Context, endpoint string, req *Request) (*Response, error)
	Post(ctx context.Context, endpoint string, req *Request) (*Response, error)
	Put(ctx context.Context, endpoint string, req *Request) (*Response, error)
	Patch(ctx context.Context, endpoint string, req *Request) (*Response, error)
	Delete(ctx context.Context, endpoint string, req *Request) (*Response, error)
	Do(ctx context.Context, method, endpoint string, req *Request) (*Response, error)

	UploadFile(ctx context.Context, upload *Upload, progress ProgressFunc) (*Response, error)
	UploadFileDirect(ctx context.Context, upload *Upload, progress ProgressFunc) (*Response, error)

	SetAuthStrategy(strategy auth.Strategy)
	AuthStrategy() auth.Strategy
}

// Request carries the optional parts of a call. A nil Request is valid.
//
// Body may be a *Form (sent as multipart/form-data), a string or []byte (sent
// verbatim) or any other value (JSON encoded). It is ignored for GET.
type Request struct {
	Query   url.Values
	Headers map[string]string
	Body    any
}

// Response represents an HTTP response with tracking information
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
	Headers    nethttp.Header
	Stats      Stats

	data   any
	isJSON bool
}

// Stats contains request execution statistics
type Stats struct {
	ElapsedTime time.Duration
	CallCount   int64
	Attempts    int
	RequestID   string
}

// Data returns the parsed body: the decoded JSON value, {"data": <text>} for
// non-JSON responses, or nil for an empty body.
func (r *Response) Data() any {
	return r.data
}

// IsJSON reports whether the response declared a JSON content type.
func (r *Response) IsJSON() bool {
	return r.isJSON
}

// Decode unmarshals the response into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r.data == nil {
		return nil
	}
	if r.isJSON {
		return json.Unmarshal(r.Body, v)
	}
	raw, err := json.Marshal(r.data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// RequestInterceptor is called before sending the request
type RequestInterceptor func(ctx context.Context, req *nethttp.Request) error

// ResponseInterceptor is called after receiving the response
type ResponseInterceptor func(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error

// ProgressFunc receives upload progress as a percentage.
type ProgressFunc func(percent int)

// SessionExpiredFunc is called after a failed refresh cleared the session.
// loginPath is the route the user should be sent to.
type SessionExpiredFunc func(ctx context.Context, loginPath string)

// TokenSource supplies credentials for the Authorization header.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	TWAInitData(ctx context.Context) (string, error)
}

// TokenRefresher keeps the JWT session alive.
type TokenRefresher interface {
	RefreshIfNeeded(ctx context.Context) error
	HandleAuthError(ctx context.Context, retry func(ctx context.Context) error) error
	HasRefreshToken(ctx context.Context) bool
}

// SessionClearer removes stored credentials after a terminal auth failure.
type SessionClearer interface {
	ClearSession(ctx context.Context) error
}

// FingerprintProvider returns the device id sent as X-Device-ID.
type FingerprintProvider interface {
	ID(ctx context.Context) string
}

type strategySetter interface {
	SetStrategy(s auth.Strategy)
}

// Upload describes a file sent to the media endpoints.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
	ChannelID   string
	Fields      map[string]string
}

// Config holds the REST client configuration
type Config struct {
	BaseURL              string
	Timeout              time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
	RetryMultiplier      float64
	EndpointTimeouts     []EndpointTimeout
	AuthStrategy         auth.Strategy
	BootstrapPaths       []string
	LoginPath            string
	DefaultHeaders       map[string]string
	LogPayloads          bool
	MaxPayloadLogBytes   int
	RateLimit            float64
	RateBurst            int
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
}

package httpclient

import (
	"context"
	"maps"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/logger"
)

// Test constants to avoid string duplication
const (
	testContentTypeHeader  = "Content-Type"
	testJSONType           = "application/json"
	testChannelsEndpoint   = "/api/v1/channels"
	testRestClientRequest  = "REST client request"
	testRestClientResponse = "REST client response"
	testDeviceID           = "dev_0123456789abcdef01234567"
)

func newIPv4TestServer(t *testing.T, handler nethttp.Handler) *httptest.Server {
	t.Helper()
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: unable to bind IPv4 listener: %v", err)
		return &httptest.Server{}
	}

	server := &httptest.Server{
		Listener: listener,
		Config:   &nethttp.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}

type roundTripperFunc func(*nethttp.Request) (*nethttp.Response, error)

func (f roundTripperFunc) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	return f(req)
}

// sleepRecorder replaces the backoff sleep so retry tests run instantly.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// newTestBuilder returns a builder against baseURL with instant backoff.
func newTestBuilder(baseURL string, log logger.Logger) (*Builder, *sleepRecorder) {
	rec := &sleepRecorder{}
	b := NewBuilder(log).WithBaseURL(baseURL)
	b.sleep = rec.sleep
	return b, rec
}

// fakeAuth implements the token, refresh and session interfaces.
type fakeAuth struct {
	mu           sync.Mutex
	token        string
	initData     string
	hasRefresh   bool
	refreshedTo  string
	refreshErr   error
	proactiveErr error
	onRefresh    func()

	proactiveCalls int
	refreshCalls   int
	clearCalls     int
	strategy       auth.Strategy
}

func (f *fakeAuth) AccessToken(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeAuth) TWAInitData(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initData, nil
}

func (f *fakeAuth) RefreshIfNeeded(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proactiveCalls++
	return f.proactiveErr
}

func (f *fakeAuth) HandleAuthError(ctx context.Context, retry func(ctx context.Context) error) error {
	f.mu.Lock()
	f.refreshCalls++
	if f.onRefresh != nil {
		f.onRefresh()
	}
	if f.refreshErr != nil {
		err := f.refreshErr
		f.mu.Unlock()
		return err
	}
	f.token = f.refreshedTo
	f.mu.Unlock()
	return retry(ctx)
}

func (f *fakeAuth) HasRefreshToken(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasRefresh
}

func (f *fakeAuth) ClearSession(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.token = ""
	f.hasRefresh = false
	return nil
}

func (f *fakeAuth) SetStrategy(s auth.Strategy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategy = s
}

func (f *fakeAuth) counts() (proactive, refresh, clear int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.proactiveCalls, f.refreshCalls, f.clearCalls
}

type staticFingerprint string

func (s staticFingerprint) ID(_ context.Context) string {
	return string(s)
}

// fakeLogEvent implements logger.LogEvent for testing
type fakeLogEvent struct {
	logger *fakeLogger
	level  string
	fields map[string]any
}

func (e *fakeLogEvent) Msg(msg string) {
	e.logger.mu.Lock()
	defer e.logger.mu.Unlock()
	e.logger.events = append(e.logger.events, loggedEvent{
		level:   e.level,
		fields:  maps.Clone(e.fields),
		message: msg,
	})
}

func (e *fakeLogEvent) Msgf(format string, _ ...any) {
	e.Msg(format)
}

func (e *fakeLogEvent) Err(err error) logger.LogEvent {
	e.fields["error"] = err
	return e
}

func (e *fakeLogEvent) Str(key, value string) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int(key string, value int) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Int64(key string, value int64) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Bool(key string, value bool) logger.LogEvent {
	e.fields[key] = value
	return e
}

func (e *fakeLogEvent) Dur(key string, d time.Duration) logger.LogEvent {
	e.fields[key] = d
	return e
}

func (e *fakeLogEvent) Interface(key string, i any) logger.LogEvent {
	e.fields[key] = i
	return e
}

func (e *fakeLogEvent) Bytes(key string, val []byte) logger.LogEvent {
	e.fields[key] = val
	return e
}

// fakeLogger implements logger.Logger for testing
type fakeLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

type loggedEvent struct {
	level   string
	fields  map[string]any
	message string
}

func (l *fakeLogger) event(level string) logger.LogEvent {
	return &fakeLogEvent{logger: l, level: level, fields: make(map[string]any)}
}

func (l *fakeLogger) Info() logger.LogEvent  { return l.event("info") }
func (l *fakeLogger) Error() logger.LogEvent { return l.event("error") }
func (l *fakeLogger) Debug() logger.LogEvent { return l.event("debug") }
func (l *fakeLogger) Warn() logger.LogEvent  { return l.event("warn") }
func (l *fakeLogger) Fatal() logger.LogEvent { return l.event("fatal") }

func (l *fakeLogger) WithContext(_ any) logger.Logger {
	return l
}

func (l *fakeLogger) WithFields(_ map[string]any) logger.Logger {
	return l
}

func (l *fakeLogger) eventsByMessage(msg string) []loggedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var events []loggedEvent
	for _, event := range l.events {
		if event.message == msg {
			events = append(events, event)
		}
	}
	return events
}

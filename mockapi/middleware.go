package mockapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/analyticbot/apiclient/logger"
)

const (
	// HeaderMockFail asks the server to fail the request. Values are "429",
	// "503" or "timeout", optionally followed by ":N" to fail only the first
	// N attempts sharing an X-Request-ID.
	HeaderMockFail = "X-Mock-Fail"

	// maxHang bounds how long a "timeout" fault holds the connection.
	maxHang = time.Minute

	bodyLimit = "32M"

	userIDKey = "user_id"
)

func (s *Server) setupMiddlewares() {
	s.echo.Use(middleware.RequestID())
	s.echo.Use(otelecho.Middleware(s.serviceName))
	s.echo.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.log.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Bytes("stack", stack).
				Msg("Panic recovered")
			return err
		},
	}))
	s.echo.Use(middleware.BodyLimit(bodyLimit))
	s.echo.Use(requestLogger(s.log))
	s.echo.Use(latency(s.latency))
	s.echo.Use(s.faults.middleware())
}

// requestLogger emits one line per request, at warn level for 4xx and 5xx.
func requestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			event := log.Debug()
			if status >= http.StatusBadRequest {
				event = log.Warn()
			}
			event.
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("Mock API request")
			return nil
		}
	}
}

// latency delays every request by d, or until the client goes away.
func latency(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if d > 0 {
				t := time.NewTimer(d)
				select {
				case <-t.C:
				case <-c.Request().Context().Done():
					t.Stop()
					return c.Request().Context().Err()
				}
			}
			return next(c)
		}
	}
}

// faultInjector counts injected failures per request id so a client retry
// loop can be made to fail a fixed number of times.
type faultInjector struct {
	mu    sync.Mutex
	seen  map[string]int
	total int
}

func newFaultInjector() *faultInjector {
	return &faultInjector{seen: make(map[string]int)}
}

// Injected returns the number of faults served so far.
func (f *faultInjector) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// shouldFail reports whether this attempt falls within the first limit
// attempts for the request id. A limit of 0 fails every attempt.
func (f *faultInjector) shouldFail(requestID string, limit int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && requestID != "" {
		if f.seen[requestID] >= limit {
			return false
		}
		f.seen[requestID]++
	}
	f.total++
	return true
}

func parseFault(v string) (kind string, limit int) {
	kind, count, found := strings.Cut(strings.TrimSpace(v), ":")
	if found {
		if n, err := strconv.Atoi(count); err == nil && n > 0 {
			limit = n
		}
	}
	return strings.ToLower(kind), limit
}

func (f *faultInjector) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(HeaderMockFail)
			if header == "" {
				return next(c)
			}
			kind, limit := parseFault(header)
			if !f.shouldFail(c.Request().Header.Get(echo.HeaderXRequestID), limit) {
				return next(c)
			}

			switch kind {
			case "429":
				c.Response().Header().Set("Retry-After", "1")
				return newAPIError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			case "503":
				return newAPIError(http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable")
			case "timeout":
				t := time.NewTimer(maxHang)
				defer t.Stop()
				select {
				case <-t.C:
				case <-c.Request().Context().Done():
				}
				return newAPIError(http.StatusGatewayTimeout, "TIMEOUT", "Upstream timed out")
			default:
				return errBadRequest("unknown " + HeaderMockFail + " value: " + kind)
			}
		}
	}
}

// requireAuth accepts a Bearer access token issued by the server or any
// non-empty Telegram WebApp init data, which maps to the demo user.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		scheme, credentials, _ := strings.Cut(header, " ")
		credentials = strings.TrimSpace(credentials)

		switch {
		case strings.EqualFold(scheme, "Bearer") && credentials != "":
			claims, err := s.tokens.Verify(credentials)
			if err != nil {
				return errUnauthorized("Could not validate credentials")
			}
			id, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				return errUnauthorized("Could not validate credentials")
			}
			c.Set(userIDKey, id)
		case strings.EqualFold(scheme, "TWA") && credentials != "":
			c.Set(userIDKey, DemoUserID)
		default:
			return errUnauthorized("Not authenticated")
		}
		return next(c)
	}
}

func currentUserID(c echo.Context) int64 {
	id, _ := c.Get(userIDKey).(int64)
	return id
}

// Package mockapi serves a local stand-in for the AnalyticBot backend. It
// issues real JWTs, keeps state in memory, returns deterministic analytics
// and can inject faults on demand, which makes it suitable for exercising
// the client's retry and token refresh paths end to end.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/analyticbot/apiclient/config"
	"github.com/analyticbot/apiclient/httpclient"
	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/services"
	"github.com/analyticbot/apiclient/validation"
)

const readHeaderTimeout = 10 * time.Second

// Server is the mock AnalyticBot backend.
type Server struct {
	echo        *echo.Echo
	cfg         config.MockAPIConfig
	serviceName string
	log         logger.Logger
	tokens      *TokenIssuer
	store       *store
	faults      *faultInjector
	latency     time.Duration
	now         func() time.Time
}

// New creates a server with its routes and middlewares registered.
func New(cfg config.MockAPIConfig, serviceName string, log logger.Logger) (*Server, error) {
	if len(cfg.JWT.Secret) < 16 {
		return nil, errors.New("mockapi: jwt secret must be at least 16 bytes")
	}
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return nil, errors.New("mockapi: token lifetimes must be positive")
	}
	if log == nil {
		log = logger.Nop()
	}
	if serviceName == "" {
		serviceName = "analyticbot-mockapi"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Validator = validation.New()
	e.HTTPErrorHandler = errorHandler(log)

	s := &Server{
		echo:        e,
		cfg:         cfg,
		serviceName: serviceName,
		log:         log,
		tokens:      NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		faults:      newFaultInjector(),
		latency:     cfg.Latency,
		now:         time.Now,
	}
	s.store = newStore()
	s.setupMiddlewares()
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET(services.PathHealth, s.health)

	e.POST(services.PathLogin, s.login)
	e.POST(services.PathRegister, s.register)
	e.POST(services.PathRefresh, s.refresh)
	e.GET(services.PathMe, s.me, s.requireAuth)
	e.POST(services.PathLogout, s.logout, s.requireAuth)

	channels := e.Group(services.PathChannels, s.requireAuth)
	channels.GET("", s.listChannels)
	channels.POST("", s.createChannel)
	channels.GET("/:id", s.getChannel)
	channels.DELETE("/:id", s.deleteChannel)

	s.registerAnalytics(e.Group(services.PathAnalyticsBase, s.requireAuth))

	e.GET(services.PathMTProtoStatus, s.mtprotoStatus, s.requireAuth)
	e.POST(services.PathMTProtoQRStart, s.startQR, s.requireAuth)
	e.GET(services.PathMTProtoQRPoll, s.pollQR, s.requireAuth)
	e.POST(services.PathMTProtoSendCode, s.sendCode, s.requireAuth)
	e.POST(services.PathMTProtoVerifyCode, s.verifyCode, s.requireAuth)
	e.POST(services.PathMTProtoVerifyPassword, s.verifyPassword, s.requireAuth)
	e.POST(services.PathMTProtoDisconnect, s.disconnect, s.requireAuth)

	e.GET(services.PathMedia, s.listMedia, s.requireAuth)
	e.POST(httpclient.UploadEndpoint, s.upload(false), s.requireAuth)
	e.POST(httpclient.UploadDirectEndpoint, s.upload(true), s.requireAuth)
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Tokens returns the token issuer, for revoking sessions from tests and tools.
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// FaultsInjected returns how many requests were failed on purpose.
func (s *Server) FaultsInjected() int {
	return s.faults.Injected()
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.log.Info().
		Str("service", s.serviceName).
		Str("address", addr).
		Dur("latency", s.latency).
		Msg("Starting mock API...")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s.echo.StartServer(server)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// jsonSerializer renders and binds bodies with goccy/go-json.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i any) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body").SetInternal(err)
	}
	return nil
}

// Package app wires configuration, storage, authentication and the API client
// into a ready-to-use AnalyticBot client.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/config"
	"github.com/analyticbot/apiclient/fingerprint"
	"github.com/analyticbot/apiclient/httpclient"
	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/observability"
	"github.com/analyticbot/apiclient/services"
	"github.com/analyticbot/apiclient/storage"
	"github.com/analyticbot/apiclient/storage/memory"
	"github.com/analyticbot/apiclient/storage/redis"
)

// App holds the wired client and the resources it owns.
type App struct {
	cfg           *config.Config
	logger        logger.Logger
	observability observability.Provider
	store         storage.Store
	fingerprint   *fingerprint.Provider
	auth          *auth.Manager
	keeper        *auth.Keeper
	client        httpclient.Client
	services      *services.Services
}

// Options customizes NewWithConfig.
type Options struct {
	// Logger replaces the logger built from cfg.Log.
	Logger logger.Logger
	// Store replaces the backend selected by cfg.Storage.
	Store storage.Store
	// ObservabilityOptions are passed to observability.NewProvider.
	ObservabilityOptions []observability.Option
	// SessionExpired is called after a failed refresh cleared the session.
	SessionExpired httpclient.SessionExpiredFunc
}

// New loads configuration and builds the client.
func New(opts ...config.Option) (*App, error) {
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, Options{})
}

// NewWithConfig builds the client from an already loaded configuration.
func NewWithConfig(cfg *config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
	}

	a := &App{cfg: cfg, logger: log}
	if err := a.init(opts); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Str("version", cfg.App.Version).
		Str("base_url", cfg.API.BaseURL).
		Str("storage", cfg.Storage.Type).
		Str("auth_strategy", string(a.client.AuthStrategy())).
		Msg("AnalyticBot client ready")
	return a, nil
}

func (a *App) init(opts Options) error {
	cfg := a.cfg

	provider, err := observability.NewProvider(cfg.Observability, cfg.App, opts.ObservabilityOptions...)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	a.observability = provider

	a.store = opts.Store
	if a.store == nil {
		if a.store, err = newStore(&cfg.Storage, a.logger); err != nil {
			return err
		}
	}

	a.fingerprint = fingerprint.New(a.store, a.logger)

	strategy, err := auth.ParseStrategy(cfg.API.Auth.Strategy)
	if err != nil {
		return err
	}
	a.auth, err = auth.NewManager(auth.Options{
		Store:           a.store,
		Logger:          a.logger,
		Strategy:        strategy,
		BaseURL:         cfg.API.BaseURL,
		RefreshEndpoint: cfg.API.Auth.Refresh.Endpoint,
		Threshold:       cfg.API.Auth.Refresh.Threshold,
		DeviceID:        a.fingerprint.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth manager: %w", err)
	}

	builder, err := httpclient.FromConfig(&cfg.API, a.logger)
	if err != nil {
		return fmt.Errorf("failed to configure API client: %w", err)
	}
	builder.WithAuth(a.auth).WithFingerprint(a.fingerprint)
	if opts.SessionExpired != nil {
		builder.WithSessionExpiredHandler(opts.SessionExpired)
	}
	a.client = builder.Build()
	a.services = services.New(a.client, a.auth, a.logger)

	if cfg.API.Auth.Refresh.Interval > 0 {
		a.keeper = auth.NewKeeper(a.auth, cfg.API.Auth.Refresh.Interval, a.logger)
		if err := a.keeper.Start(); err != nil {
			return fmt.Errorf("failed to start token keeper: %w", err)
		}
	}
	return nil
}

func newStore(cfg *config.StorageConfig, log logger.Logger) (storage.Store, error) {
	switch cfg.Type {
	case config.StorageRedis:
		rcfg := redis.FromConfig(cfg)
		client, err := redis.NewClient(rcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis storage: %w", err)
		}
		log.Info().Str("address", rcfg.Address()).Msg("Using redis storage")
		return client, nil
	case config.StorageMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.logger }

// Client returns the API client.
func (a *App) Client() httpclient.Client { return a.client }

// Services returns the typed API services.
func (a *App) Services() *services.Services { return a.services }

// Auth returns the token manager.
func (a *App) Auth() *auth.Manager { return a.auth }

// Store returns the storage backend.
func (a *App) Store() storage.Store { return a.store }

// Health checks the storage backend.
func (a *App) Health(ctx context.Context) error {
	if a.store == nil {
		return errors.New("app: storage not initialized")
	}
	return a.store.Health(ctx)
}

// Close stops the keeper, closes storage and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.keeper != nil {
		if err := a.keeper.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop token keeper: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	if a.observability != nil {
		if err := a.observability.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	a.logger.Info().Msg("AnalyticBot client closed")
	return nil
}

// Command mockapi serves the in-memory AnalyticBot backend for local
// development and integration tests.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/analyticbot/apiclient/config"
	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/mockapi"
	"github.com/analyticbot/apiclient/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", false).Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	provider, err := observability.NewProvider(cfg.Observability, cfg.App)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize observability")
	}

	srv, err := mockapi.New(cfg.MockAPI, cfg.Observability.ServiceName, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create mock API")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		log.Info().Msg("Shutting down mock API")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Mock API stopped")
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MockAPI.Shutdown)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown mock API")
		exitCode = 1
	}
	if err := observability.Shutdown(provider, cfg.MockAPI.Shutdown); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown observability")
	}

	cancel()
	os.Exit(exitCode)
}

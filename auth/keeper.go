package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/analyticbot/apiclient/logger"
)

// Keeper refreshes tokens in the background for long-running processes, so a
// session survives idle periods with no outgoing requests.
type Keeper struct {
	manager  *Manager
	interval time.Duration
	timeout  time.Duration
	log      logger.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewKeeper creates a Keeper that checks the token every interval.
func NewKeeper(manager *Manager, interval time.Duration, log logger.Logger) *Keeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Keeper{
		manager:  manager,
		interval: interval,
		timeout:  defaultRefreshTimeout,
		log:      log,
	}
}

// Start schedules the refresh job. Calling Start twice is an error.
func (k *Keeper) Start() error {
	if k.interval <= 0 {
		return fmt.Errorf("auth keeper: interval must be positive, got %s", k.interval)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.scheduler != nil {
		return errors.New("auth keeper: already started")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("auth keeper: failed to create scheduler: %w", err)
	}

	if _, err := s.NewJob(
		gocron.DurationJob(k.interval),
		gocron.NewTask(k.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("token-keeper"),
	); err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("auth keeper: failed to schedule job: %w", err)
	}

	s.Start()
	k.scheduler = s

	k.log.Info().Dur("interval", k.interval).Msg("Token keeper started")
	return nil
}

// Stop shuts the scheduler down, waiting for a running refresh to finish.
func (k *Keeper) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.scheduler == nil {
		return nil
	}
	err := k.scheduler.Shutdown()
	k.scheduler = nil
	if err != nil {
		return fmt.Errorf("auth keeper: shutdown: %w", err)
	}
	k.log.Info().Msg("Token keeper stopped")
	return nil
}

func (k *Keeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	if err := k.manager.RefreshIfNeeded(ctx); err != nil {
		k.log.Warn().Err(err).Msg("Background token refresh failed")
	}
}

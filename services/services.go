// Package services exposes typed AnalyticBot operations on top of the API
// client. Services hold no state: no caching and no demo fallbacks.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/httpclient"
	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/validation"
)

// SessionStore persists the credentials returned by login and register.
type SessionStore interface {
	StoreSession(ctx context.Context, s auth.Session) error
	ClearSession(ctx context.Context) error
	SetTWAInitData(ctx context.Context, initData string) error
}

// Services bundles every domain service over one client.
type Services struct {
	Auth      *AuthService
	Channels  *ChannelService
	Analytics *AnalyticsService
	MTProto   *MTProtoService
	Media     *MediaService
}

// New wires all services to client. sessions may be nil when the caller
// manages credentials itself; login then only returns the tokens.
func New(client httpclient.Client, sessions SessionStore, log logger.Logger) *Services {
	if log == nil {
		log = logger.Nop()
	}
	b := &base{
		client:   client,
		log:      log,
		validate: validation.New(),
		now:      time.Now,
	}
	return &Services{
		Auth:      &AuthService{base: b, sessions: sessions},
		Channels:  &ChannelService{base: b},
		Analytics: &AnalyticsService{base: b},
		MTProto:   &MTProtoService{base: b},
		Media:     &MediaService{base: b},
	}
}

type base struct {
	client   httpclient.Client
	log      logger.Logger
	validate *validation.Validator
	now      func() time.Time
}

// call runs fn with an HTTP counter attached and logs how many API round
// trips the operation cost.
func call[T any](ctx context.Context, b *base, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx = logger.WithHTTPCounter(ctx)
	start := time.Now()

	out, err := fn(ctx)

	event := b.log.Debug()
	if err != nil {
		event = b.log.Warn().Err(err)
	}
	event.
		Str("operation", op).
		Int64("http_calls", logger.GetHTTPCounter(ctx)).
		Dur("http_elapsed", time.Duration(logger.GetHTTPElapsed(ctx))).
		Dur("elapsed", time.Since(start)).
		Msg("Service operation finished")

	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (b *base) check(req any) error {
	return b.validate.Validate(req)
}

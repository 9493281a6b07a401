package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/storage"
)

const (
	// DefaultRefreshEndpoint is the backend route that exchanges a refresh token.
	DefaultRefreshEndpoint = "/api/v1/auth/refresh"
	// DefaultRefreshThreshold refreshes tokens expiring within five minutes.
	DefaultRefreshThreshold = 5 * time.Minute

	defaultRefreshTimeout = 10 * time.Second
	maxRefreshBodyBytes   = 1 << 20
	refreshFlightKey      = "refresh"
)

// legacyTokenKeys are read in order; older dashboard builds wrote the later ones.
var legacyTokenKeys = []string{storage.KeyAuthToken, storage.KeyAccessToken, storage.KeyToken}

// Options configures a Manager.
type Options struct {
	Store    storage.Store
	Logger   logger.Logger
	Strategy Strategy

	// BaseURL and RefreshEndpoint form the refresh URL.
	BaseURL         string
	RefreshEndpoint string

	// Threshold is how close to expiry a token must be before RefreshIfNeeded acts.
	Threshold time.Duration

	// HTTPClient performs refresh calls. It must not route through the API
	// client, which would re-enter the refresh path.
	HTTPClient *http.Client

	// DeviceID, when set, supplies X-Device-ID for refresh calls.
	DeviceID func(ctx context.Context) string
}

// Manager reads and refreshes tokens. It is safe for concurrent use; concurrent
// refreshes share one request.
type Manager struct {
	store      storage.Store
	log        logger.Logger
	httpClient *http.Client
	refreshURL string
	threshold  time.Duration
	deviceID   func(ctx context.Context) string

	mu       sync.RWMutex
	strategy Strategy

	flight singleflight.Group
	now    func() time.Time
}

// NewManager creates a Manager, applying defaults for empty options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyJWT
	}
	if opts.RefreshEndpoint == "" {
		opts.RefreshEndpoint = DefaultRefreshEndpoint
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultRefreshThreshold
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultRefreshTimeout}
	}

	return &Manager{
		store:      opts.Store,
		log:        opts.Logger,
		httpClient: opts.HTTPClient,
		refreshURL: strings.TrimRight(opts.BaseURL, "/") + opts.RefreshEndpoint,
		threshold:  opts.Threshold,
		deviceID:   opts.DeviceID,
		strategy:   opts.Strategy,
		now:        time.Now,
	}, nil
}

// Strategy returns the active auth strategy.
func (m *Manager) Strategy() Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategy
}

// SetStrategy switches the strategy used by RefreshIfNeeded.
func (m *Manager) SetStrategy(s Strategy) {
	m.mu.Lock()
	m.strategy = s
	m.mu.Unlock()
}

// AccessToken returns the stored access token, checking legacy keys in
// priority order. It returns "" when none is stored.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	for _, key := range legacyTokenKeys {
		token, err := storage.GetString(ctx, m.store, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		if token != "" {
			return token, nil
		}
	}
	return "", nil
}

// TWAInitData returns the stored Telegram WebApp init data, or "".
func (m *Manager) TWAInitData(ctx context.Context) (string, error) {
	data, err := storage.GetString(ctx, m.store, storage.KeyTWAInitData)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	return data, err
}

// SetTWAInitData stores Telegram WebApp init data for the twa strategy.
func (m *Manager) SetTWAInitData(ctx context.Context, initData string) error {
	return storage.SetString(ctx, m.store, storage.KeyTWAInitData, initData)
}

// HasRefreshToken reports whether a non-empty refresh token is stored.
func (m *Manager) HasRefreshToken(ctx context.Context) bool {
	token, err := storage.GetString(ctx, m.store, storage.KeyRefreshToken)
	return err == nil && token != ""
}

// ExpiresAt returns the access token expiry from its exp claim, falling back
// to the stored token_expires_at value.
func (m *Manager) ExpiresAt(ctx context.Context) (time.Time, bool) {
	token, err := m.AccessToken(ctx)
	if err != nil || token == "" {
		return time.Time{}, false
	}
	if exp, ok := tokenExpiry(token); ok {
		return exp, true
	}

	raw, err := storage.GetString(ctx, m.store, storage.KeyTokenExpiresAt)
	if err != nil || raw == "" {
		return time.Time{}, false
	}
	return parseExpiry(raw)
}

// parseExpiry accepts RFC 3339 timestamps and unix seconds or milliseconds.
func parseExpiry(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if n > 1e12 {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}

// NeedsRefresh reports whether the jwt strategy is active, a refresh token is
// stored and the access token expires within the threshold. Tokens with no
// known expiry are left alone.
func (m *Manager) NeedsRefresh(ctx context.Context) bool {
	if m.Strategy() != StrategyJWT || !m.HasRefreshToken(ctx) {
		return false
	}
	exp, ok := m.ExpiresAt(ctx)
	if !ok {
		return false
	}
	return exp.Sub(m.now()) <= m.threshold
}

// RefreshIfNeeded refreshes ahead of expiry; otherwise it does nothing.
func (m *Manager) RefreshIfNeeded(ctx context.Context) error {
	if !m.NeedsRefresh(ctx) {
		return nil
	}
	m.log.Debug().Msg("Access token near expiry, refreshing")
	return m.Refresh(ctx)
}

// HandleAuthError refreshes the session after a 401 and then calls retry.
// Refresh failures are returned wrapped in ErrRefreshFailed and retry is not
// called. If ctx ends while waiting, ctx.Err() is returned instead.
func (m *Manager) HandleAuthError(ctx context.Context, retry func(ctx context.Context) error) error {
	if err := m.Refresh(ctx); err != nil {
		return err
	}
	return retry(ctx)
}

// Refresh exchanges the stored refresh token for new tokens. Concurrent
// callers share a single request and its result. The shared request is
// detached from the caller that started it, so one caller giving up does not
// fail the others; a caller whose ctx ends stops waiting and gets ctx.Err().
func (m *Manager) Refresh(ctx context.Context) error {
	ch := m.flight.DoChan(refreshFlightKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultRefreshTimeout)
		defer cancel()
		return nil, m.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		m.log.Debug().Err(ctx.Err()).Msg("Stopped waiting for token refresh")
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.log.Debug().Msg("Joined in-flight token refresh")
		}
		return res.Err
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	refreshToken, err := storage.GetString(ctx, m.store, storage.KeyRefreshToken)
	if err != nil || refreshToken == "" {
		return newRefreshError(0, ErrNoRefreshToken)
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return newRefreshError(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return newRefreshError(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if m.deviceID != nil {
		if id := m.deviceID(ctx); id != "" {
			req.Header.Set("X-Device-ID", id)
		}
	}

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return newRefreshError(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBodyBytes))
	if err != nil {
		return newRefreshError(resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newRefreshError(resp.StatusCode, fmt.Errorf("refresh rejected: %s", strings.TrimSpace(string(body))))
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return newRefreshError(resp.StatusCode, fmt.Errorf("decode refresh response: %w", err))
	}
	if tokens.Access() == "" {
		return newRefreshError(resp.StatusCode, errors.New("refresh response has no access token"))
	}
	// Servers that don't rotate refresh tokens omit the field; keep the current one.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	if err := m.StoreSession(ctx, tokens.Session(m.now())); err != nil {
		return newRefreshError(resp.StatusCode, err)
	}

	m.log.Info().
		Dur("elapsed", time.Since(start)).
		Msg("Access token refreshed")
	return nil
}

// StoreSession persists tokens under the primary keys and writes the session record.
func (m *Manager) StoreSession(ctx context.Context, s Session) error {
	if s.AccessToken == "" {
		return errors.New("auth: session has no access token")
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.now()
	}
	if s.ExpiresAt.IsZero() {
		if exp, ok := tokenExpiry(s.AccessToken); ok {
			s.ExpiresAt = exp
		}
	}

	if err := storage.SetString(ctx, m.store, storage.KeyAuthToken, s.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if s.RefreshToken != "" {
		if err := storage.SetString(ctx, m.store, storage.KeyRefreshToken, s.RefreshToken); err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
	}
	if !s.ExpiresAt.IsZero() {
		if err := storage.SetString(ctx, m.store, storage.KeyTokenExpiresAt, s.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("store token expiry: %w", err)
		}
	}
	if err := storage.SetRecord(ctx, m.store, storage.KeySession, s, 0); err != nil {
		return fmt.Errorf("store session record: %w", err)
	}
	return nil
}

// Session returns the stored session record. storage.ErrNotFound means logged out.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	s, err := storage.GetRecord[Session](ctx, m.store, storage.KeySession)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ClearSession removes every credential key, including legacy ones.
func (m *Manager) ClearSession(ctx context.Context) error {
	if err := storage.DeleteAll(ctx, m.store, storage.AuthKeys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"strings"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/httpclient"
)

// AuthService logs users in and out.
type AuthService struct {
	*base
	sessions SessionStore
}

// Login exchanges credentials for tokens and stores the session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*auth.TokenResponse, error) {
	return call(ctx, s.base, "auth.login", func(ctx context.Context) (*auth.TokenResponse, error) {
		if err := s.check(req); err != nil {
			return nil, err
		}
		return s.authenticate(ctx, PathLogin, req)
	})
}

// Register creates an account and stores the returned session.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*auth.TokenResponse, error) {
	return call(ctx, s.base, "auth.register", func(ctx context.Context) (*auth.TokenResponse, error) {
		if err := s.check(req); err != nil {
			return nil, err
		}
		return s.authenticate(ctx, PathRegister, req)
	})
}

func (s *AuthService) authenticate(ctx context.Context, endpoint string, body any) (*auth.TokenResponse, error) {
	tokens, err := httpclient.PostJSON[auth.TokenResponse](ctx, s.client, endpoint, body)
	if err != nil {
		return nil, err
	}
	if tokens.Access() == "" {
		return nil, errors.New("response has no access token")
	}

	if s.sessions != nil {
		if err := s.sessions.StoreSession(ctx, tokens.Session(s.now())); err != nil {
			return nil, err
		}
	}
	if s.client.AuthStrategy() != auth.StrategyJWT {
		s.client.SetAuthStrategy(auth.StrategyJWT)
	}
	return &tokens, nil
}

// Me returns the authenticated user.
func (s *AuthService) Me(ctx context.Context) (*auth.User, error) {
	return call(ctx, s.base, "auth.me", func(ctx context.Context) (*auth.User, error) {
		user, err := httpclient.GetJSON[auth.User](ctx, s.client, PathMe, nil)
		if err != nil {
			return nil, err
		}
		return &user, nil
	})
}

// Logout tells the backend to revoke the session and always clears local
// credentials, even when the backend call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	_, err := call(ctx, s.base, "auth.logout", func(ctx context.Context) (struct{}, error) {
		if _, err := s.client.Post(ctx, PathLogout, nil); err != nil {
			s.log.Warn().Err(err).Msg("Backend logout failed, clearing local session")
		}
		if s.sessions == nil {
			return struct{}{}, nil
		}
		return struct{}{}, s.sessions.ClearSession(ctx)
	})
	return err
}

// UseTelegramWebApp switches the client to Telegram WebApp authentication
// with the init data passed to the mini app.
func (s *AuthService) UseTelegramWebApp(ctx context.Context, initData string) error {
	initData = strings.TrimSpace(initData)
	if initData == "" {
		return errors.New("auth.twa: init data is empty")
	}
	if s.sessions != nil {
		if err := s.sessions.SetTWAInitData(ctx, initData); err != nil {
			return err
		}
	}
	s.client.SetAuthStrategy(auth.StrategyTWA)
	return nil
}

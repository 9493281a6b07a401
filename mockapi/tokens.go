package mockapi

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/analyticbot/apiclient/auth"
)

var (
	// ErrInvalidToken is returned for access tokens that fail verification.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrInvalidRefreshToken is returned for unknown, revoked or expired refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Claims are the access token claims.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Generation int64  `json:"gen"`
}

type refreshEntry struct {
	userID    int64
	expiresAt time.Time
}

// TokenIssuer signs HS256 access tokens and keeps opaque refresh tokens in
// memory. Refresh tokens rotate on every use.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu         sync.Mutex
	refresh    map[string]refreshEntry
	generation int64
}

// NewTokenIssuer creates an issuer.
func NewTokenIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		refresh:    make(map[string]refreshEntry),
	}
}

// Issue creates a token pair for user.
func (t *TokenIssuer) Issue(user auth.User) (auth.TokenResponse, error) {
	now := t.now()

	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			ID:        uuid.NewString(),
		},
		Email:      user.Email,
		Generation: gen,
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return auth.TokenResponse{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := uuid.NewString()
	t.mu.Lock()
	t.refresh[refresh] = refreshEntry{userID: user.ID, expiresAt: now.Add(t.refreshTTL)}
	t.mu.Unlock()

	u := user
	return auth.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(t.accessTTL / time.Second),
		User:         &u,
	}, nil
}

// Verify parses and validates an access token.
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()
	if claims.Generation != gen {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims, nil
}

// Consume validates and revokes a refresh token, returning its user id.
func (t *TokenIssuer) Consume(refreshToken string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.refresh[refreshToken]
	if !ok {
		return 0, ErrInvalidRefreshToken
	}
	delete(t.refresh, refreshToken)
	if t.now().After(entry.expiresAt) {
		return 0, ErrInvalidRefreshToken
	}
	return entry.userID, nil
}

// RevokeAccessTokens invalidates every access token issued so far.
// Refresh tokens stay valid.
func (t *TokenIssuer) RevokeAccessTokens() {
	t.mu.Lock()
	t.generation++
	t.mu.Unlock()
}

// RevokeUser drops all refresh tokens of a user.
func (t *TokenIssuer) RevokeUser(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for token, entry := range t.refresh {
		if entry.userID == userID {
			delete(t.refresh, token)
		}
	}
}

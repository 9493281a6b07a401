package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the account returned alongside issued tokens.
type User struct {
	ID       int64  `json:"id" cbor:"1,keyasint"`
	Email    string `json:"email" cbor:"2,keyasint"`
	Username string `json:"username,omitempty" cbor:"3,keyasint,omitempty"`
	Role     string `json:"role,omitempty" cbor:"4,keyasint,omitempty"`
}

// TokenResponse is the body returned by login, register and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	Token        string `json:"token,omitempty"` // older login responses
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"` // seconds
	User         *User  `json:"user,omitempty"`
}

// Session is the persisted snapshot of the current login.
type Session struct {
	AccessToken  string    `cbor:"1,keyasint"`
	RefreshToken string    `cbor:"2,keyasint,omitempty"`
	ExpiresAt    time.Time `cbor:"3,keyasint,omitempty"`
	User         *User     `cbor:"4,keyasint,omitempty"`
	UpdatedAt    time.Time `cbor:"5,keyasint"`
}

// Access returns access_token, or token for responses that use the older name.
func (r *TokenResponse) Access() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// Session converts the response into a Session. Expiry comes from expires_in,
// falling back to the access token's exp claim.
func (r *TokenResponse) Session(now time.Time) Session {
	access := r.Access()
	s := Session{
		AccessToken:  access,
		RefreshToken: r.RefreshToken,
		User:         r.User,
		UpdatedAt:    now,
	}
	if r.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	} else if exp, ok := tokenExpiry(access); ok {
		s.ExpiresAt = exp
	}
	return s
}

// tokenExpiry reads the exp claim without verifying the signature. The client
// never holds the signing key; the backend still verifies every request.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

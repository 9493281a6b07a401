// Package auth owns the client's credentials: it reads tokens from storage,
// decides when a JWT needs refreshing, performs the refresh exactly once for
// concurrent callers and clears the session on terminal failure.
package auth

import (
	"fmt"
	"strings"
)

// Strategy selects how requests are authenticated.
type Strategy string

const (
	// StrategyJWT sends "Authorization: Bearer <token>".
	StrategyJWT Strategy = "jwt"
	// StrategyTWA sends "Authorization: TWA <initData>" for Telegram WebApp sessions.
	StrategyTWA Strategy = "twa"
	// StrategyNone sends no Authorization header.
	StrategyNone Strategy = "none"
)

// ParseStrategy parses a configured strategy name; empty selects jwt.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyJWT, "":
		return StrategyJWT, nil
	case StrategyTWA:
		return StrategyTWA, nil
	case StrategyNone:
		return StrategyNone, nil
	default:
		return "", fmt.Errorf("unknown auth strategy %q", s)
	}
}

func (s Strategy) String() string {
	return string(s)
}

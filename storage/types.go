// Package storage persists client-side auth state: access and refresh tokens,
// Telegram WebApp init data, the device id and the session record. It replaces
// the browser's localStorage with pluggable backends (memory, redis).
package storage

import (
	"context"
	"time"
)

// Well-known keys shared by the client packages.
const (
	KeyAuthToken      = "auth_token"
	KeyAccessToken    = "access_token"
	KeyToken          = "token"
	KeyRefreshToken   = "refresh_token"
	KeyTokenExpiresAt = "token_expires_at"
	KeyTWAInitData    = "twa_init_data"
	KeyDeviceID       = "device_id"
	KeySession        = "session"
)

// AuthKeys lists every key that holds credentials. Terminal logout clears all of them.
var AuthKeys = []string{
	KeyAuthToken,
	KeyAccessToken,
	KeyToken,
	KeyRefreshToken,
	KeyTokenExpiresAt,
	KeySession,
}

// Store defines the key/value operations the client needs from a backend.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value at key. A ttl of 0 stores without expiration.
	// Negative ttl returns ErrInvalidTTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete is idempotent: missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Health checks that the backend is reachable.
	Health(ctx context.Context) error

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// GetString reads key as a string. Missing keys yield "" and ErrNotFound.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetString stores value at key without expiration.
func SetString(ctx context.Context, s Store, key, value string) error {
	return s.Set(ctx, key, []byte(value), 0)
}

// DeleteAll deletes every key, returning the first error after attempting all.
func DeleteAll(ctx context.Context, s Store, keys ...string) error {
	var firstErr error
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

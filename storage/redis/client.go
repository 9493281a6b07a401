// Package redis implements storage.Store on Redis, letting several client
// processes share one login session.
package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/analyticbot/apiclient/storage"
	"github.com/analyticbot/apiclient/storage/internal/tracking"
)

const (
	backendName = "redis"
	pingTimeout = 5 * time.Second
)

// Client implements storage.Store using Redis as the backend.
type Client struct {
	client *redis.Client
	config *Config
	closed atomic.Bool
}

// NewClient validates cfg, connects and verifies the connection with PING.
func NewClient(cfg *Config) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.NewConnectionError("ping", cfg.Address(), err)
	}

	return &Client{client: client, config: cfg}, nil
}

func (c *Client) key(key string) string {
	return c.config.KeyPrefix + key
}

// Get retrieves a value. Returns storage.ErrNotFound if the key doesn't exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, storage.ErrClosed
	}

	start := time.Now()
	result, err := c.client.Get(ctx, c.key(key)).Bytes()
	duration := time.Since(start)

	if errors.Is(err, redis.Nil) {
		tracking.RecordOperation(ctx, backendName, tracking.OpGet, duration, true, nil)
		return nil, storage.ErrNotFound
	}
	tracking.RecordOperation(ctx, backendName, tracking.OpGet, duration, false, err)

	if err != nil {
		return nil, storage.NewOperationError("get", key, err)
	}
	return result, nil
}

// Set stores a value. A ttl of 0 falls back to the configured DefaultTTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return storage.ErrClosed
	}
	if ttl < 0 {
		return storage.ErrInvalidTTL
	}
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}

	start := time.Now()
	err := c.client.Set(ctx, c.key(key), value, ttl).Err()
	tracking.RecordOperation(ctx, backendName, tracking.OpSet, time.Since(start), false, err)

	if err != nil {
		return storage.NewOperationError("set", key, err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return storage.ErrClosed
	}

	start := time.Now()
	err := c.client.Del(ctx, c.key(key)).Err()
	tracking.RecordOperation(ctx, backendName, tracking.OpDelete, time.Since(start), false, err)

	if err != nil {
		return storage.NewOperationError("delete", key, err)
	}
	return nil
}

// Health checks the connection with PING.
func (c *Client) Health(ctx context.Context) error {
	if c.closed.Load() {
		return storage.ErrClosed
	}

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	tracking.RecordOperation(ctx, backendName, tracking.OpHealth, time.Since(start), false, err)

	if err != nil {
		return storage.NewConnectionError("ping", c.config.Address(), err)
	}
	return nil
}

// Close closes the Redis client. Repeated calls return storage.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return storage.ErrClosed
	}
	return c.client.Close()
}

var _ storage.Store = (*Client)(nil)

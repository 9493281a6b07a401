//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisOptions configures the session store container.
type RedisOptions struct {
	ImageTag       string        // default "7-alpine"
	StartupTimeout time.Duration // default 60s
}

func (o *RedisOptions) withDefaults() RedisOptions {
	out := RedisOptions{ImageTag: "7-alpine", StartupTimeout: 60 * time.Second}
	if o == nil {
		return out
	}
	if o.ImageTag != "" {
		out.ImageTag = o.ImageTag
	}
	if o.StartupTimeout > 0 {
		out.StartupTimeout = o.StartupTimeout
	}
	return out
}

// RedisContainer is a running Redis used as a shared session store.
type RedisContainer struct {
	container *redis.RedisContainer
	host      string
	port      int
}

// StartRedisContainer starts Redis, skipping the test when Docker is unavailable.
func StartRedisContainer(ctx context.Context, t *testing.T, opts *RedisOptions) (*RedisContainer, error) {
	t.Helper()
	o := opts.withDefaults()

	if !dockerAvailable(ctx) {
		t.Skip("Docker is not available - skipping redis session store integration test")
		return nil, nil
	}

	c, err := redis.Run(ctx,
		fmt.Sprintf("redis:%s", o.ImageTag),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(o.StartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis host: %w", err)
	}
	port, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis port: %w", err)
	}

	t.Logf("redis session store at %s:%d", host, port.Int())
	return &RedisContainer{container: c, host: host, port: port.Int()}, nil
}

// MustStartRedisContainer is StartRedisContainer that fails the test on error.
func MustStartRedisContainer(ctx context.Context, t *testing.T, opts *RedisOptions) *RedisContainer {
	t.Helper()
	c, err := StartRedisContainer(ctx, t, opts)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	return c
}

func (r *RedisContainer) Host() string { return r.host }

func (r *RedisContainer) Port() int { return r.port }

// Terminate stops and removes the container.
func (r *RedisContainer) Terminate(ctx context.Context) error {
	if r.container == nil {
		return nil
	}
	return r.container.Terminate(ctx)
}

// WithCleanup terminates the container when the test finishes.
func (r *RedisContainer) WithCleanup(t *testing.T) *RedisContainer {
	t.Helper()
	t.Cleanup(func() {
		if err := r.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})
	return r
}

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analyticbot/apiclient/config"
	"github.com/analyticbot/apiclient/storage"
)

const testPrefix = "analyticbot:test:"

// setupTestRedis creates a miniredis server and client for testing.
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := NewClient(&Config{
		Host:      mr.Host(),
		Port:      mr.Server().Addr().Port,
		KeyPrefix: testPrefix,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		assert.NotNil(t, client.client)
		assert.False(t, client.closed.Load())
		assert.Equal(t, defaultPoolSize, client.config.PoolSize)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		client, err := NewClient(&Config{Host: "", Port: 6379})
		assert.Nil(t, client)

		var configErr *storage.ConfigError
		assert.True(t, errors.As(err, &configErr))
	})

	t.Run("ConnectionFailed", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Server().Addr()
		mr.Close()

		client, err := NewClient(&Config{Host: addr.IP.String(), Port: addr.Port, DialTimeout: 200 * time.Millisecond})
		assert.Nil(t, client)

		var connErr *storage.ConnectionError
		assert.True(t, errors.As(err, &connErr))
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"port out of range", Config{Host: "h", Port: 70000}, "redis.port"},
		{"database out of range", Config{Host: "h", Port: 1, Database: 16}, "redis.database"},
		{"negative dial timeout", Config{Host: "h", Port: 1, DialTimeout: -time.Second}, "redis.dialtimeout"},
		{"read timeout below -1", Config{Host: "h", Port: 1, ReadTimeout: -2}, "redis.readtimeout"},
		{"negative ttl", Config{Host: "h", Port: 1, DefaultTTL: -time.Second}, "storage.ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			var configErr *storage.ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.field, configErr.Field)
		})
	}

	ok := Config{Host: "localhost", Port: 6379, ReadTimeout: -1}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, "localhost:6379", ok.Address())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(&config.StorageConfig{
		Type:      config.StorageRedis,
		KeyPrefix: "ab:",
		TTL:       time.Hour,
		Redis:     config.RedisConfig{Host: "cache", Port: 6380, Database: 2, Password: "pw"},
	})

	assert.Equal(t, "cache:6380", cfg.Address())
	assert.Equal(t, 2, cfg.Database)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, "ab:", cfg.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
}

func TestClientGetSetDelete(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := client.Get(ctx, storage.KeyRefreshToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, client.Set(ctx, storage.KeyRefreshToken, []byte("rt-1"), 0))
	assert.True(t, mr.Exists(testPrefix+storage.KeyRefreshToken))

	got, err := client.Get(ctx, storage.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("rt-1"), got)

	require.NoError(t, client.Delete(ctx, storage.KeyRefreshToken))
	require.NoError(t, client.Delete(ctx, storage.KeyRefreshToken))
	assert.False(t, mr.Exists(testPrefix+storage.KeyRefreshToken))
}

func TestClientTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, storage.KeyAuthToken, []byte("jwt"), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(testPrefix+storage.KeyAuthToken))

	mr.FastForward(time.Minute)
	_, err := client.Get(ctx, storage.KeyAuthToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, client.Set(ctx, storage.KeyAuthToken, []byte("jwt"), -time.Second), storage.ErrInvalidTTL)
}

func TestClientDefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(&Config{Host: mr.Host(), Port: mr.Server().Addr().Port, DefaultTTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), storage.KeyDeviceID, []byte("dev_1"), 0))
	assert.Equal(t, time.Hour, mr.TTL(storage.KeyDeviceID))
}

func TestClientHealthAndClose(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Health(ctx))

	mr.SetError("LOADING")
	var connErr *storage.ConnectionError
	assert.ErrorAs(t, client.Health(ctx), &connErr)
	mr.SetError("")

	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Close(), storage.ErrClosed)
	assert.ErrorIs(t, client.Health(ctx), storage.ErrClosed)
	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, client.Set(ctx, "k", nil, 0), storage.ErrClosed)
	assert.ErrorIs(t, client.Delete(ctx, "k"), storage.ErrClosed)
}

func TestClientOperationErrors(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	mr.SetError("ERR backend unavailable")
	defer mr.SetError("")

	var opErr *storage.OperationError
	_, err := client.Get(ctx, "k")
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "get", opErr.Op)

	require.ErrorAs(t, client.Set(ctx, "k", []byte("v"), 0), &opErr)
	assert.Equal(t, "set", opErr.Op)

	require.ErrorAs(t, client.Delete(ctx, "k"), &opErr)
	assert.Equal(t, "delete", opErr.Op)
}

func TestSharedSessionAcrossClients(t *testing.T) {
	first, mr := setupTestRedis(t)
	second, err := NewClient(&Config{Host: mr.Host(), Port: mr.Server().Addr().Port, KeyPrefix: testPrefix})
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	ctx := context.Background()
	require.NoError(t, storage.SetString(ctx, first, storage.KeyAuthToken, "shared-jwt"))

	got, err := storage.GetString(ctx, second, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "shared-jwt", got)
}

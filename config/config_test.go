package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv() []string { return nil }

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(WithFile(), WithEnviron(noEnv))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "analyticbot-client", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.Retry.Max)
	assert.Equal(t, time.Second, cfg.API.Retry.Delay)
	assert.InDelta(t, 2.0, cfg.API.Retry.Multiplier, 0)

	require.Len(t, cfg.API.Timeouts, 5)
	assert.Equal(t, EndpointTimeout{Pattern: "/health", Timeout: 5 * time.Second}, cfg.API.Timeouts[0])
	assert.Equal(t, EndpointTimeout{Pattern: "/media/upload", Timeout: 120 * time.Second}, cfg.API.Timeouts[4])

	assert.Equal(t, StrategyJWT, cfg.API.Auth.Strategy)
	assert.Equal(t, []string{"/auth/login", "/auth/register", "/auth/refresh"}, cfg.API.Auth.Bootstrap)
	assert.Equal(t, "/api/v1/auth/refresh", cfg.API.Auth.Refresh.Endpoint)
	assert.Equal(t, 5*time.Minute, cfg.API.Auth.Refresh.Threshold)
	assert.Zero(t, cfg.API.Auth.Refresh.Interval)

	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8000, cfg.MockAPI.Port)
	assert.Equal(t, 15*time.Minute, cfg.MockAPI.JWT.AccessTTL)
	assert.False(t, cfg.Observability.Enabled)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	cfg, err := Load(WithFile(), WithEnviron(environ(
		"API_BASEURL=https://api.analyticbot.org",
		"API_TIMEOUT=15s",
		"API_RETRY_MAX=5",
		"API_AUTH_STRATEGY=twa",
		"LOG_LEVEL=debug",
		"PATH=/usr/bin",
		"HOME=/root",
	)))
	require.NoError(t, err)

	assert.Equal(t, "https://api.analyticbot.org", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5, cfg.API.Retry.Max)
	assert.Equal(t, StrategyTWA, cfg.API.Auth.Strategy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Exists("path"))
}

func TestLoadYAMLOverridesDefaultsAndEnvWins(t *testing.T) {
	yamlDoc := []byte(`
api:
  baseurl: https://staging.analyticbot.org
  retry:
    max: 4
    delay: 250ms
  timeouts:
    - pattern: /exports/csv
      timeout: 90s
    - pattern: /exports
      timeout: 60s
storage:
  type: redis
  redis:
    host: cache.internal
    port: 6380
`)

	cfg, err := Load(WithFile(), WithYAML(yamlDoc), WithEnviron(environ("API_RETRY_MAX=2")))
	require.NoError(t, err)

	assert.Equal(t, "https://staging.analyticbot.org", cfg.API.BaseURL)
	assert.Equal(t, 2, cfg.API.Retry.Max)
	assert.Equal(t, 250*time.Millisecond, cfg.API.Retry.Delay)
	require.Len(t, cfg.API.Timeouts, 2)
	assert.Equal(t, "/exports/csv", cfg.API.Timeouts[0].Pattern)
	assert.Equal(t, StorageRedis, cfg.Storage.Type)
	assert.Equal(t, "cache.internal", cfg.Storage.Redis.Host)
	assert.Equal(t, 6380, cfg.Storage.Redis.Port)
}

func TestLoadFromFileWithEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(base, []byte("app:\n  env: staging\napi:\n  timeout: 20s\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.staging.yaml"), []byte("api:\n  timeout: 25s\n"), 0o600))

	t.Chdir(dir)

	cfg, err := Load(WithFile("config.yaml", "missing.yaml"), WithEnviron(noEnv))
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, cfg.App.Env)
	assert.Equal(t, 25*time.Second, cfg.API.Timeout)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		env     []string
		field   string
		message string
	}{
		{"bad strategy", []string{"API_AUTH_STRATEGY=cookie"}, "api.auth.strategy", "must be one of: jwt, twa, none"},
		{"zero attempts", []string{"API_RETRY_MAX=0"}, "api.retry.max", "gte=1"},
		{"bad base url", []string{"API_BASEURL=not a url"}, "api.baseurl", "url"},
		{"empty base url", []string{"API_BASEURL="}, "api.baseurl", "required"},
		{"bad storage", []string{"STORAGE_TYPE=sqlite"}, "storage.type", "memory, redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(WithFile(), WithEnviron(environ(tt.env...)))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadRejectsReservedTimeoutPattern(t *testing.T) {
	yamlDoc := []byte(`
api:
  timeouts:
    - pattern: /health
      timeout: 5s
    - pattern: default
      timeout: 10s
`)

	_, err := Load(WithFile(), WithYAML(yamlDoc), WithEnviron(noEnv))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "api.timeouts[1].pattern", cfgErr.Field)
	assert.Contains(t, err.Error(), "ne=default")
}

func TestValidateCrossFieldRules(t *testing.T) {
	t.Run("redis requires host", func(t *testing.T) {
		_, err := Load(WithFile(), WithEnviron(environ("STORAGE_TYPE=redis", "STORAGE_REDIS_HOST=")))
		require.Error(t, err)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "missing", cfgErr.Category)
		assert.Equal(t, "storage.redis.host", cfgErr.Field)
		assert.Contains(t, err.Error(), "STORAGE_REDIS_HOST")
	})

	t.Run("otlp requires endpoint", func(t *testing.T) {
		_, err := Load(WithFile(), WithEnviron(environ(
			"OBSERVABILITY_ENABLED=true",
			"OBSERVABILITY_EXPORTER=otlp",
			"OBSERVABILITY_ENDPOINT=",
		)))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "observability.endpoint")
	})
}

func TestGetString(t *testing.T) {
	cfg, err := Load(WithFile(), WithYAML([]byte("custom:\n  channel: \"@analytics\"\n")), WithEnviron(noEnv))
	require.NoError(t, err)

	assert.Equal(t, "@analytics", cfg.GetString("custom.channel"))
	assert.Equal(t, "fallback", cfg.GetString("custom.missing", "fallback"))
	assert.Empty(t, cfg.GetString("custom.missing"))
	assert.NotNil(t, cfg.Koanf())
}

package redis

import (
	"fmt"
	"time"

	"github.com/analyticbot/apiclient/config"
	"github.com/analyticbot/apiclient/storage"
)

const (
	defaultPort         = 6379
	defaultPoolSize     = 10
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Config holds Redis-specific configuration options.
type Config struct {
	Host string
	Port int

	// Password should come from STORAGE_REDIS_PASSWORD rather than a checked-in file.
	Password string //nolint:gosec // loaded from env

	// Database number, 0-15.
	Database int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration // -1 disables the timeout
	WriteTimeout time.Duration // -1 disables the timeout

	// KeyPrefix namespaces every key, so several clients can share one database.
	KeyPrefix string

	// TTL applied by Set when the caller passes 0. Zero keeps keys forever.
	DefaultTTL time.Duration
}

// FromConfig maps the storage section of the application config.
func FromConfig(cfg *config.StorageConfig) *Config {
	return &Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		Database:     cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		KeyPrefix:    cfg.KeyPrefix,
		DefaultTTL:   cfg.TTL,
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
}

// Validate performs fail-fast validation of Redis configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return storage.NewConfigError("redis.host", "host is required", nil)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return storage.NewConfigError("redis.port", fmt.Sprintf("invalid port: %d", c.Port), nil)
	}

	if c.Database < 0 || c.Database > 15 {
		return storage.NewConfigError("redis.database", fmt.Sprintf("invalid database number: %d (must be 0-15)", c.Database), nil)
	}

	if c.PoolSize < 0 {
		return storage.NewConfigError("redis.poolsize", fmt.Sprintf("invalid pool size: %d", c.PoolSize), nil)
	}

	if c.DialTimeout < 0 {
		return storage.NewConfigError("redis.dialtimeout", "dial timeout cannot be negative", nil)
	}

	if c.ReadTimeout < -1 {
		return storage.NewConfigError("redis.readtimeout", "read timeout cannot be less than -1", nil)
	}

	if c.WriteTimeout < -1 {
		return storage.NewConfigError("redis.writetimeout", "write timeout cannot be less than -1", nil)
	}

	if c.DefaultTTL < 0 {
		return storage.NewConfigError("storage.ttl", "ttl cannot be negative", storage.ErrInvalidTTL)
	}

	return nil
}

// Address returns the Redis server address in "host:port" format.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

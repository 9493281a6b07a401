package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config represents the overall client configuration. The koanf instance is
// kept for access to custom keys not modelled by the struct.
type Config struct {
	App           AppConfig           `koanf:"app" json:"app" yaml:"app"`
	API           APIConfig           `koanf:"api" json:"api" yaml:"api"`
	Storage       StorageConfig       `koanf:"storage" json:"storage" yaml:"storage"`
	Log           LogConfig           `koanf:"log" json:"log" yaml:"log"`
	MockAPI       MockAPIConfig       `koanf:"mockapi" json:"mockapi" yaml:"mockapi"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string `koanf:"name" json:"name" yaml:"name" validate:"required"`
	Version string `koanf:"version" json:"version" yaml:"version" validate:"required"`
	Env     string `koanf:"env" json:"env" yaml:"env" validate:"oneof=development staging production"`
}

// APIConfig configures the outbound AnalyticBot API client.
type APIConfig struct {
	BaseURL     string            `koanf:"baseurl" json:"baseurl" yaml:"baseurl" validate:"required,url"`
	Timeout     time.Duration     `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
	Retry       RetryConfig       `koanf:"retry" json:"retry" yaml:"retry"`
	Timeouts    []EndpointTimeout `koanf:"timeouts" json:"timeouts" yaml:"timeouts" validate:"dive"`
	Auth        AuthConfig        `koanf:"auth" json:"auth" yaml:"auth"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit" json:"ratelimit" yaml:"ratelimit"`
	Headers     map[string]string `koanf:"headers" json:"headers" yaml:"headers"`
	LogPayloads bool              `koanf:"logpayloads" json:"logpayloads" yaml:"logpayloads"`
}

// RetryConfig holds the retry budget and backoff curve.
// Max counts total attempts, including the first one.
type RetryConfig struct {
	Max        int           `koanf:"max" json:"max" yaml:"max" validate:"gte=1,lte=10"`
	Delay      time.Duration `koanf:"delay" json:"delay" yaml:"delay" validate:"gte=0"`
	Multiplier float64       `koanf:"multiplier" json:"multiplier" yaml:"multiplier" validate:"gte=1"`
}

// EndpointTimeout maps an endpoint substring to a request timeout.
// Order in the list is significant: the first matching pattern wins.
// "default" is reserved for the fallback and cannot be used as a pattern.
type EndpointTimeout struct {
	Pattern string        `koanf:"pattern" json:"pattern" yaml:"pattern" validate:"required,ne=default"`
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
}

// AuthConfig selects the auth strategy and token refresh behaviour.
type AuthConfig struct {
	Strategy  string        `koanf:"strategy" json:"strategy" yaml:"strategy" validate:"oneof=jwt twa none"`
	Bootstrap []string      `koanf:"bootstrap" json:"bootstrap" yaml:"bootstrap"`
	Refresh   RefreshConfig `koanf:"refresh" json:"refresh" yaml:"refresh"`
	LoginPath string        `koanf:"loginpath" json:"loginpath" yaml:"loginpath"`
}

// RefreshConfig configures proactive and background token refresh.
type RefreshConfig struct {
	Endpoint  string        `koanf:"endpoint" json:"endpoint" yaml:"endpoint" validate:"required"`
	Threshold time.Duration `koanf:"threshold" json:"threshold" yaml:"threshold" validate:"gte=0"`
	// Interval enables the background keeper when > 0.
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval" validate:"gte=0"`
}

// RateLimitConfig throttles outbound requests. Zero RPS disables the limiter.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" json:"rps" yaml:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" json:"burst" yaml:"burst" validate:"gte=0"`
}

// StorageConfig selects where client-side auth state is persisted.
type StorageConfig struct {
	Type      string        `koanf:"type" json:"type" yaml:"type" validate:"oneof=memory redis"`
	KeyPrefix string        `koanf:"keyprefix" json:"keyprefix" yaml:"keyprefix"`
	Redis     RedisConfig   `koanf:"redis" json:"redis" yaml:"redis"`
	TTL       time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl" validate:"gte=0"`
}

// RedisConfig holds redis connection settings for the redis storage backend.
type RedisConfig struct {
	Host         string        `koanf:"host" json:"host" yaml:"host"`
	Port         int           `koanf:"port" json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Password     string        `koanf:"password" json:"-" yaml:"password"`
	Database     int           `koanf:"database" json:"database" yaml:"database" validate:"gte=0,lte=15"`
	PoolSize     int           `koanf:"poolsize" json:"poolsize" yaml:"poolsize" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dialtimeout" json:"dialtimeout" yaml:"dialtimeout" validate:"gte=0"`
	ReadTimeout  time.Duration `koanf:"readtimeout" json:"readtimeout" yaml:"readtimeout" validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"writetimeout" json:"writetimeout" yaml:"writetimeout" validate:"gte=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// MockAPIConfig configures the local mock backend.
type MockAPIConfig struct {
	Host     string        `koanf:"host" json:"host" yaml:"host"`
	Port     int           `koanf:"port" json:"port" yaml:"port" validate:"gte=1,lte=65535"`
	Latency  time.Duration `koanf:"latency" json:"latency" yaml:"latency" validate:"gte=0"`
	Shutdown time.Duration `koanf:"shutdown" json:"shutdown" yaml:"shutdown" validate:"gte=0"`
	JWT      JWTConfig     `koanf:"jwt" json:"jwt" yaml:"jwt"`
}

// JWTConfig holds token issuing settings for the mock backend.
type JWTConfig struct {
	Secret     string        `koanf:"secret" json:"-" yaml:"secret" validate:"required,min=16"`
	Issuer     string        `koanf:"issuer" json:"issuer" yaml:"issuer"`
	AccessTTL  time.Duration `koanf:"accessttl" json:"accessttl" yaml:"accessttl" validate:"gt=0"`
	RefreshTTL time.Duration `koanf:"refreshttl" json:"refreshttl" yaml:"refreshttl" validate:"gtfield=AccessTTL"`
}

// ObservabilityConfig configures the OpenTelemetry meter provider.
type ObservabilityConfig struct {
	Enabled     bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	ServiceName string        `koanf:"servicename" json:"servicename" yaml:"servicename"`
	Exporter    string        `koanf:"exporter" json:"exporter" yaml:"exporter" validate:"oneof=stdout otlp"`
	Endpoint    string        `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Insecure    bool          `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Interval    time.Duration `koanf:"interval" json:"interval" yaml:"interval" validate:"gt=0"`
}

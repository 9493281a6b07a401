package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envSections lists the top-level keys that environment variables may override.
// Other variables in the process environment are ignored.
var envSections = []string{"app", "api", "storage", "log", "mockapi", "observability"}

type loadOptions struct {
	files   []string
	yaml    [][]byte
	environ func() []string
}

// Option customizes Load.
type Option func(*loadOptions)

// WithFile replaces the default config.yaml lookup with the given files, loaded in order.
// Missing files are skipped.
func WithFile(paths ...string) Option {
	return func(o *loadOptions) {
		o.files = paths
	}
}

// WithYAML merges raw YAML documents after the files and before the environment.
func WithYAML(data []byte) Option {
	return func(o *loadOptions) {
		o.yaml = append(o.yaml, data)
	}
}

// WithEnviron replaces os.Environ as the environment variable source.
func WithEnviron(environ func() []string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Raw YAML passed via WithYAML
// 3. YAML configuration files (config.yaml, then config.<env>.yaml)
// 4. Default values (lowest priority)
func Load(opts ...Option) (*Config, error) {
	o := &loadOptions{files: []string{"config.yaml"}, environ: os.Environ}
	for _, opt := range opts {
		opt(o)
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range o.files {
		if err := loadOptionalFile(k, path); err != nil {
			return nil, err
		}
	}

	for _, data := range o.yaml {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}

	// The environment decides which overlay file applies, so peek at APP_ENV first.
	if env := envValue(o.environ, "APP_ENV", k.String("app.env")); env != "" && len(o.files) > 0 {
		if err := loadOptionalFile(k, fmt.Sprintf("config.%s.yaml", env)); err != nil {
			return nil, err
		}
	}

	if err := k.Load(envprovider.Provider(".", envprovider.Opt{
		EnvironFunc:   o.environ,
		TransformFunc: transformEnv,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// transformEnv converts API_RETRY_MAX into api.retry.max. Variables outside the
// known sections are dropped.
func transformEnv(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
	section, _, _ := strings.Cut(key, ".")
	for _, known := range envSections {
		if section == known {
			return key, value
		}
	}
	return "", nil
}

func envValue(environ func() []string, name, fallback string) string {
	for _, kv := range environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			return v
		}
	}
	return fallback
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "analyticbot-client",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"api.baseurl":          "http://localhost:8000",
		"api.timeout":          "30s",
		"api.retry.max":        3,
		"api.retry.delay":      "1s",
		"api.retry.multiplier": 2.0,
		"api.timeouts": []map[string]any{
			{"pattern": "/health", "timeout": "5s"},
			{"pattern": "/auth", "timeout": "10s"},
			{"pattern": "/analytics", "timeout": "45s"},
			{"pattern": "/exports", "timeout": "60s"},
			{"pattern": "/media/upload", "timeout": "120s"},
		},
		"api.auth.strategy":          StrategyJWT,
		"api.auth.bootstrap":         []string{"/auth/login", "/auth/register", "/auth/refresh"},
		"api.auth.loginpath":         "/login",
		"api.auth.refresh.endpoint":  "/api/v1/auth/refresh",
		"api.auth.refresh.threshold": "5m",
		"api.auth.refresh.interval":  "0s",
		"api.ratelimit.rps":          0,
		"api.ratelimit.burst":        0,
		"api.logpayloads":            false,

		"storage.type":      StorageMemory,
		"storage.keyprefix": "analyticbot:",
		"storage.ttl":       "0s",
		"storage.redis.host": "localhost",
		"storage.redis.port": 6379,

		"log.level":  "info",
		"log.pretty": false,

		"mockapi.host":           "0.0.0.0",
		"mockapi.port":           8000,
		"mockapi.latency":        "0s",
		"mockapi.shutdown":       "10s",
		"mockapi.jwt.secret":     "analyticbot-mock-secret",
		"mockapi.jwt.issuer":     "analyticbot-mock",
		"mockapi.jwt.accessttl":  "15m",
		"mockapi.jwt.refreshttl": "168h",

		"observability.enabled":     false,
		"observability.servicename": "analyticbot-client",
		"observability.exporter":    ExporterStdout,
		"observability.endpoint":    "localhost:4318",
		"observability.insecure":    true,
		"observability.interval":    "30s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// Koanf returns the underlying koanf instance.
func (c *Config) Koanf() *koanf.Koanf {
	return c.k
}

// Exists reports whether key is set in any loaded source.
func (c *Config) Exists(key string) bool {
	return c.k != nil && c.k.Exists(key)
}

// GetString returns the string at key or defaultVal when missing.
func (c *Config) GetString(key string, defaultVal ...string) string {
	if c.Exists(key) {
		return c.k.String(key)
	}
	if len(defaultVal) > 0 {
		return defaultVal[0]
	}
	return ""
}

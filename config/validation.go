package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Auth strategy constants
const (
	StrategyJWT  = "jwt"
	StrategyTWA  = "twa"
	StrategyNone = "none"
)

// Storage backend constants
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Metric exporter constants
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report koanf paths instead of Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("koanf"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks tag constraints on every section, then cross-field rules
// that tags cannot express.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		return translateValidationError(err)
	}

	if err := validateStorage(&cfg.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := validateObservability(&cfg.Observability); err != nil {
		return fmt.Errorf("observability config: %w", err)
	}

	return nil
}

func validateStorage(cfg *StorageConfig) error {
	if cfg.Type != StorageRedis {
		return nil
	}
	if cfg.Redis.Host == "" {
		return NewMissingFieldError("storage.redis.host")
	}
	if cfg.Redis.Port == 0 {
		return NewMissingFieldError("storage.redis.port")
	}
	return nil
}

func validateObservability(cfg *ObservabilityConfig) error {
	if cfg.Enabled && cfg.Exporter == ExporterOTLP && cfg.Endpoint == "" {
		return NewMissingFieldError("observability.endpoint")
	}
	return nil
}

// translateValidationError converts the first validator failure into a ConfigError.
func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := fieldPath(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return NewMissingFieldError(field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %q", fmt.Sprint(fe.Value())), strings.Fields(fe.Param()))
	default:
		msg := fmt.Sprintf("failed %s", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return NewInvalidFieldError(field, msg, nil)
	}
}

// fieldPath turns "Config.api.retry.max" into "api.retry.max".
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}

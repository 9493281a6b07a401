// Package validation wraps go-playground/validator with the AnalyticBot
// field rules shared by the client services and the mock API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Custom tag names.
const (
	TagPeriod          = "analytics_period"
	TagPhone           = "tg_phone"
	TagChannelUsername = "channel_username"
)

// Periods accepted by the analytics endpoints.
var Periods = []string{"24h", "7d", "30d", "90d"}

var (
	phonePattern    = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	usernamePattern = regexp.MustCompile(`^@?[A-Za-z][A-Za-z0-9_]{4,31}$`)
)

// Validator wraps go-playground/validator with custom validation logic.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with the custom rules registered. Field names in
// errors come from json tags.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation(TagPeriod, validatePeriod)
	_ = v.RegisterValidation(TagPhone, validatePhone)
	_ = v.RegisterValidation(TagChannelUsername, validateChannelUsername)

	return &Validator{validate: v}
}

// GetValidator returns the underlying validator instance.
func (v *Validator) GetValidator() *validator.Validate {
	return v.validate
}

// Validate performs validation on the provided struct and returns any validation errors.
func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return err
	}
	return nil
}

// Error wraps validation errors with readable messages and structured field errors.
type Error struct {
	Errors []FieldError `json:"errors"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewError creates an Error from go-playground/validator errors.
func NewError(errs validator.ValidationErrors) *Error {
	fieldErrors := make([]FieldError, 0, len(errs))
	for _, err := range errs {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   err.Field(),
			Message: message(err),
		})
	}
	return &Error{Errors: fieldErrors}
}

func (e *Error) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s", e.Errors[0].Message)
	default:
		msgs := make([]string, 0, len(e.Errors))
		for _, fe := range e.Errors {
			msgs = append(msgs, fe.Message)
		}
		return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
	}
}

// Fields returns the names of the invalid fields.
func (e *Error) Fields() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		out = append(out, fe.Field)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case TagPeriod:
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.Join(Periods, ", "))
	case TagPhone:
		return fmt.Sprintf("%s must be an international phone number like +15551234567", fe.Field())
	case TagChannelUsername:
		return fmt.Sprintf("%s must be a Telegram username of 5-32 characters", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// IsPeriod reports whether p is an accepted analytics period.
func IsPeriod(p string) bool {
	for _, known := range Periods {
		if p == known {
			return true
		}
	}
	return false
}

func validatePeriod(fl validator.FieldLevel) bool {
	return IsPeriod(fl.Field().String())
}

func validatePhone(fl validator.FieldLevel) bool {
	return phonePattern.MatchString(fl.Field().String())
}

func validateChannelUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

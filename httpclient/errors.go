package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType defines the category of client error
type ErrorType string

const (
	NetworkError           ErrorType = "network"
	TimeoutError           ErrorType = "timeout"
	HTTPError              ErrorType = "http"
	MalformedResponseError ErrorType = "malformed_response"
	CanceledError          ErrorType = "canceled"
	ValidationError        ErrorType = "validation"
	InterceptorError       ErrorType = "interceptor"
)

const (
	// StatusNetworkError tags failures where no response was received.
	StatusNetworkError = http.StatusServiceUnavailable
	// StatusTimeout tags requests aborted by their endpoint timeout.
	StatusTimeout = http.StatusRequestTimeout
)

// retryableStatuses are the statuses worth repeating; everything else fails fast.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// Error is returned by every client operation. Callers switch on Type or
// Status; Data holds the parsed response body when there was one.
type Error struct {
	Type       ErrorType
	Message    string
	Status     int
	StatusText string
	Data       any
	Body       []byte
	Method     string
	Endpoint   string
	Timeout    time.Duration
	Cause      error
}

func (e *Error) Error() string {
	var msg string
	switch e.Type {
	case HTTPError, MalformedResponseError:
		msg = fmt.Sprintf("%s error: %s (status: %d)", e.Type, e.Message, e.Status)
	case TimeoutError:
		msg = fmt.Sprintf("timeout error: %s (timeout: %v)", e.Message, e.Timeout)
	default:
		msg = fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates an error for a request that got no response.
func NewNetworkError(message string, cause error) *Error {
	return &Error{
		Type:       NetworkError,
		Message:    message,
		Status:     StatusNetworkError,
		StatusText: http.StatusText(StatusNetworkError),
		Cause:      cause,
	}
}

// NewTimeoutError creates an error for a request aborted by its endpoint timeout.
func NewTimeoutError(message string, timeout time.Duration) *Error {
	return &Error{
		Type:       TimeoutError,
		Message:    message,
		Status:     StatusTimeout,
		StatusText: http.StatusText(StatusTimeout),
		Timeout:    timeout,
	}
}

// NewHTTPError creates an error for a non-2xx response.
func NewHTTPError(message string, status int, statusText string, body []byte, data any) *Error {
	return &Error{
		Type:       HTTPError,
		Message:    message,
		Status:     status,
		StatusText: statusText,
		Body:       body,
		Data:       data,
	}
}

// NewMalformedResponseError creates an error for a JSON response that failed to parse.
func NewMalformedResponseError(status int, body []byte, cause error) *Error {
	return &Error{
		Type:       MalformedResponseError,
		Message:    "response declared JSON but could not be parsed",
		Status:     status,
		StatusText: http.StatusText(status),
		Body:       body,
		Cause:      cause,
	}
}

// NewCanceledError creates an error for a request abandoned by its caller.
func NewCanceledError(cause error) *Error {
	return &Error{
		Type:    CanceledError,
		Message: "request canceled",
		Cause:   cause,
	}
}

// NewValidationError creates an error for invalid call arguments.
func NewValidationError(message, field string) *Error {
	if field != "" {
		message = fmt.Sprintf("%s (field: %s)", message, field)
	}
	return &Error{
		Type:    ValidationError,
		Message: message,
	}
}

// NewInterceptorError creates an error for a failing request or response interceptor.
func NewInterceptorError(message, stage string, cause error) *Error {
	return &Error{
		Type:    InterceptorError,
		Message: fmt.Sprintf("%s (stage: %s)", message, stage),
		Cause:   cause,
	}
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Type == errorType
	}
	return false
}

// IsHTTPStatusError checks if an error is an HTTP error with a specific status code
func IsHTTPStatusError(err error, statusCode int) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Type == HTTPError && clientErr.Status == statusCode
	}
	return false
}

// StatusOf returns the status an error is tagged with, or 0 for non-client errors.
func StatusOf(err error) int {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Status
	}
	return 0
}

// IsRetryable reports whether a request that failed with err may be repeated:
// network failures and statuses 408, 429, 502, 503 and 504.
func IsRetryable(err error) bool {
	var clientErr *Error
	if !errors.As(err, &clientErr) {
		return false
	}
	if clientErr.Type == NetworkError {
		return true
	}
	if clientErr.Type == CanceledError {
		return false
	}
	return retryableStatuses[clientErr.Status]
}

// IsRetryableStatus reports whether status is in the retryable set.
func IsRetryableStatus(status int) bool {
	return retryableStatuses[status]
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

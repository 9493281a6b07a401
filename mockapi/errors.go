package mockapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/analyticbot/apiclient/logger"
	"github.com/analyticbot/apiclient/validation"
)

// ErrorResponse is the error body, shaped like the AnalyticBot backend's.
type ErrorResponse struct {
	Detail string                  `json:"detail"`
	Code   string                  `json:"code,omitempty"`
	Errors []validation.FieldError `json:"errors,omitempty"`
}

// APIError is returned by handlers for expected failures.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Detail
}

func newAPIError(status int, code, detail string) *APIError {
	return &APIError{Status: status, Code: code, Detail: detail}
}

func errUnauthorized(detail string) *APIError {
	return newAPIError(http.StatusUnauthorized, "UNAUTHORIZED", detail)
}

func errNotFound(resource string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", resource+" not found")
}

func errBadRequest(detail string) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", detail)
}

func errConflict(detail string) *APIError {
	return newAPIError(http.StatusConflict, "CONFLICT", detail)
}

// errorHandler renders every error as an ErrorResponse.
func errorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := ErrorResponse{Detail: "Internal server error", Code: "INTERNAL_ERROR"}

		var apiErr *APIError
		var verr *validation.Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
			status = apiErr.Status
			body = ErrorResponse{Detail: apiErr.Detail, Code: apiErr.Code}
		case errors.As(err, &verr):
			status = http.StatusUnprocessableEntity
			body = ErrorResponse{Detail: verr.Error(), Code: "VALIDATION_ERROR", Errors: verr.Errors}
		case errors.As(err, &he):
			status = he.Code
			body = ErrorResponse{Detail: http.StatusText(he.Code), Code: "HTTP_ERROR"}
			if m, ok := he.Message.(string); ok {
				body.Detail = m
			}
		default:
			log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled mock API error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

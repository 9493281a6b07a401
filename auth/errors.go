package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshFailed marks any failure to obtain a new access token. The
	// client treats it as terminal and logs the user out.
	ErrRefreshFailed = errors.New("auth: token refresh failed")

	// ErrNoRefreshToken is returned when a refresh is requested without a stored refresh token.
	ErrNoRefreshToken = errors.New("auth: no refresh token")
)

// RefreshError carries the refresh endpoint's response status when there was one.
type RefreshError struct {
	Status int
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%v: status %d: %v", ErrRefreshFailed, e.Status, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrRefreshFailed, e.Err)
}

func (e *RefreshError) Unwrap() []error {
	return []error{ErrRefreshFailed, e.Err}
}

func newRefreshError(status int, err error) *RefreshError {
	return &RefreshError{Status: status, Err: err}
}

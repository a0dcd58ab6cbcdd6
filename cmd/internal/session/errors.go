package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no credential pair is stored.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoRefreshToken is the logout cause when the stored pair cannot be renewed.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshFailed matches every *RefreshError.
	ErrRefreshFailed = errors.New("credential refresh failed")

	// ErrNoExpiry is returned when a token response carries neither
	// expires_in nor a JWT exp claim.
	ErrNoExpiry = errors.New("token response has no expiry")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// RefreshError reports a failed refresh. The session has already been
// logged out by the time a caller sees it.
type RefreshError struct {
	// Status is the HTTP status of the refresh response, 0 on transport failure.
	Status int
	// Code is the server error code, if any.
	Code  string
	Cause error
}

func (e *RefreshError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%s: %s (status %d)", ErrRefreshFailed, e.Code, e.Status)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Cause)
	default:
		return ErrRefreshFailed.Error()
	}
}

func (e *RefreshError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRefreshFailed}
	}
	return []error{ErrRefreshFailed, e.Cause}
}

// EndpointError is a non-success answer from the refresh endpoint.
type EndpointError struct {
	Status  int
	Code    string
	Message string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("refresh endpoint: %d %s: %s", e.Status, e.Code, e.Message)
}

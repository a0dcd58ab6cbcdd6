package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apiv1 "arcsync/shared/contracts/api/v1"
)

// CodeBadEnvelope marks a response whose body was not a valid envelope.
const CodeBadEnvelope = "BAD_ENVELOPE"

// Status classes matched by (*Error).Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
)

// Error is a non-success API answer.
type Error struct {
	Status    int
	Code      string
	Message   string
	Details   []apiv1.FieldError
	RequestID string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps the HTTP status onto the class sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// CredentialExpired reports the refresh-and-retry signal.
func (e *Error) CredentialExpired() bool {
	return e.Status == http.StatusUnauthorized && e.Code == apiv1.CodeTokenExpired
}

// NetworkError is a failure to obtain any answer from the server.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// IsNetwork reports whether err is network-class: connectivity, timeout or abort.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

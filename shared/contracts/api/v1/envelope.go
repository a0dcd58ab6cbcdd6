// Package v1 defines the HTTP API contract v1 shared by the client layer and
// the development server.
//
// Every response body is an Envelope. Success carries the payload in Data;
// failure carries an ErrorBody with a stable machine code.
package v1

import "encoding/json"

// Error codes (wire-stable).
const (
	// CodeTokenExpired accompanies a 401 when the access token is past its
	// expiry. It is the only 401 a client answers with refresh-and-retry.
	CodeTokenExpired = "TOKEN_EXPIRED"
	// CodeUnauthorized is any other authentication failure.
	CodeUnauthorized = "UNAUTHORIZED"
	// CodeSessionRevoked means the session was ended server-side.
	CodeSessionRevoked = "SESSION_REVOKED"
	// CodeInvalidRefreshToken is returned by the refresh endpoint.
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	// CodeInvalidCredentials is returned by login.
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL"
)

// Rate-limit response headers. Reset is unix seconds.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRequestID          = "X-Request-ID"
)

// Envelope wraps every response body.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody describes a failed call.
type ErrorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError points at one invalid input field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// OK builds a success envelope around data.
func OK(data any) (Envelope, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Success: true, Data: b}, nil
}

// Fail builds an error envelope.
func Fail(code, message string, details ...FieldError) Envelope {
	return Envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}}
}

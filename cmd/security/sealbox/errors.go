package sealbox

import "errors"

// Public, stable errors for callers.
var (
	ErrKeySize         = errors.New("sealbox: key must be 32 bytes")
	ErrEmptyPassphrase = errors.New("sealbox: empty passphrase")
	ErrSaltSize        = errors.New("sealbox: salt too short")
	ErrMalformed       = errors.New("sealbox: sealed value too short")
	ErrOpen            = errors.New("sealbox: authentication failed")
)

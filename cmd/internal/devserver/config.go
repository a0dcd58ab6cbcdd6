package devserver

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrConfig reports an invalid server configuration.
var ErrConfig = errors.New("devserver: invalid config")

// Config tunes the fake API.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// OmitExpiresIn drops expires_in from token responses so clients must
	// read the expiry from the access token itself.
	OmitExpiresIn bool
	// RefreshLatency delays every refresh answer.
	RefreshLatency time.Duration

	PageSize int

	RateLimit  int
	RateWindow time.Duration

	BcryptCost int

	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
}

// DefaultConfig returns the settings used by `arcsync dev-server`.
func DefaultConfig() Config {
	return Config{
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        30 * 24 * time.Hour,
		PageSize:          20,
		RateLimit:         600,
		RateWindow:        time.Minute,
		BcryptCost:        bcrypt.DefaultCost,
		HeartbeatInterval: 25 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Validate checks c.
func (c Config) Validate() error {
	switch {
	case c.AccessTTL <= 0:
		return fmt.Errorf("%w: access ttl must be > 0", ErrConfig)
	case c.RefreshTTL < c.AccessTTL:
		return fmt.Errorf("%w: refresh ttl must be >= access ttl", ErrConfig)
	case c.PageSize <= 0 || c.PageSize > 200:
		return fmt.Errorf("%w: page size must be in [1,200]", ErrConfig)
	case c.RateLimit <= 0 || c.RateWindow <= 0:
		return fmt.Errorf("%w: rate limit and window must be > 0", ErrConfig)
	case c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost:
		return fmt.Errorf("%w: bcrypt cost out of range", ErrConfig)
	case c.HeartbeatInterval <= 0 || c.WriteTimeout <= 0:
		return fmt.Errorf("%w: websocket timings must be > 0", ErrConfig)
	}
	return nil
}

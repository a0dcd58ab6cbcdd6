package session

import (
	"os"
	"time"
)

// Config controls renewal timing.
type Config struct {
	// RenewalThreshold is how close to expiry a token may get before it is
	// renewed in the background.
	RenewalThreshold time.Duration

	// PollInterval is the proactive renewal check period.
	PollInterval time.Duration

	// RefreshTimeout bounds one refresh network call, independent of the
	// context of whichever caller started it.
	RefreshTimeout time.Duration
}

// DefaultConfig returns the standard renewal policy.
func DefaultConfig() Config {
	return Config{
		RenewalThreshold: 5 * time.Minute,
		PollInterval:     60 * time.Second,
		RefreshTimeout:   15 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (valid Go duration strings):
//   - ARCSYNC_SESSION_RENEWAL_THRESHOLD
//   - ARCSYNC_SESSION_POLL_INTERVAL
//   - ARCSYNC_SESSION_REFRESH_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv overlays the LoadConfigFromEnv variables onto cfg.
func ApplyEnv(cfg Config) (Config, error) {
	for _, e := range []struct {
		key string
		dst *time.Duration
	}{
		{"ARCSYNC_SESSION_RENEWAL_THRESHOLD", &cfg.RenewalThreshold},
		{"ARCSYNC_SESSION_POLL_INTERVAL", &cfg.PollInterval},
		{"ARCSYNC_SESSION_REFRESH_TIMEOUT", &cfg.RefreshTimeout},
	} {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		*e.dst = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every duration is positive.
func (c Config) Validate() error {
	if c.RenewalThreshold <= 0 || c.PollInterval <= 0 || c.RefreshTimeout <= 0 {
		return ErrConfig
	}
	return nil
}

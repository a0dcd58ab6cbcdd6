package gateway

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid config")

// Config controls the HTTP client used by the gateway.
type Config struct {
	// BaseURL is the API origin, e.g. https://api.example.com.
	BaseURL string

	// Timeout bounds one round trip.
	Timeout time.Duration

	// MaxBodyBytes caps response bodies.
	MaxBodyBytes int64

	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultConfig returns a local development configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://127.0.0.1:8080",
		Timeout:      20 * time.Second,
		MaxBodyBytes: 4 << 20,
		UserAgent:    "arcsync/1",
	}
}

// LoadConfigFromEnv loads gateway configuration from environment variables.
//
// Optional:
//   - ARCSYNC_API_BASE_URL
//   - ARCSYNC_API_TIMEOUT (Go duration)
//   - ARCSYNC_API_MAX_BODY_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv overlays the LoadConfigFromEnv variables onto cfg.
func ApplyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("ARCSYNC_API_BASE_URL")); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("ARCSYNC_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("ARCSYNC_API_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1024 {
			return Config{}, ErrConfig
		}
		cfg.MaxBodyBytes = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks BaseURL and limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrConfig
	}
	if c.Timeout <= 0 || c.MaxBodyBytes <= 0 {
		return ErrConfig
	}
	return nil
}

package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	apiv1 "arcsync/shared/contracts/api/v1"
)

// ErrConfig reports invalid watcher settings.
var ErrConfig = errors.New("realtime: invalid config")

// Config tunes the watcher.
type Config struct {
	// URL is the websocket endpoint, ws:// or wss://.
	URL string

	HandshakeTimeout time.Duration
	ReadLimit        int64

	BackoffMin time.Duration
	BackoffMax time.Duration

	// At most ReconnectAttempts dials per ReconnectWindow; beyond that Run gives up.
	ReconnectAttempts int
	ReconnectWindow   time.Duration
}

// DefaultConfig returns watcher defaults for the API at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		URL:               WebsocketURL(baseURL),
		HandshakeTimeout:  10 * time.Second,
		ReadLimit:         64 << 10,
		BackoffMin:        500 * time.Millisecond,
		BackoffMax:        30 * time.Second,
		ReconnectAttempts: 10,
		ReconnectWindow:   5 * time.Minute,
	}
}

// Validate checks c.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: url must be ws:// or wss://", ErrConfig)
	}
	switch {
	case c.HandshakeTimeout <= 0:
		return fmt.Errorf("%w: handshake timeout must be > 0", ErrConfig)
	case c.ReadLimit <= 0:
		return fmt.Errorf("%w: read limit must be > 0", ErrConfig)
	case c.BackoffMin <= 0 || c.BackoffMax < c.BackoffMin:
		return fmt.Errorf("%w: backoff bounds", ErrConfig)
	case c.ReconnectAttempts <= 0 || c.ReconnectWindow <= 0:
		return fmt.Errorf("%w: reconnect budget must be > 0", ErrConfig)
	}
	return nil
}

// WebsocketURL maps an http(s) API origin onto its realtime endpoint.
func WebsocketURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = apiv1.PathRealtime
	u.RawQuery = ""
	return u.String()
}

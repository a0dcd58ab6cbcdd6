package session

import (
	"testing"
	"time"

	"arcsync/cmd/internal/credstore"
)

func newSeededStore(t *testing.T, expiresIn time.Duration) *credstore.Memory {
	t.Helper()
	s := credstore.NewMemory()
	seed(t, s, expiresIn)
	return s
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RenewalThreshold != 5*time.Minute {
		t.Fatalf("RenewalThreshold = %v", cfg.RenewalThreshold)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Fatalf("PollInterval = %v", cfg.PollInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	t.Setenv("ARCSYNC_SESSION_POLL_INTERVAL", "-5s")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_Garbage(t *testing.T) {
	t.Setenv("ARCSYNC_SESSION_RENEWAL_THRESHOLD", "soon")
	_, err := LoadConfigFromEnv()
	if err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("ARCSYNC_SESSION_RENEWAL_THRESHOLD", "2m")
	t.Setenv("ARCSYNC_SESSION_POLL_INTERVAL", "30s")
	t.Setenv("ARCSYNC_SESSION_REFRESH_TIMEOUT", "5s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.RenewalThreshold != 2*time.Minute || cfg.PollInterval != 30*time.Second || cfg.RefreshTimeout != 5*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(Config{}, credstore.NewMemory(), newFakeRefresher()); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if _, err := NewManager(DefaultConfig(), nil, newFakeRefresher()); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestLifecycleString(t *testing.T) {
	cases := map[AppState]string{
		StateForeground: "foreground",
		StateBackground: "background",
		AppState(0):     "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("%d: got %q want %q", s, s.String(), want)
		}
	}
}

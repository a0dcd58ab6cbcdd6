package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "arcsync.hcl")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ARCSYNC_STORE", "memory")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Session.RenewalThreshold != 5*time.Minute || cfg.Session.PollInterval != time.Minute {
		t.Fatalf("session defaults = %+v", cfg.Session)
	}
	if cfg.StaleTime != 30*time.Second {
		t.Fatalf("StaleTime = %v", cfg.StaleTime)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("Store = %q", cfg.Store)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
log_level  = "debug"
log_format = "json"
stale_time = "45s"

api {
  base_url = "https://api.example.com"
  timeout  = "7s"
}

session {
  poll_interval = "30s"
}

storage {
  backend     = "sqlite"
  sqlite_path = "/tmp/arcsync-test.db"
}
`)
	t.Setenv("ARCSYNC_LOG_LEVEL", "warn")
	t.Setenv("ARCSYNC_SESSION_REFRESH_TIMEOUT", "3s")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("env should win over file, LogLevel = %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" || cfg.StaleTime != 45*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.API.BaseURL != "https://api.example.com" || cfg.API.Timeout != 7*time.Second {
		t.Fatalf("api = %+v", cfg.API)
	}
	if cfg.Session.PollInterval != 30*time.Second || cfg.Session.RefreshTimeout != 3*time.Second {
		t.Fatalf("session = %+v", cfg.Session)
	}
	if cfg.Session.RenewalThreshold != 5*time.Minute {
		t.Fatalf("unset file value should keep default, got %v", cfg.Session.RenewalThreshold)
	}
	if cfg.SQLitePath != "/tmp/arcsync-test.db" {
		t.Fatalf("SQLitePath = %q", cfg.SQLitePath)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	cases := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad hcl", file: `api { base_url = `},
		{name: "bad duration", file: `stale_time = "soon"`},
		{name: "unknown attribute", file: `colour = "blue"`},
		{name: "bad base url", file: `api { base_url = "ftp://x" }`},
		{name: "unknown store", env: map[string]string{"ARCSYNC_STORE": "redis"}},
		{name: "postgres without url", env: map[string]string{"ARCSYNC_STORE": "postgres", "ARC_DATABASE_URL": ""}},
		{name: "bad log format", env: map[string]string{"ARCSYNC_STORE": "memory", "ARCSYNC_LOG_FORMAT": "xml"}},
		{name: "strict session env", env: map[string]string{"ARCSYNC_STORE": "memory", "ARCSYNC_SESSION_POLL_INTERVAL": "-1s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			_, err := LoadConfig(path)
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_STR", "  value ")
	t.Setenv("T_BOOL", "true")
	t.Setenv("T_BAD_BOOL", "maybe")
	t.Setenv("T_INT", "12")
	t.Setenv("T_NEG_INT", "-3")
	t.Setenv("T_INT32", "0")
	t.Setenv("T_DUR", "90s")
	t.Setenv("T_BAD_DUR", "later")

	if got := EnvString("T_STR", "def"); got != "value" {
		t.Fatalf("EnvString = %q", got)
	}
	if got := EnvString("T_UNSET", "def"); got != "def" {
		t.Fatalf("EnvString default = %q", got)
	}
	if !EnvBool("T_BOOL", false) || EnvBool("T_BAD_BOOL", false) {
		t.Fatal("EnvBool")
	}
	if EnvInt("T_INT", 1) != 12 || EnvInt("T_NEG_INT", 1) != 1 {
		t.Fatal("EnvInt")
	}
	if EnvInt32("T_INT32", 5) != 0 {
		t.Fatal("EnvInt32 should accept zero")
	}
	if EnvDuration("T_DUR", time.Second) != 90*time.Second || EnvDuration("T_BAD_DUR", time.Second) != time.Second {
		t.Fatal("EnvDuration")
	}
}

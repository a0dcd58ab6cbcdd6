package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arcsync/cmd/internal/gateway"
	"arcsync/cmd/internal/session"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("app: invalid config")

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the full runtime configuration of the client.
type Config struct {
	LogLevel  string
	LogFormat string // "json" or "pretty"
	LogColor  bool

	API     gateway.Config
	Session session.Config

	// StaleTime is how long a fetched query stays fresh.
	StaleTime time.Duration

	Store      string
	SQLitePath string
	Profile    string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Passphrase seals credentials at rest. Read from the environment only.
	Passphrase string

	// MetricsAddr serves /metrics and /healthz while watching; empty disables it.
	MetricsAddr string
}

// DefaultConfig returns a local configuration backed by SQLite under the
// user config directory.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		LogFormat:  "pretty",
		LogColor:   os.Getenv("NO_COLOR") == "",
		API:        gateway.DefaultConfig(),
		Session:    session.DefaultConfig(),
		StaleTime:  30 * time.Second,
		Store:      StoreSQLite,
		SQLitePath: defaultSQLitePath(),
		Profile:    "default",
		DBMaxConns: 4,
	}
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "arcsync", "arcsync.db")
}

// fileConfig is the HCL shape. Durations are Go duration strings.
type fileConfig struct {
	LogLevel    string `hcl:"log_level,optional"`
	LogFormat   string `hcl:"log_format,optional"`
	MetricsAddr string `hcl:"metrics_addr,optional"`
	StaleTime   string `hcl:"stale_time,optional"`

	API     *apiBlock     `hcl:"api,block"`
	Session *sessionBlock `hcl:"session,block"`
	Storage *storageBlock `hcl:"storage,block"`
}

type apiBlock struct {
	BaseURL   string `hcl:"base_url,optional"`
	Timeout   string `hcl:"timeout,optional"`
	UserAgent string `hcl:"user_agent,optional"`
}

type sessionBlock struct {
	RenewalThreshold string `hcl:"renewal_threshold,optional"`
	PollInterval     string `hcl:"poll_interval,optional"`
	RefreshTimeout   string `hcl:"refresh_timeout,optional"`
}

type storageBlock struct {
	Backend     string `hcl:"backend,optional"`
	SQLitePath  string `hcl:"sqlite_path,optional"`
	Profile     string `hcl:"profile,optional"`
	DatabaseURL string `hcl:"database_url,optional"`
	MaxConns    int    `hcl:"max_conns,optional"`
}

// LoadConfig builds the configuration from defaults, the optional HCL file
// at path, and ARCSYNC_* environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		var fc fileConfig
		if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	if err := setDuration(&cfg.StaleTime, "stale_time", fc.StaleTime); err != nil {
		return err
	}

	if b := fc.API; b != nil {
		setString(&cfg.API.BaseURL, b.BaseURL)
		setString(&cfg.API.UserAgent, b.UserAgent)
		if err := setDuration(&cfg.API.Timeout, "api.timeout", b.Timeout); err != nil {
			return err
		}
	}

	if b := fc.Session; b != nil {
		for _, d := range []struct {
			name string
			dst  *time.Duration
			v    string
		}{
			{"session.renewal_threshold", &cfg.Session.RenewalThreshold, b.RenewalThreshold},
			{"session.poll_interval", &cfg.Session.PollInterval, b.PollInterval},
			{"session.refresh_timeout", &cfg.Session.RefreshTimeout, b.RefreshTimeout},
		} {
			if err := setDuration(d.dst, d.name, d.v); err != nil {
				return err
			}
		}
	}

	if b := fc.Storage; b != nil {
		setString(&cfg.Store, b.Backend)
		setString(&cfg.SQLitePath, b.SQLitePath)
		setString(&cfg.Profile, b.Profile)
		setString(&cfg.DatabaseURL, b.DatabaseURL)
		if b.MaxConns > 0 {
			cfg.DBMaxConns = int32(b.MaxConns) // #nosec G115 -- pool sizes are small.
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.LogLevel = EnvString("ARCSYNC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = EnvString("ARCSYNC_LOG_FORMAT", cfg.LogFormat)
	cfg.LogColor = EnvBool("ARCSYNC_LOG_COLOR", cfg.LogColor)
	cfg.MetricsAddr = EnvString("ARCSYNC_METRICS_ADDR", cfg.MetricsAddr)
	cfg.StaleTime = EnvDuration("ARCSYNC_STALE_TIME", cfg.StaleTime)

	cfg.Store = EnvString("ARCSYNC_STORE", cfg.Store)
	cfg.SQLitePath = EnvString("ARCSYNC_SQLITE_PATH", cfg.SQLitePath)
	cfg.Profile = EnvString("ARCSYNC_PROFILE", cfg.Profile)
	cfg.DatabaseURL = EnvString("ARC_DATABASE_URL", cfg.DatabaseURL)
	cfg.DBMaxConns = EnvInt32("ARCSYNC_DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = EnvInt32("ARCSYNC_DB_MIN_CONNS", cfg.DBMinConns)
	cfg.Passphrase = os.Getenv("ARCSYNC_PASSPHRASE")

	api, err := gateway.ApplyEnv(cfg.API)
	if err != nil {
		return fmt.Errorf("%w: api: %v", ErrConfig, err)
	}
	cfg.API = api

	sess, err := session.ApplyEnv(cfg.Session)
	if err != nil {
		return fmt.Errorf("%w: session: %v", ErrConfig, err)
	}
	cfg.Session = sess
	return nil
}

// Validate checks cross-field rules. Component configs validate themselves.
func (c Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("%w: api: %v", ErrConfig, err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("%w: session: %v", ErrConfig, err)
	}
	if c.StaleTime < 0 {
		return fmt.Errorf("%w: stale time must be >= 0", ErrConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty":
	default:
		return fmt.Errorf("%w: log format %q", ErrConfig, c.LogFormat)
	}

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite path required", ErrConfig)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: database url required for postgres store", ErrConfig)
		}
		if c.Profile == "" {
			return fmt.Errorf("%w: profile required for postgres store", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrConfig, c.Store)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fmt.Errorf("%w: %s: %q is not a duration", ErrConfig, name, v)
	}
	*dst = d
	return nil
}

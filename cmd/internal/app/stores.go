package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"arcsync/cmd/internal/credstore"
	"arcsync/cmd/internal/localdb"
	"arcsync/cmd/internal/querycache"
	"arcsync/cmd/security/sealbox"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPassphraseRequired is returned when a durable store is configured
// without ARCSYNC_PASSPHRASE.
var ErrPassphraseRequired = errors.New("app: ARCSYNC_PASSPHRASE is required for durable stores")

// stores holds the credential and snapshot stores plus the handle that
// backs them, so the app can ping and close it.
type stores struct {
	creds credstore.Store
	snaps querycache.SnapshotStore

	db   *sql.DB
	pool *pgxpool.Pool
}

func openStores(ctx context.Context, cfg Config, log *slog.Logger) (*stores, error) {
	switch cfg.Store {
	case StoreMemory:
		log.Info("store.memory")
		return &stores{creds: credstore.NewMemory(), snaps: querycache.NewMemorySnapshots()}, nil
	case StoreSQLite:
		return openSQLite(ctx, cfg, log)
	case StorePostgres:
		return openPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", ErrConfig, cfg.Store)
	}
}

func openSQLite(ctx context.Context, cfg Config, log *slog.Logger) (*stores, error) {
	if cfg.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	db, err := localdb.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	salt, err := localdb.SQLiteMeta(ctx, db, localdb.MetaKDFSalt, sealbox.NewSalt)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	box, err := newBox(cfg.Passphrase, salt)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	creds, err := credstore.NewSQLite(db, box)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("store.sqlite", "path", cfg.SQLitePath)
	return &stores{creds: creds, snaps: querycache.NewSQLiteSnapshots(db), db: db}, nil
}

func openPostgres(ctx context.Context, cfg Config, log *slog.Logger) (*stores, error) {
	if cfg.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	pool, err := localdb.NewPGPool(ctx, localdb.PGConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("app: postgres: %w", err)
	}
	salt, err := localdb.PGMeta(ctx, pool, cfg.Profile, localdb.MetaKDFSalt, sealbox.NewSalt)
	if err != nil {
		pool.Close()
		return nil, err
	}
	box, err := newBox(cfg.Passphrase, salt)
	if err != nil {
		pool.Close()
		return nil, err
	}
	creds, err := credstore.NewPostgres(pool, cfg.Profile, box)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("store.postgres", "profile", cfg.Profile)
	return &stores{creds: creds, snaps: querycache.NewPostgresSnapshots(pool, cfg.Profile), pool: pool}, nil
}

func newBox(passphrase string, salt []byte) (*sealbox.Box, error) {
	params, err := sealbox.KDFParamsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return sealbox.FromPassphrase(passphrase, salt, params)
}

func (s *stores) ping(ctx context.Context, timeout time.Duration) error {
	switch {
	case s.db != nil:
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return s.db.PingContext(ctx)
	case s.pool != nil:
		return localdb.PingPG(ctx, s.pool, timeout)
	default:
		return nil
	}
}

func (s *stores) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

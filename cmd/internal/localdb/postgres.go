package localdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGConfig sizes the shared Postgres pool.
type PGConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// NewPGPool builds a pgxpool, validates connectivity and applies the schema.
func NewPGPool(ctx context.Context, cfg PGConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		pcfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingPG(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	if err := EnsurePGSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingPG checks if we can acquire a connection within timeout.
func PingPG(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// EnsurePGSchema creates the arcsync tables when missing.
func EnsurePGSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range statements(postgresSchema) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("localdb: apply postgres schema: %w", err)
		}
	}
	return nil
}

// PGMeta is the Postgres counterpart of SQLiteMeta, scoped by profile.
func PGMeta(ctx context.Context, pool *pgxpool.Pool, profile, name string, create func() ([]byte, error)) ([]byte, error) {
	const sel = `SELECT value FROM arcsync_store_meta WHERE profile = $1 AND name = $2`

	var v []byte
	err := pool.QueryRow(ctx, sel, profile, name).Scan(&v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("localdb: read meta %s: %w", name, err)
	}

	fresh, err := create()
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
INSERT INTO arcsync_store_meta (profile, name, value) VALUES ($1, $2, $3)
ON CONFLICT (profile, name) DO NOTHING
`, profile, name, fresh); err != nil {
		return nil, fmt.Errorf("localdb: write meta %s: %w", name, err)
	}
	if err := pool.QueryRow(ctx, sel, profile, name).Scan(&v); err != nil {
		return nil, fmt.Errorf("localdb: read meta %s: %w", name, err)
	}
	return v, nil
}

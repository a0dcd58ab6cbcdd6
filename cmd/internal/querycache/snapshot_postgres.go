package querycache

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSnapshots stores snapshots in arcsync_query_snapshots, scoped by profile.
type PostgresSnapshots struct {
	pool    *pgxpool.Pool
	profile string
}

// NewPostgresSnapshots returns a store for profile.
func NewPostgresSnapshots(pool *pgxpool.Pool, profile string) *PostgresSnapshots {
	return &PostgresSnapshots{pool: pool, profile: profile}
}

func (s *PostgresSnapshots) Get(ctx context.Context, key string) (Snapshot, bool, error) {
	snap := Snapshot{Key: key}
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload, synced_at
		FROM arcsync_query_snapshots
		WHERE profile = $1 AND key = $2
	`, s.profile, key).Scan(&payload, &snap.SyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	snap.Payload = payload
	snap.SyncedAt = snap.SyncedAt.UTC()
	return snap, true, nil
}

func (s *PostgresSnapshots) Put(ctx context.Context, snap Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO arcsync_query_snapshots (profile, key, payload, synced_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (profile, key) DO UPDATE
		SET payload = EXCLUDED.payload, synced_at = EXCLUDED.synced_at
	`, s.profile, snap.Key, []byte(snap.Payload), snap.SyncedAt.UTC())
	return err
}

func (s *PostgresSnapshots) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM arcsync_query_snapshots WHERE profile = $1`, s.profile)
	return err
}

package querycache

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteSnapshots stores snapshots in the query_snapshots table
// (see localdb.OpenSQLite).
type SQLiteSnapshots struct {
	db *sql.DB
}

// NewSQLiteSnapshots returns a store over db.
func NewSQLiteSnapshots(db *sql.DB) *SQLiteSnapshots {
	return &SQLiteSnapshots{db: db}
}

func (s *SQLiteSnapshots) Get(ctx context.Context, key string) (Snapshot, bool, error) {
	var (
		payload []byte
		synced  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, synced_at FROM query_snapshots WHERE key = ?`, key,
	).Scan(&payload, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, synced)
	if err != nil {
		return Snapshot{}, false, err
	}
	return Snapshot{Key: key, Payload: payload, SyncedAt: ts.UTC()}, true, nil
}

func (s *SQLiteSnapshots) Put(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO query_snapshots (key, payload, synced_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, synced_at = excluded.synced_at
`, snap.Key, []byte(snap.Payload), snap.SyncedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteSnapshots) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM query_snapshots`)
	return err
}

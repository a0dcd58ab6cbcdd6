package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteDSN builds a modernc DSN for path with WAL and a busy timeout.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("localdb: empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("localdb: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("localdb: open sqlite: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of multi-row transactions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("localdb: ping sqlite: %w", err)
	}
	for _, stmt := range statements(sqliteSchema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("localdb: apply sqlite schema: %w", err)
		}
	}
	return db, nil
}

// SQLiteMeta returns the store_meta value for name, creating it with create
// when absent. Concurrent first calls converge on one stored value.
func SQLiteMeta(ctx context.Context, db *sql.DB, name string, create func() ([]byte, error)) ([]byte, error) {
	var v []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE name = ?`, name).Scan(&v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("localdb: read meta %s: %w", name, err)
	}

	fresh, err := create()
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO store_meta (name, value) VALUES (?, ?)`, name, fresh); err != nil {
		return nil, fmt.Errorf("localdb: write meta %s: %w", name, err)
	}
	if err := db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE name = ?`, name).Scan(&v); err != nil {
		return nil, fmt.Errorf("localdb: read meta %s: %w", name, err)
	}
	return v, nil
}

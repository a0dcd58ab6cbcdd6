package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLite persists the sealed pair as three rows of the credentials table.
type SQLite struct {
	db     *sql.DB
	sealer Sealer
	now    func() time.Time
}

// SQLiteOption customizes a SQLite store.
type SQLiteOption func(*SQLite)

// WithSQLiteNowFunc overrides the clock used for updated_at.
func WithSQLiteNowFunc(fn func() time.Time) SQLiteOption {
	return func(s *SQLite) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSQLite returns a store over db (see localdb.OpenSQLite). sealer is required.
func NewSQLite(db *sql.DB, sealer Sealer, opts ...SQLiteOption) (*SQLite, error) {
	if db == nil {
		return nil, errors.New("credstore: nil db")
	}
	if sealer == nil {
		return nil, errors.New("credstore: nil sealer")
	}
	s := &SQLite{db: db, sealer: sealer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save replaces all three rows in one transaction.
func (s *SQLite) Save(ctx context.Context, p Pair) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	updated := s.now().UTC().Format(time.RFC3339Nano)
	for _, name := range fields {
		sealed, err := s.sealer.Seal(encodeField(p, name), []byte(name))
		if err != nil {
			return fmt.Errorf("credstore: seal %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, name, sealed, updated); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load reads the three rows in a single query.
func (s *SQLite) Load(ctx context.Context) (Pair, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM credentials`)
	if err != nil {
		return Pair{}, false, err
	}
	defer rows.Close()

	values := make(map[string][]byte, len(fields))
	for rows.Next() {
		var (
			name   string
			sealed []byte
		)
		if err := rows.Scan(&name, &sealed); err != nil {
			return Pair{}, false, err
		}
		plain, err := s.sealer.Open(sealed, []byte(name))
		if err != nil {
			return Pair{}, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
		}
		values[name] = plain
	}
	if err := rows.Err(); err != nil {
		return Pair{}, false, err
	}

	return decodePair(values)
}

// Clear deletes all credential rows.
func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials`)
	return err
}

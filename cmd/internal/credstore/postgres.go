package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres persists the sealed pair in arcsync_credentials, one row set per profile.
type Postgres struct {
	pool    *pgxpool.Pool
	profile string
	sealer  Sealer
}

// NewPostgres returns a store for profile. The schema comes from localdb.EnsurePGSchema.
func NewPostgres(pool *pgxpool.Pool, profile string, sealer Sealer) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("credstore: nil pool")
	}
	if profile == "" {
		return nil, errors.New("credstore: empty profile")
	}
	if sealer == nil {
		return nil, errors.New("credstore: nil sealer")
	}
	return &Postgres{pool: pool, profile: profile, sealer: sealer}, nil
}

func (s *Postgres) Save(ctx context.Context, p Pair) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, name := range fields {
		sealed, err := s.sealer.Seal(encodeField(p, name), s.ad(name))
		if err != nil {
			return fmt.Errorf("credstore: seal %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO arcsync_credentials (profile, name, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (profile, name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`, s.profile, name, sealed); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Postgres) Load(ctx context.Context) (Pair, bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value FROM arcsync_credentials WHERE profile = $1`, s.profile)
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
		plain, err := s.sealer.Open(sealed, s.ad(name))
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

func (s *Postgres) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM arcsync_credentials WHERE profile = $1`, s.profile)
	return err
}

// ad binds a sealed value to both profile and field.
func (s *Postgres) ad(name string) []byte {
	return []byte(s.profile + "/" + name)
}

package credstore

import (
	"context"
	"os"
	"testing"
	"time"

	"arcsync/cmd/internal/localdb"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when ARC_DATABASE_URL is set.

func mustPGXPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("ARC_DATABASE_URL")
	if dbURL == "" {
		t.Skip("ARC_DATABASE_URL is not set; skipping Postgres integration test")
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := localdb.NewPGPool(cctx, localdb.PGConfig{URL: dbURL, MaxConns: 4})
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgres_SaveLoadClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)

	profile := "test-" + ulid.Make().String()
	s, err := NewPostgres(pool, profile, mustBox(t))
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(func() { _ = s.Clear(context.Background()) })

	if _, ok, err := s.Load(ctx); err != nil || ok {
		t.Fatalf("empty profile: ok=%v err=%v", ok, err)
	}

	first := testPair("pg1")
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := testPair("pg2")
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != second {
		t.Fatalf("got %+v, want %+v", got, second)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Fatalf("expected empty after Clear")
	}
}

func TestPostgres_FailedSaveKeepsPreviousPair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	box := mustBox(t)

	profile := "test-" + ulid.Make().String()
	good, _ := NewPostgres(pool, profile, box)
	t.Cleanup(func() { _ = good.Clear(context.Background()) })

	old := testPair("old")
	if err := good.Save(ctx, old); err != nil {
		t.Fatalf("Save: %v", err)
	}

	broken, _ := NewPostgres(pool, profile, failingSealer{Sealer: box, failOn: profile + "/" + FieldExpiresAt})
	if err := broken.Save(ctx, testPair("new")); err == nil {
		t.Fatalf("expected failure")
	}

	got, ok, err := good.Load(ctx)
	if err != nil || !ok || got != old {
		t.Fatalf("got=%+v ok=%v err=%v", got, ok, err)
	}
}

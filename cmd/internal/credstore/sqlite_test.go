package credstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"arcsync/cmd/internal/localdb"
	"arcsync/cmd/security/sealbox"
)

func mustBox(t *testing.T) *sealbox.Box {
	t.Helper()
	b, err := sealbox.New(bytes.Repeat([]byte{0x11}, 32))
	if err != nil {
		t.Fatalf("sealbox.New: %v", err)
	}
	return b
}

func mustSQLiteDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := localdb.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// failingSealer fails on the given field, simulating a crash mid-save.
type failingSealer struct {
	Sealer
	failOn string
}

func (f failingSealer) Seal(plaintext, ad []byte) ([]byte, error) {
	if string(ad) == f.failOn {
		return nil, errors.New("disk on fire")
	}
	return f.Sealer.Seal(plaintext, ad)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.db")
	box := mustBox(t)

	s1, err := NewSQLite(mustSQLiteDB(t, path), box)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	want := testPair("durable")
	if err := s1.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2, _ := NewSQLite(mustSQLiteDB(t, path), box)
	got, ok, err := s2.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load after reopen: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSQLite_EncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	db := mustSQLiteDB(t, filepath.Join(t.TempDir(), "creds.db"))
	s, _ := NewSQLite(db, mustBox(t))

	if err := s.Save(ctx, testPair("secret")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT value FROM credentials`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if bytes.Contains(raw, []byte("secret")) {
			t.Fatalf("plaintext token found at rest")
		}
		n++
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

func TestSQLite_FailedSaveKeepsPreviousPair(t *testing.T) {
	ctx := context.Background()
	db := mustSQLiteDB(t, filepath.Join(t.TempDir(), "creds.db"))
	box := mustBox(t)

	good, _ := NewSQLite(db, box)
	old := testPair("old")
	if err := good.Save(ctx, old); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for _, field := range []string{FieldRefreshToken, FieldExpiresAt} {
		broken, _ := NewSQLite(db, failingSealer{Sealer: box, failOn: field})
		if err := broken.Save(ctx, testPair("new")); err == nil {
			t.Fatalf("expected Save to fail on %s", field)
		}

		got, ok, err := good.Load(ctx)
		if err != nil || !ok {
			t.Fatalf("Load after failed save on %s: ok=%v err=%v", field, ok, err)
		}
		if got != old {
			t.Fatalf("partial write observed after failure on %s: %+v", field, got)
		}
	}
}

func TestSQLite_ConcurrentLoadNeverSeesMixedPair(t *testing.T) {
	ctx := context.Background()
	db := mustSQLiteDB(t, filepath.Join(t.TempDir(), "creds.db"))
	s, _ := NewSQLite(db, mustBox(t))
	if err := s.Save(ctx, testPair("0")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 20; i++ {
			if err := s.Save(ctx, testPair(fmt.Sprint(i))); err != nil {
				errs <- err
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				p, ok, err := s.Load(ctx)
				if err != nil {
					errs <- err
					return
				}
				if !ok {
					errs <- errors.New("pair vanished")
					return
				}
				if p.AccessToken[len("access-"):] != p.RefreshToken[len("refresh-"):] {
					errs <- fmt.Errorf("mixed pair %+v", p)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestSQLite_ClearAndSwappedValues(t *testing.T) {
	ctx := context.Background()
	db := mustSQLiteDB(t, filepath.Join(t.TempDir(), "creds.db"))
	s, _ := NewSQLite(db, mustBox(t))

	if err := s.Save(ctx, testPair("a")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A sealed value moved into another slot must not decrypt.
	if _, err := db.ExecContext(ctx, `
UPDATE credentials SET value = (SELECT value FROM credentials WHERE name = 'refresh_token')
WHERE name = 'access_token'`); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, _, err := s.Load(ctx); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, err := s.Load(ctx); err != nil || ok {
		t.Fatalf("after Clear: ok=%v err=%v", ok, err)
	}
}

package credstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testPair(suffix string) Pair {
	return Pair{
		AccessToken:  "access-" + suffix,
		RefreshToken: "refresh-" + suffix,
		ExpiresAt:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPairValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		p    Pair
		ok   bool
	}{
		{"complete", testPair("a"), true},
		{"no access", Pair{RefreshToken: "r", ExpiresAt: time.Now()}, false},
		{"no refresh", Pair{AccessToken: "a", ExpiresAt: time.Now()}, false},
		{"no expiry", Pair{AccessToken: "a", RefreshToken: "r"}, false},
	}
	for _, tc := range cases {
		err := tc.p.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrIncompletePair) {
			t.Fatalf("%s: expected ErrIncompletePair, got %v", tc.name, err)
		}
	}
}

func TestPairToken(t *testing.T) {
	t.Parallel()

	p := testPair("x")
	tok := p.Token()
	if tok.Type() != "Bearer" || tok.AccessToken != p.AccessToken {
		t.Fatalf("unexpected token %+v", tok)
	}
	if tok.RefreshToken != p.RefreshToken || !tok.Expiry.Equal(p.ExpiresAt) {
		t.Fatalf("token lost fields: %+v", tok)
	}
}

func TestMemory_SaveLoadClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Load(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := m.Save(ctx, Pair{AccessToken: "only"}); !errors.Is(err, ErrIncompletePair) {
		t.Fatalf("expected ErrIncompletePair, got %v", err)
	}

	want := testPair("1")
	if err := m.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := m.Load(ctx)
	if err != nil || !ok || got != want {
		t.Fatalf("Load: got=%+v ok=%v err=%v", got, ok, err)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := m.Load(ctx); ok {
		t.Fatalf("expected empty store after Clear")
	}
}

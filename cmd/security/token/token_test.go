package token

import "testing"

func TestFingerprint(t *testing.T) {
	t.Parallel()

	fp := Fingerprint("refresh-abc")
	if len(fp) != FingerprintLength {
		t.Fatalf("len = %d, want %d", len(fp), FingerprintLength)
	}
	if fp != Fingerprint("refresh-abc") {
		t.Fatalf("fingerprint must be stable")
	}
	if fp == Fingerprint("refresh-abd") {
		t.Fatalf("distinct tokens should not collide")
	}
	if Fingerprint("") != "" {
		t.Fatalf("empty token must yield empty fingerprint")
	}
}

func TestHashSHA256Hex_KnownVector(t *testing.T) {
	t.Parallel()

	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := HashSHA256Hex("hello"); got != want {
		t.Fatalf("got %s", got)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	if !Equal("a", "a") || Equal("a", "b") || Equal("a", "aa") {
		t.Fatalf("Equal mismatch")
	}
}

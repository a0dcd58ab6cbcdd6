// Package ids provides identifier primitives shared by the sync layer.
//
// Server-confirmed entities carry whatever identifier the API assigned.
// Entities synthesized locally for optimistic updates carry a temporary
// identifier built from a ULID, so they sort by creation time and can always
// be told apart from server ids with IsTemporary.
package ids

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// TemporaryPrefix marks identifiers that were never confirmed by the server.
const TemporaryPrefix = "tmp_"

// NewULID returns a new ULID string (26 chars).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewTemporaryID returns a placeholder identifier for an optimistic entity.
func NewTemporaryID(now time.Time) (string, error) {
	id, err := NewULID(now)
	if err != nil {
		return "", err
	}
	return TemporaryPrefix + id, nil
}

// IsTemporary reports whether id was produced by NewTemporaryID.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, TemporaryPrefix)
}

// TemporaryTime extracts the creation time embedded in a temporary id.
func TemporaryTime(id string) (time.Time, bool) {
	if !IsTemporary(id) {
		return time.Time{}, false
	}
	u, err := ulid.ParseStrict(strings.TrimPrefix(id, TemporaryPrefix))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()).UTC(), true
}

package localdb

import (
	_ "embed"
	"strings"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// MetaKDFSalt names the store_meta row holding the credential KDF salt.
const MetaKDFSalt = "kdf_salt"

// statements splits a schema script on ';' terminators.
func statements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

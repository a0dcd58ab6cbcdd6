// Package localdb opens the databases that back durable client state.
//
// Two backends are supported:
//   - SQLite (modernc.org/sqlite, pure Go) for the default per-device store
//     under the data directory;
//   - Postgres (pgxpool) for daemon deployments that keep state in a shared
//     database, one logical profile per row set.
//
// Both open paths apply the embedded schema idempotently. Tables are small:
// credentials, store metadata (KDF salt) and first-page query snapshots.
package localdb

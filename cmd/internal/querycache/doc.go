// Package querycache is the read-through cache for list and paginated queries.
//
// Every page read goes to the network first. The first page of each query
// is additionally persisted as a snapshot; when a later first-page read
// fails for a network reason, the snapshot is served instead of the error.
// Pages after the first are never persisted and never served stale: an
// older-history page that cannot be fetched is an error, not a guess.
//
// In-memory query data is replaced copy-on-write. Readers always receive a
// private clone, so a mutation splicing an optimistic entity into a page
// can never expose a half-built structure.
package querycache

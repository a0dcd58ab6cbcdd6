// Package mutation coordinates optimistic writes against the query cache.
//
// A mutation snapshots the current data of its query key, publishes an
// optimistic copy, runs the network call and, on failure, puts the exact
// snapshot back. Whatever the outcome, the key and its related keys are
// invalidated once the call settles so the next read refetches canonical
// server state.
package mutation

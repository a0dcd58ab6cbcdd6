// Package realtime keeps the query cache honest while the process is
// connected: it listens on the API's change stream and invalidates the
// queries an event touches, so the next read refetches them.
//
// Events are hints, never data. A dropped connection is re-dialed with
// exponential backoff, bounded by a sliding window of attempts.
package realtime

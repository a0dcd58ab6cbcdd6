// Package chat is the client-side view of the v1 chat API built on the
// sync layer: login and logout through the session manager, paginated
// conversations and messages through the query cache, and optimistic
// send and mark-read through mutations.
//
// Optimistic messages carry temporary ids (see package ids) until the
// server confirms them; operations addressed to a temporary id fail with
// ErrPendingEntity instead of reaching the network.
package chat

// Package devserver is an in-memory implementation of the v1 chat API used
// by integration tests and by `arcsync dev-server` for local runs.
//
// It issues short-lived HS256 access tokens and opaque, rotating refresh
// tokens, reports TOKEN_EXPIRED on expired access tokens, pages
// conversations and messages, accepts idempotent sends per client_msg_id,
// tracks read markers and fans changes out over a websocket. Every response
// carries X-RateLimit-* headers from a sliding-window limiter.
//
// Fault injection (FailNext) lets tests force API errors or dropped
// connections on a specific route.
package devserver

// Package credstore persists the current credential pair.
//
// A Pair is three fields (access token, refresh token, expiry) that are
// always written and cleared together. Every Store implementation guarantees
// that Load never observes a mix of an old and a new pair, and that a failure
// in the middle of Save leaves the previous pair in place.
//
// The package holds no policy: it does not decide whether a pair is expired,
// it does not retry, and I/O errors are returned to the caller unchanged.
// Durable implementations seal every value with a Sealer so tokens are
// encrypted at rest.
package credstore

// Package token provides hashing helpers for credentials handled by arcsync.
//
// Raw access or refresh tokens never appear in logs or metrics labels.
// Fingerprint returns a short, stable SHA-256 prefix that is safe to log and
// still lets an operator correlate two log lines about the same credential.
package token

// Package sealbox encrypts small secrets for storage at rest.
//
// A Box wraps XChaCha20-Poly1305 with a random 24-byte nonce prepended to
// every ciphertext. Keys are either supplied directly (32 bytes) or derived
// from a passphrase with Argon2id.
//
// Callers pass associated data that names the slot a value is stored in
// (for example the credential field name). A ciphertext copied into a
// different slot then fails to open instead of silently decrypting.
//
// Environment (KDFParamsFromEnv):
//   - ARCSYNC_KDF_MEMORY_KIB
//   - ARCSYNC_KDF_ITERATIONS
//   - ARCSYNC_KDF_PARALLELISM
package sealbox

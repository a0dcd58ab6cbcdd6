package sealbox

import (
	"crypto/rand"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// MinSaltLength is the shortest salt DeriveKey accepts.
const MinSaltLength = 16

// KDFParams controls Argon2id key derivation cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type KDFParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns interactive-grade Argon2id settings.
func DefaultKDFParams() KDFParams {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return KDFParams{
		MemoryKiB:   64 * 1024, // 64 MiB
		Iterations:  3,
		Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
	}
}

// KDFParamsFromEnv loads KDF cost overrides from the environment.
func KDFParamsFromEnv() (KDFParams, error) {
	p := DefaultKDFParams()

	if v, ok := os.LookupEnv("ARCSYNC_KDF_MEMORY_KIB"); ok {
		u, err := atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return KDFParams{}, fmt.Errorf("ARCSYNC_KDF_MEMORY_KIB: %w", err)
		}
		p.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("ARCSYNC_KDF_ITERATIONS"); ok {
		u, err := atou32(v, 1, 20)
		if err != nil {
			return KDFParams{}, fmt.Errorf("ARCSYNC_KDF_ITERATIONS: %w", err)
		}
		p.Iterations = u
	}

	if v, ok := os.LookupEnv("ARCSYNC_KDF_PARALLELISM"); ok {
		u, err := atou32(v, 1, math.MaxUint8)
		if err != nil {
			return KDFParams{}, fmt.Errorf("ARCSYNC_KDF_PARALLELISM: %w", err)
		}
		p.Parallelism = uint8(u) // #nosec G115 -- bounded by atou32 above.
	}

	return p, nil
}

// NewSalt returns MinSaltLength random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, MinSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches passphrase into a 32-byte key.
func DeriveKey(passphrase string, salt []byte, p KDFParams) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) < MinSaltLength {
		return nil, ErrSaltSize
	}
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		p = DefaultKDFParams()
	}

	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		p.Iterations,
		p.MemoryKiB,
		p.Parallelism,
		chacha20poly1305.KeySize,
	), nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

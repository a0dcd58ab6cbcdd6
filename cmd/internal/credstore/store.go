package credstore

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Persisted field names. They double as associated data when sealing.
const (
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldExpiresAt    = "expires_at"
)

var fields = [...]string{FieldAccessToken, FieldRefreshToken, FieldExpiresAt}

var (
	// ErrIncompletePair is returned by Save when any field is missing.
	ErrIncompletePair = errors.New("credstore: incomplete credential pair")
	// ErrCorrupt is returned by Load when stored values cannot be decoded.
	ErrCorrupt = errors.New("credstore: stored credentials are corrupt")
)

// Pair is the current credential set.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Validate reports ErrIncompletePair unless all three fields are set.
func (p Pair) Validate() error {
	if p.AccessToken == "" || p.RefreshToken == "" || p.ExpiresAt.IsZero() {
		return ErrIncompletePair
	}
	return nil
}

// Remaining returns the validity left at now (negative once expired).
func (p Pair) Remaining(now time.Time) time.Duration {
	return p.ExpiresAt.Sub(now)
}

// Token converts p for use with golang.org/x/oauth2.
func (p Pair) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: p.RefreshToken,
		Expiry:       p.ExpiresAt,
	}
}

// Store persists at most one Pair.
type Store interface {
	Save(ctx context.Context, p Pair) error
	// Load returns ok=false when no complete pair is stored.
	Load(ctx context.Context) (p Pair, ok bool, err error)
	Clear(ctx context.Context) error
}

// Sealer encrypts values at rest. *sealbox.Box implements it.
type Sealer interface {
	Seal(plaintext, ad []byte) ([]byte, error)
	Open(sealed, ad []byte) ([]byte, error)
}

// encodeField returns the plaintext bytes persisted for name.
func encodeField(p Pair, name string) []byte {
	switch name {
	case FieldAccessToken:
		return []byte(p.AccessToken)
	case FieldRefreshToken:
		return []byte(p.RefreshToken)
	default:
		return []byte(p.ExpiresAt.UTC().Format(time.RFC3339Nano))
	}
}

// decodePair rebuilds a Pair from opened field values.
func decodePair(values map[string][]byte) (Pair, bool, error) {
	for _, f := range fields {
		if _, ok := values[f]; !ok {
			return Pair{}, false, nil
		}
	}
	exp, err := time.Parse(time.RFC3339Nano, string(values[FieldExpiresAt]))
	if err != nil {
		return Pair{}, false, ErrCorrupt
	}
	p := Pair{
		AccessToken:  string(values[FieldAccessToken]),
		RefreshToken: string(values[FieldRefreshToken]),
		ExpiresAt:    exp.UTC(),
	}
	if p.Validate() != nil {
		return Pair{}, false, ErrCorrupt
	}
	return p, true, nil
}

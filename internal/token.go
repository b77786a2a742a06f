package internal

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OpaqueTokenLength is the canonical wire length of a refresh token.
const OpaqueTokenLength = 36

// ErrBadOpaqueToken is returned for inputs that are not canonical opaque
// tokens.
var ErrBadOpaqueToken = errors.New("not a canonical opaque token")

// NewOpaqueToken returns a fresh random refresh token in canonical UUID
// form. Entropy comes from crypto/rand.
func NewOpaqueToken() string {
	return uuid.NewString()
}

// ValidateOpaqueToken checks that token is a canonical 36-character UUID.
// uuid.Parse alone also accepts braced, URN, and bare-hex forms, so the
// length is pinned first.
func ValidateOpaqueToken(token string) error {
	if len(token) != OpaqueTokenLength {
		return ErrBadOpaqueToken
	}
	if _, err := uuid.Parse(token); err != nil {
		return ErrBadOpaqueToken
	}
	return nil
}

// RemainingLifetime returns how long a token issued until expiresAt is
// still live at now, clamped at zero.
func RemainingLifetime(expiresAt, now time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

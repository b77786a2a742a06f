package store

import "time"

// RefreshToken is the durable record behind an opaque refresh token. The
// token string itself is the primary key.
type RefreshToken struct {
	Token             string
	UserID            int64
	UserEmail         string
	ExpiresAt         time.Time
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	Revoked           bool
	RevokedAt         *time.Time
	RevocationReason  string
	UsageCount        int64
	LastUsedAt        *time.Time
	Deleted           bool
	DeletedAt         *time.Time
	Version           int64
	CreatedAt         time.Time
}

// Valid reports whether the token is usable at now: not revoked, not
// deleted, and not past expiry.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && !t.Deleted && now.Before(t.ExpiresAt)
}

// Expired reports whether the expiry has passed at now, independent of the
// revocation and deletion flags.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

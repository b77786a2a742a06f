package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no row exists for the given token.
	ErrNotFound = errors.New("refresh token not found")
	// ErrDuplicate is returned when a token collides with an existing row.
	ErrDuplicate = errors.New("refresh token already exists")
	// ErrUnavailable wraps every infrastructure failure. A store outage is
	// never a token verdict.
	ErrUnavailable = errors.New("token store unavailable")
)

// Store is the durable refresh-token contract the Engine depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new token row.
	Create(ctx context.Context, rec *RefreshToken) error

	// FindActive returns the row for token, excluding soft-deleted rows.
	// Revoked and expired rows are still returned; validity is the
	// caller's judgment via RefreshToken.Valid.
	FindActive(ctx context.Context, token string) (*RefreshToken, error)

	// Revoke marks the row revoked with the given reason and returns the
	// number of rows transitioned. Revoking an already-revoked or unknown
	// token returns 0, nil.
	Revoke(ctx context.Context, token, reason string, at time.Time) (int64, error)

	// RevokeAllForUser revokes every live token of the user and returns
	// the number of rows transitioned.
	RevokeAllForUser(ctx context.Context, userID int64, reason string, at time.Time) (int64, error)

	// IncrementUsage bumps the usage counter atomically in SQL so that
	// concurrent refreshes never lose increments.
	IncrementUsage(ctx context.Context, token string, at time.Time) error

	// CountActiveForUser returns the number of live tokens the user holds
	// at now.
	CountActiveForUser(ctx context.Context, userID int64, now time.Time) (int64, error)

	// PurgeExpired hard-deletes rows whose expiry precedes before and
	// returns the number removed.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// DBTX is the subset of database/sql used by the Postgres store. Both
// *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

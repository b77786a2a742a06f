// Package directory defines the user directory contract the engine
// authenticates against, plus the JSON/HTTP client used against the
// platform's user service. Identity, password hashes, roles, and privileges
// live there; this module never stores them.
package directory

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the directory answered and the user does not
	// exist. It is an explicit answer, not an outage.
	ErrNotFound = errors.New("user not found in directory")
	// ErrUnavailable means the directory could not be reached or did not
	// answer in time.
	ErrUnavailable = errors.New("user directory unavailable")
)

// User is the directory's view of an account. PasswordHash is a bcrypt
// hash; the engine compares against it and never logs or stores it.
type User struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"password"`
	Active       bool     `json:"active"`
	Roles        []string `json:"roles"`
	Privileges   []string `json:"privileges"`
}

// Client resolves users by email or id. Implementations must be safe for
// concurrent use and must distinguish ErrNotFound from ErrUnavailable.
type Client interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

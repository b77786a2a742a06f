package authcore

import (
	"time"

	"github.com/microplat/authcore/jwt"
)

// TokenTypeBearer is the token_type value carried on login and refresh
// results.
const TokenTypeBearer = "Bearer"

// LoginResult is the outcome of a successful Login.
type LoginResult struct {
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken"`
	TokenType       string    `json:"tokenType"`
	ExpiresIn       int64     `json:"expiresIn"`
	UserID          int64     `json:"userId"`
	Email           string    `json:"email"`
	Roles           []string  `json:"roles"`
	Privileges      []string  `json:"privileges,omitempty"`
	AuthenticatedAt time.Time `json:"authenticatedAt"`
}

// RefreshResult is the outcome of a successful Refresh. The refresh token
// is not rotated, so only the new access token is returned.
type RefreshResult struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// ValidationResult is the structured answer of Validate. An invalid token
// is an answer, not an error: Valid is false and Message says why.
type ValidationResult struct {
	Valid      bool           `json:"valid"`
	TokenType  jwt.TokenClass `json:"tokenType"`
	UserID     int64          `json:"userId,omitempty"`
	Email      string         `json:"email,omitempty"`
	Roles      []string       `json:"roles,omitempty"`
	Privileges []string       `json:"privileges,omitempty"`
	ExpiresAt  time.Time      `json:"expiresAt,omitzero"`
	Message    string         `json:"message"`
}

// LogoutRequest selects the logout mode: a single refresh token, or every
// device of a user. AllDevices requires UserID.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
	AllDevices   bool   `json:"allDevices"`
	UserID       int64  `json:"userId,omitempty"`
}

// LogoutResult reports the revocation outcome. TokensRevoked counts rows
// this call transitioned; logging out an unknown or already-revoked token
// succeeds with a zero count.
type LogoutResult struct {
	Success       bool      `json:"success"`
	TokensRevoked int64     `json:"tokensRevoked"`
	LoggedOutAt   time.Time `json:"loggedOutAt"`
}

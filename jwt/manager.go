package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClass selects the signing secret and TTL for a token. The classes
// are cryptographically independent.
type TokenClass string

const (
	// ClassAccess is the short-lived bearer class carried on API requests.
	ClassAccess TokenClass = "ACCESS"
	// ClassRefresh is the long-lived class used for signed refresh
	// assertions on the introspection surface.
	ClassRefresh TokenClass = "REFRESH"
)

var (
	// ErrMalformed is returned when the input is not a structurally valid
	// token.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned when the token verified but its expiry has
	// passed.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the signature does not verify under
	// the class secret.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrUnsupported is returned for tokens signed with an algorithm other
	// than HS256, including alg=none.
	ErrUnsupported = errors.New("unsupported signing algorithm")
	// ErrUnknownClass is returned when the requested class is neither
	// ACCESS nor REFRESH.
	ErrUnknownClass = errors.New("unknown token class")
)

// Config carries the per-class signing material and TTLs.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

// Identity is the directory-sourced subject a token is minted for.
type Identity struct {
	UserID     int64
	Email      string
	Roles      []string
	Privileges []string
}

// Claims is the stable claim layout shared by every service that consumes
// these tokens. sub carries the email; userId, roles, privileges, and
// tokenType are custom claims.
type Claims struct {
	UserID     int64    `json:"userId"`
	Roles      []string `json:"roles,omitempty"`
	Privileges []string `json:"privileges,omitempty"`
	TokenType  string   `json:"tokenType"`
	jwt.RegisteredClaims
}

// Email returns the subject claim.
func (c *Claims) Email() string {
	return c.Subject
}

// Manager signs and verifies tokens for both classes. It is immutable after
// NewManager and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and builds a Manager. Secrets must be at least
// 32 bytes, must differ between classes, and both TTLs must be positive.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < 32 {
		return nil, errors.New("access secret must be >= 32 bytes")
	}
	if len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("refresh secret must be >= 32 bytes")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)
	return &Manager{config: cfg}, nil
}

// Sign mints a token of the given class for identity. Privileges are
// embedded on the ACCESS class only.
func (m *Manager) Sign(identity Identity, class TokenClass) (string, error) {
	secret, ttl, err := m.classMaterial(class)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		UserID:    identity.UserID,
		Roles:     identity.Roles,
		TokenType: string(class),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if class == ClassAccess {
		claims.Privileges = identity.Privileges
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify parses tokenStr under the given class secret and returns its
// claims. Failures map to ErrMalformed, ErrExpired, ErrBadSignature, or
// ErrUnsupported; a token minted for the other class fails with
// ErrBadSignature because the secrets are independent.
func (m *Manager) Verify(tokenStr string, class TokenClass) (*Claims, error) {
	secret, _, err := m.classMaterial(class)
	if err != nil {
		return nil, err
	}

	var options []jwt.ParserOption
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	// The algorithm check lives in the keyfunc rather than WithValidMethods
	// so that alg confusion surfaces as ErrUnsupported, not as a signature
	// failure.
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return nil, translateParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.TokenType != string(class) {
		return nil, fmt.Errorf("%w: token minted for class %s", ErrBadSignature, claims.TokenType)
	}

	return claims, nil
}

// TTL returns the configured lifetime of the given class.
func (m *Manager) TTL(class TokenClass) time.Duration {
	switch class {
	case ClassRefresh:
		return m.config.RefreshTTL
	default:
		return m.config.AccessTTL
	}
}

func (m *Manager) classMaterial(class TokenClass) ([]byte, time.Duration, error) {
	switch class {
	case ClassAccess:
		return m.config.AccessSecret, m.config.AccessTTL, nil
	case ClassRefresh:
		return m.config.RefreshSecret, m.config.RefreshTTL, nil
	default:
		return nil, 0, ErrUnknownClass
	}
}

func translateParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrUnsupported
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

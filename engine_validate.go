package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/microplat/authcore/internal"
	"github.com/microplat/authcore/jwt"
	"github.com/microplat/authcore/store"
)

// Validate answers whether token is currently acceptable for the given
// class and returns the identity it carries.
//
// ACCESS validation is pure: signature and expiry, no I/O. REFRESH
// validation is format, blacklist, then store authority. An invalid token
// is a Valid=false answer with a message; errors are reserved for
// malformed requests (empty token, unknown class) and store outages.
func (e *Engine) Validate(ctx context.Context, token string, class jwt.TokenClass) (*ValidationResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	if token == "" {
		return nil, ErrValidationFailed
	}

	switch class {
	case jwt.ClassAccess:
		return e.validateAccess(token), nil
	case jwt.ClassRefresh:
		return e.validateRefresh(ctx, token)
	default:
		return nil, ErrValidationFailed
	}
}

func (e *Engine) validateAccess(token string) *ValidationResult {
	claims, err := e.jwtManager.Verify(token, jwt.ClassAccess)
	if err != nil {
		return &ValidationResult{
			Valid:     false,
			TokenType: jwt.ClassAccess,
			Message:   verifyFailureMessage(err),
		}
	}

	result := &ValidationResult{
		Valid:      true,
		TokenType:  jwt.ClassAccess,
		UserID:     claims.UserID,
		Email:      claims.Email(),
		Roles:      claims.Roles,
		Privileges: claims.Privileges,
		Message:    "token is valid",
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result
}

func (e *Engine) validateRefresh(ctx context.Context, token string) (*ValidationResult, error) {
	invalid := func(msg string) *ValidationResult {
		return &ValidationResult{Valid: false, TokenType: jwt.ClassRefresh, Message: msg}
	}

	if err := internal.ValidateOpaqueToken(token); err != nil {
		return invalid("malformed refresh token"), nil
	}

	if e.isBlacklisted(ctx, token) {
		e.metricInc(MetricBlacklistHit)
		return invalid("token has been revoked"), nil
	}

	rec, err := e.findToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("unknown refresh token"), nil
		}
		return nil, ErrStoreUnavailable
	}

	now := time.Now()
	switch {
	case rec.Revoked || rec.Deleted:
		return invalid("token has been revoked"), nil
	case rec.Expired(now):
		return invalid("token expired"), nil
	}

	return &ValidationResult{
		Valid:     true,
		TokenType: jwt.ClassRefresh,
		UserID:    rec.UserID,
		Email:     rec.UserEmail,
		ExpiresAt: rec.ExpiresAt,
		Message:   "token is valid",
	}, nil
}

// verifyFailureMessage keeps the signature/expiry distinction the
// introspection surface promises without leaking parser detail.
func verifyFailureMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrBadSignature):
		return "signature verification failed"
	case errors.Is(err, jwt.ErrUnsupported):
		return "unsupported signing algorithm"
	default:
		return "malformed token"
	}
}

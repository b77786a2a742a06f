package authcore

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrAuthenticationFailed covers every login failure: unknown email, bad
	// password, inactive account, directory outage. Callers get no detail.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidToken is returned when a presented token is unknown, revoked,
	// malformed, or fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token was valid once but its expiry
	// has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrValidationFailed is returned for malformed requests: unknown token
	// class, empty token, logout without a mode.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNotFound is returned when a referenced resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden is returned when the caller is authenticated but lacks the
	// required privilege.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable is returned when the durable token store cannot be
	// reached. This is an infrastructure fault, never a token verdict.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrCacheUnavailable marks a revocation cache outage. The Engine treats
	// it as a degraded-mode signal, not a request failure.
	ErrCacheUnavailable = errors.New("revocation cache unavailable")
	// ErrDirectoryUnavailable marks a user directory outage. On the login and
	// refresh paths it is translated before reaching the caller.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
	// ErrEngineNotReady is returned when an Engine method is called before
	// Builder.Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Kind is the stable machine-readable class of an Engine error, suitable for
// structured error bodies and log fields.
type Kind string

const (
	KindAuthenticationFailed Kind = "AUTHENTICATION_FAILED"
	KindInvalidToken         Kind = "INVALID_TOKEN"
	KindTokenExpired         Kind = "TOKEN_EXPIRED"
	KindValidationFailed     Kind = "VALIDATION_FAILED"
	KindNotFound             Kind = "NOT_FOUND"
	KindForbidden            Kind = "FORBIDDEN"
	KindUnavailable          Kind = "SERVICE_UNAVAILABLE"
	KindInternal             Kind = "INTERNAL"
)

// ErrorKind classifies err against the sentinel taxonomy. Unknown errors map
// to KindInternal.
func ErrorKind(err error) Kind {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return KindAuthenticationFailed
	case errors.Is(err, ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrValidationFailed):
		return KindValidationFailed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrCacheUnavailable),
		errors.Is(err, ErrDirectoryUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the transport status the platform's services use
// for this taxonomy.
func HTTPStatus(err error) int {
	switch ErrorKind(err) {
	case KindAuthenticationFailed, KindInvalidToken, KindTokenExpired:
		return http.StatusUnauthorized
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the structured error payload returned by the HTTP surface.
type ErrorBody struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse builds the wire body for err. The message is the sentinel
// text only; internal causes are never serialized.
func ErrorResponse(err error) ErrorBody {
	kind := ErrorKind(err)
	msg := "internal error"
	for _, sentinel := range []error{
		ErrAuthenticationFailed, ErrTokenExpired, ErrInvalidToken,
		ErrValidationFailed, ErrNotFound, ErrForbidden,
		ErrStoreUnavailable, ErrCacheUnavailable, ErrDirectoryUnavailable,
		ErrEngineNotReady,
	} {
		if errors.Is(err, sentinel) {
			msg = sentinel.Error()
			break
		}
	}
	return ErrorBody{Kind: kind, Message: msg, Timestamp: time.Now().UTC()}
}

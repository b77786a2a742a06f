// Package middleware provides the net/http bearer guard for services that
// accept this module's access tokens.
package middleware

import (
	"context"
	"net/http"
	"strings"

	authcore "github.com/microplat/authcore"
	"github.com/microplat/authcore/jwt"
)

type identityContextKey struct{}

// IdentityFromContext returns the validation result the Guard stored for
// the current request.
func IdentityFromContext(ctx context.Context) (*authcore.ValidationResult, bool) {
	res, ok := ctx.Value(identityContextKey{}).(*authcore.ValidationResult)
	return res, ok
}

// Guard rejects requests without a valid ACCESS bearer token and injects
// the validated identity into the request context.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token, jwt.ClassAccess)
			if err != nil || !res.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/obsidiansec/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity injected by [Guard].
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok
}

// Guard rejects requests without a valid bearer token and makes the
// verified identity available to the wrapped handler through the
// request context.
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

			identity, err := engine.VerifyToken(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is [Guard] plus a role check. A valid token without the
// role gets 403 rather than 401.
func RequireRole(engine *authcore.Engine, role string) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || !hasRole(identity, role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func hasRole(identity *authcore.Identity, role string) bool {
	for _, r := range identity.Roles {
		if r == role {
			return true
		}
	}
	return false
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

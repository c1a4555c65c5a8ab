package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/authcore-io/authcore"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated access claims a [Guard]
// injected into the request context.
func ClaimsFromContext(ctx context.Context) (*authcore.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.AccessClaims)
	return claims, ok
}

// Guard rejects requests without a valid bearer access token and injects
// the validated claims into the request context.
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

			claims, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
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

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity returns the authenticated username stored in the request
// context by Middleware.
func Identity(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(identityKey).(string)
	return username, ok
}

// WithIdentity injects a username directly, for tests and internal calls.
func WithIdentity(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, identityKey, username)
}

// Middleware validates the Bearer token of every request and injects the
// caller's identity into the request context. Websocket upgrades may
// carry the token as a query parameter instead, since browser websocket
// clients cannot set headers.
func Middleware(tokens *TokenService, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}
			claims, err := tokens.Validate(tokenString)
			if err != nil {
				log.Debug("Rejected token", "path", r.URL.Path, "error", err)
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Username)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aliuyar1234/inviteguard/internal/apperrors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrMissingBearer is returned when no Authorization header is present
	ErrMissingBearer = errors.New("missing bearer token in Authorization header")

	// ErrMalformedBearer is returned when the header is not "Bearer <token>"
	ErrMalformedBearer = errors.New("invalid Authorization header format, expected 'Bearer <token>'")
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const principalContextKey contextKey = "principal"

// ExtractBearer extracts the token from "Authorization: Bearer <token>".
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingBearer
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrMalformedBearer
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMalformedBearer
	}
	return token, nil
}

// AuthMiddleware validates a bearer token when present and injects the
// principal into the context. Requests without a valid token continue
// unauthenticated; RequireAuth decides whether that is acceptable.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractBearer(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid bearer token")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Principal())))
		})
	}
}

// RequireAuth is middleware that requires authentication
// Returns 401 if the caller is not authenticated
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetPrincipal(r.Context()); !ok {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetPrincipal retrieves the authenticated caller from the request context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

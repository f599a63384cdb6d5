package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gatepass.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type claimsContextKey struct{}

func contextWithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	v, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return v
}

// withAuth authenticates bearer tokens on protected paths and attaches the
// staff principal and claims to the context. The tenant claim itself is
// consumed later by withTenant as the strongest resolution signal.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || a.exempt.Contains(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Roles)
		ctx = contextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	if !strings.HasPrefix(header, bearer) {
		return "", errors.New("Authorization header must use Bearer scheme")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearer))
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

package auth

import "context"

type userContextKey struct{}

type contextUser struct {
	id    string
	roles []string
}

// ContextWithUser attaches the authenticated staff user to the context.
func ContextWithUser(ctx context.Context, userID string, roles []string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, contextUser{id: userID, roles: roles})
}

// UserIDFromContext extracts the authenticated user id from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userContextKey{}).(contextUser)
	if !ok || v.id == "" {
		return "", false
	}
	return v.id, true
}

// RolesFromContext returns the authenticated user's roles.
func RolesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	v, ok := ctx.Value(userContextKey{}).(contextUser)
	if !ok {
		return nil
	}
	return v.roles
}

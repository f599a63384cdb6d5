package tenant

import "context"

type tenantContextKey struct{}

// ContextWithID attaches the resolved tenant identifier to the context.
// Resolution happens once per request; downstream components read the stamped
// value instead of re-deriving it.
func ContextWithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantContextKey{}, id)
}

// IDFromContext returns the tenant identifier stamped by the resolver.
func IDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tenantContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

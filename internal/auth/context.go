package auth

import "context"

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
// The principal is request-scoped: the gate re-binds it on every request and
// nothing survives between requests.
func ContextWithPrincipal(ctx context.Context, u *User) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, u)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(principalContextKey{}).(*User)
	if !ok || u == nil {
		return nil, false
	}
	return u, true
}

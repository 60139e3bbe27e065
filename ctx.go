package admission

import (
	"context"

	"github.com/goliatone/go-router"
)

// DefaultContextKey is the router locals slot the gate stores the principal
// under.
const DefaultContextKey = "principal"

// DefaultCookieName is the session cookie shared by the login flow and the
// gate.
const DefaultCookieName = "admission"

var principalCtxKey = &contextKey{"principal"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(r context.Context, principal *Principal) context.Context {
	return context.WithValue(r, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok
}

// WithClaims sets the token Claims in the given context
func WithClaims(r context.Context, claims Claims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// ClaimsFromContext extracts the token Claims from the standard context
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(Claims)
	return raw, ok
}

// RouterPrincipal extracts the Principal from the router context
func RouterPrincipal(ctx router.Context, key string) (*Principal, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	principal, ok := raw.(*Principal)
	return principal, ok
}

// HasRole is a convenience check against the principal in the standard
// context. An absent principal has no roles.
func HasRole(ctx context.Context, role string) bool {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	return principal.HasRole(role)
}

// HasRoleFromRouter checks roles against the principal in the router context
func HasRoleFromRouter(ctx router.Context, role string) bool {
	principal, ok := RouterPrincipal(ctx, "")
	if !ok {
		return false
	}
	return principal.HasRole(role)
}

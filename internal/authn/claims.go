package authn

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"harmonia.org/internal/roles"
)

const (
	// CookieAccess and CookieRefresh name the two bearer cookies.
	CookieAccess  = "access_token"
	CookieRefresh = "refresh_token"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the authenticated-principal payload carried inside both tokens.
// It is created fresh at login and re-created on every transparent refresh,
// so revoked privileges take effect at the next refresh rather than
// instantly.
type Claims struct {
	EmailAddress string            `json:"email_address"`
	Roles        roles.Composition `json:"roles"`
	TokenType    string            `json:"token_type"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims contain the given role.
func (c *Claims) HasRole(r roles.Role) bool {
	return c.Roles.Has(r)
}

type claimsContextKey struct{}

// ContextWithClaims attaches verified claims to the request context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts verified claims; absence is a valid state for
// anonymous-capable routes.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

package httpapi

import (
	"net/http"

	"harmonia.org/internal/audit"
	"harmonia.org/internal/authn"
	"harmonia.org/internal/fault"
	"harmonia.org/internal/obs"
	"harmonia.org/internal/policy"
)

// authenticate extracts and verifies the access token cookie. A missing or
// invalid token yields an anonymous request, not an error; whether anonymity
// is acceptable is the route policy's call.
func (a *API) authenticate(r *http.Request) *authn.Claims {
	cookie, err := r.Cookie(authn.CookieAccess)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := a.auth.Signer().VerifyAccess(cookie.Value)
	if err != nil {
		return nil
	}
	return claims
}

// gate is the authorization choke point: every request resolves its
// allowance through the cached policy table before any handler runs.
// Unmatched routes fall to the Operator-only default, so forgetting to
// declare a route locks it rather than exposing it.
func (a *API) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := a.authenticate(r)
		if claims != nil {
			r = r.WithContext(authn.ContextWithClaims(r.Context(), claims))
		}

		allowance := a.cache.Lookup(a.policy, r.Method, r.URL.Path)
		switch allowance.Kind {
		case policy.AllowanceAny:
		case policy.AllowanceLoggedInMember:
			if claims == nil {
				a.deny(w, r, fault.Unauthorized("authentication required", nil))
				return
			}
		case policy.AllowanceRoleAuthority:
			if claims == nil {
				a.deny(w, r, fault.Unauthorized("authentication required", nil))
				return
			}
			if !claims.Roles.Intersects(allowance.Required) {
				a.deny(w, r, fault.Forbidden())
				return
			}
		default:
			a.deny(w, r, fault.Forbidden())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) deny(w http.ResponseWriter, r *http.Request, err error) {
	obs.AuthzDenied(r.Method, r.URL.Path)
	_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	writeFault(w, r, err)
}

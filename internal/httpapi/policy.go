package httpapi

import (
	"net/http"

	"harmonia.org/internal/policy"
	"harmonia.org/internal/roles"
)

// routePolicy declares the access requirement of every route. Within a
// method the first matching pattern wins, so narrower patterns come first.
// Anything not listed here resolves to the Operator-only default.
func routePolicy() *policy.Policy {
	management := policy.RoleAuthority(roles.Director, roles.Operator)
	content := policy.RoleAuthority(roles.OrchestraCommittee, roles.Director, roles.Operator)
	operator := policy.RoleAuthority(roles.Operator)

	p := policy.New()

	p.Allow(http.MethodGet, "/healthz", policy.Any()).
		Allow(http.MethodGet, "/readyz", policy.Any()).
		Allow(http.MethodGet, "/metrics", policy.Any())

	p.Allow(http.MethodPost, "/api/auth/login", policy.Any()).
		Allow(http.MethodPost, "/api/auth/refresh", policy.Any()).
		Allow(http.MethodPost, "/api/auth/logout", policy.Any()).
		Allow(http.MethodPost, "/api/auth/activate", policy.Any())

	p.Allow(http.MethodGet, "/api/pages", policy.Any()).
		Allow(http.MethodGet, "/api/pages/*", policy.Any()).
		Allow(http.MethodPost, "/api/pages", content).
		Allow(http.MethodPut, "/api/pages/*", content).
		Allow(http.MethodDelete, "/api/pages/*", content)

	p.Allow(http.MethodGet, "/api/members/*/roles", management).
		Allow(http.MethodGet, "/api/members", policy.LoggedInMember()).
		Allow(http.MethodGet, "/api/members/*", policy.LoggedInMember()).
		Allow(http.MethodPost, "/api/members/*/roles", operator).
		Allow(http.MethodPost, "/api/members", management).
		Allow(http.MethodPut, "/api/members/*", management).
		Allow(http.MethodDelete, "/api/members/*/roles/*", operator).
		Allow(http.MethodDelete, "/api/members/*", management)

	p.Allow(http.MethodGet, "/api/workgroups", policy.LoggedInMember()).
		Allow(http.MethodGet, "/api/workgroups/*", policy.LoggedInMember()).
		Allow(http.MethodGet, "/api/workgroups/*/members", policy.LoggedInMember()).
		Allow(http.MethodPost, "/api/workgroups/*/roles", operator).
		Allow(http.MethodPost, "/api/workgroups/*/members", management).
		Allow(http.MethodPost, "/api/workgroups", management).
		Allow(http.MethodPut, "/api/workgroups/*", management).
		Allow(http.MethodDelete, "/api/workgroups/*/roles/*", operator).
		Allow(http.MethodDelete, "/api/workgroups/*/members/*", management).
		Allow(http.MethodDelete, "/api/workgroups/*", management)

	return p
}

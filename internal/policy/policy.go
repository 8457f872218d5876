package policy

import (
	"github.com/bmatcuk/doublestar/v4"

	"harmonia.org/internal/obs"
	"harmonia.org/internal/roles"
)

// AllowanceKind discriminates the access requirement attached to a route.
type AllowanceKind int

const (
	// AllowanceAny admits every caller, including anonymous ones.
	AllowanceAny AllowanceKind = iota
	// AllowanceLoggedInMember admits any authenticated principal,
	// regardless of which roles it holds.
	AllowanceLoggedInMember
	// AllowanceRoleAuthority admits principals holding at least one of the
	// required roles.
	AllowanceRoleAuthority
)

// Allowance is the decision value attached to a route pattern.
type Allowance struct {
	Kind     AllowanceKind
	Required roles.Composition
}

// Any requires no authentication.
func Any() Allowance { return Allowance{Kind: AllowanceAny} }

// LoggedInMember requires a valid principal, role-agnostic.
func LoggedInMember() Allowance { return Allowance{Kind: AllowanceLoggedInMember} }

// RoleAuthority requires at least one of the given roles.
func RoleAuthority(rs ...roles.Role) Allowance {
	return Allowance{Kind: AllowanceRoleAuthority, Required: roles.NewComposition(rs...)}
}

// operatorOnly is the fail-closed default for unmatched routes.
var operatorOnly = Allowance{
	Kind:     AllowanceRoleAuthority,
	Required: roles.NewComposition(roles.Operator),
}

type entry struct {
	pattern   string
	allowance Allowance
}

// Policy is a declarative table of (method, glob pattern) to allowance.
// It is built once at startup and read-only afterwards; declaration order
// within a method is significant - the first matching pattern wins, so more
// specific patterns must precede broader ones.
type Policy struct {
	byMethod map[string][]entry
}

// New returns an empty policy table.
func New() *Policy {
	return &Policy{byMethod: make(map[string][]entry)}
}

// Allow appends a pattern to the method's ordered list. Patterns that fail
// to compile are logged and skipped instead of aborting startup: since the
// unmatched default is Operator-only, a dropped entry only narrows access.
func (p *Policy) Allow(method, pattern string, allowance Allowance) *Policy {
	if !doublestar.ValidatePattern(pattern) {
		obs.LogRequest(map[string]any{
			"level":   "error",
			"msg":     "route_policy_pattern_invalid",
			"method":  method,
			"pattern": pattern,
		})
		return p
	}
	p.byMethod[method] = append(p.byMethod[method], entry{pattern: pattern, allowance: allowance})
	return p
}

// Find resolves the allowance for a concrete method and path. It never
// fails: any (method, path) without a declared match yields the Operator
// authority, so unknown routes stay closed.
func (p *Policy) Find(method, path string) Allowance {
	entries, ok := p.byMethod[method]
	if !ok {
		return operatorOnly
	}
	for _, e := range entries {
		matched, err := doublestar.Match(e.pattern, path)
		if err != nil {
			// Validated at insertion; treat as absent.
			continue
		}
		if matched {
			return e.allowance
		}
	}
	return operatorOnly
}

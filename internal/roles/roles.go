package roles

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"

	"harmonia.org/internal/fault"
)

// Role is an enumerated privilege level. The discriminants are stable and
// stored as integers; Operator deliberately sits at the top of the byte range.
type Role int

const (
	Public             Role = 0x0
	Member             Role = 0x1
	OrchestraCommittee Role = 0x2
	Director           Role = 0x3
	Operator           Role = 0xFF
)

var roleNames = map[Role]string{
	Public:             "PUBLIC",
	Member:             "MEMBER",
	OrchestraCommittee: "ORCHESTRA_COMMITTEE",
	Director:           "DIRECTOR",
	Operator:           "OPERATOR",
}

var rolesByName = map[string]Role{
	"PUBLIC":              Public,
	"MEMBER":              Member,
	"ORCHESTRA_COMMITTEE": OrchestraCommittee,
	"DIRECTOR":            Director,
	"OPERATOR":            Operator,
}

// FromInt converts a stored discriminant back into a Role.
func FromInt(v int) (Role, error) {
	r := Role(v)
	if _, ok := roleNames[r]; !ok {
		return 0, fault.ByteConversion(fmt.Sprintf("could not expand variant into role: %d", v), nil)
	}
	return r, nil
}

// Parse converts the wire name of a role into a Role.
func Parse(name string) (Role, error) {
	if r, ok := rolesByName[name]; ok {
		return r, nil
	}
	return 0, fault.Badf("unknown role %q", name)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE(%d)", int(r))
}

// MarshalJSON serializes roles as their SCREAMING_SNAKE_CASE names.
func (r Role) MarshalJSON() ([]byte, error) {
	name, ok := roleNames[r]
	if !ok {
		return nil, fault.ByteConversion(fmt.Sprintf("could not expand variant into role: %d", int(r)), nil)
	}
	return json.Marshal(name)
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := Parse(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Scan implements sql.Scanner; roles are stored as integers.
func (r *Role) Scan(src any) error {
	var v int
	switch t := src.(type) {
	case int64:
		v = int(t)
	case int:
		v = t
	default:
		return fault.ByteConversion(fmt.Sprintf("unsupported role column type %T", src), nil)
	}
	parsed, err := FromInt(v)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fault.ByteConversion(fmt.Sprintf("could not expand variant into role: %d", int(r)), nil)
	}
	return int64(r), nil
}

// RoleClass labels the target of a role association in audit entries.
type RoleClass string

const (
	ClassMember    RoleClass = "MEMBER"
	ClassWorkgroup RoleClass = "WORKGROUP"
)

// Composition is a deduplicated set of roles. It is built fresh per principal
// and replaced, never mutated in place by callers.
type Composition struct {
	set map[Role]struct{}
}

// NewComposition builds a composition from the given roles, deduplicating.
func NewComposition(rs ...Role) Composition {
	c := Composition{set: make(map[Role]struct{}, len(rs))}
	for _, r := range rs {
		c.set[r] = struct{}{}
	}
	return c
}

// Has reports whether the composition contains the role.
func (c Composition) Has(r Role) bool {
	_, ok := c.set[r]
	return ok
}

// Intersects reports whether any role is shared between both compositions.
func (c Composition) Intersects(other Composition) bool {
	for r := range c.set {
		if other.Has(r) {
			return true
		}
	}
	return false
}

// Add returns the composition extended with the given roles.
func (c Composition) Add(rs ...Role) Composition {
	out := Composition{set: make(map[Role]struct{}, len(c.set)+len(rs))}
	for r := range c.set {
		out.set[r] = struct{}{}
	}
	for _, r := range rs {
		out.set[r] = struct{}{}
	}
	return out
}

// Len returns the number of distinct roles.
func (c Composition) Len() int { return len(c.set) }

// Slice returns the roles sorted by discriminant, for stable serialization.
func (c Composition) Slice() []Role {
	out := make([]Role, 0, len(c.set))
	for r := range c.set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON serializes the composition as a sorted array of role names.
func (c Composition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Slice())
}

func (c *Composition) UnmarshalJSON(data []byte) error {
	var list []Role
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = NewComposition(list...)
	return nil
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Tier is the organisation-wide setting that selects which policy classes are
// enforced.  Tiers are strictly ordered; 3 is the strictest.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// Tiers lists every valid tier in ascending order.
func Tiers() []Tier {
	return []Tier{Tier1, Tier2, Tier3}
}

// Valid reports whether t is 1, 2 or 3.
func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

func (t Tier) String() string {
	return strconv.Itoa(int(t))
}

// ParseTier parses "1", "2" or "3".
func ParseTier(s string) (Tier, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !Tier(n).Valid() {
		return 0, fmt.Errorf("invalid tier %q", s)
	}
	return Tier(n), nil
}

// PolicyState is the value of a permission matrix cell.
type PolicyState int

const (
	StateUnknown PolicyState = iota
	Allow
	Deny
	// Gated requires an active time-boxed grant.
	Gated
	// PerField computes visibility field by field.
	PerField
	// Scoped allows access only through a unit-specific assignment.
	Scoped
)

var stateNames = map[PolicyState]string{
	Allow:    "ALLOW",
	Deny:     "DENY",
	Gated:    "GATED",
	PerField: "PER_FIELD",
	Scoped:   "SCOPED",
}

// States lists every declared policy state.
func States() []PolicyState {
	return []PolicyState{Allow, Deny, Gated, PerField, Scoped}
}

func (s PolicyState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParsePolicyState parses the upper-case state name.
func ParsePolicyState(s string) (PolicyState, error) {
	for st, n := range stateNames {
		if strings.EqualFold(n, s) {
			return st, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown policy state %q", s)
}

// Restrictiveness orders states from most permissive (0) to DENY.
func (s PolicyState) Restrictiveness() int {
	switch s {
	case Allow:
		return 0
	case Scoped:
		return 1
	case PerField:
		return 2
	case Gated:
		return 3
	default:
		return 4
	}
}

// MarshalText implements encoding.TextMarshaler
func (s PolicyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *PolicyState) UnmarshalText(b []byte) error {
	v, err := ParsePolicyState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Action names an operation on a record, e.g. "individual.view".
type Action string

// FieldAccess is the per-field visibility, ordered HIDDEN < VIEW < EDIT.
type FieldAccess int

const (
	Hidden FieldAccess = iota
	View
	Edit
)

var accessNames = map[FieldAccess]string{
	Hidden: "HIDDEN",
	View:   "VIEW",
	Edit:   "EDIT",
}

func (a FieldAccess) String() string {
	if n, ok := accessNames[a]; ok {
		return n
	}
	return "HIDDEN"
}

// ParseFieldAccess parses HIDDEN, VIEW or EDIT.
func ParseFieldAccess(s string) (FieldAccess, error) {
	for a, n := range accessNames {
		if strings.EqualFold(n, s) {
			return a, nil
		}
	}
	return Hidden, fmt.Errorf("unknown field access %q", s)
}

// Min returns the stricter of a and b.
func (a FieldAccess) Min(b FieldAccess) FieldAccess {
	if b < a {
		return b
	}
	return a
}

// MarshalText implements encoding.TextMarshaler
func (a FieldAccess) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *FieldAccess) UnmarshalText(b []byte) error {
	v, err := ParseFieldAccess(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// FieldKey addresses one cell of the field access configuration.
type FieldKey struct {
	Field string
	Role  Role
}

// FieldConfig maps (field, role) to the administrator-configured access.
type FieldConfig map[FieldKey]FieldAccess

// Lookup returns the configured access and whether one was set.
func (c FieldConfig) Lookup(field string, role Role) (FieldAccess, bool) {
	a, ok := c[FieldKey{Field: field, Role: role}]
	return a, ok
}

// Clone returns an independent copy.
func (c FieldConfig) Clone() FieldConfig {
	out := make(FieldConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

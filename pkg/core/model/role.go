//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package model holds the value types shared by every stage of the access
// pipeline: roles and their unit assignments, organisation tiers, policy
// states, field visibility, grants, safety flags and consent scopes.
//
// Everything here is plain data.  Behaviour lives in the stage packages
// ([matrix], [tier], [fields], [grants], [safety], [consent]) so that each
// stage can be tested in isolation.
package model

import (
	"fmt"
	"strings"
)

// Role is one of a small, closed, ordered set.  A numerically higher role
// governs when a user reaches a target through several units.
type Role int

const (
	// NoRole means the user holds no assignment applicable to the target.
	NoRole Role = iota
	FrontDesk
	DirectService
	ProgramManager
	Executive
	Administrator
)

var roleNames = map[Role]string{
	NoRole:         "None",
	FrontDesk:      "FrontDesk",
	DirectService:  "DirectService",
	ProgramManager: "ProgramManager",
	Executive:      "Executive",
	Administrator:  "Administrator",
}

// Roles lists every assignable role, lowest first.
func Roles() []Role {
	return []Role{FrontDesk, DirectService, ProgramManager, Executive, Administrator}
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	return r >= FrontDesk && r <= Administrator
}

// ParseRole accepts the role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	for r, n := range roleNames {
		if r != NoRole && strings.EqualFold(n, s) {
			return r, nil
		}
	}
	return NoRole, fmt.Errorf("unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// UnitID identifies an organisational unit (a program).
type UnitID string

// Assignment binds a role to a unit.  An empty Unit makes the assignment
// organisation-wide.
type Assignment struct {
	Role Role   `json:"role" yaml:"role"`
	Unit UnitID `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// OrgWide reports whether the assignment applies to every unit.
func (a Assignment) OrgWide() bool {
	return a.Unit == ""
}

// Reach is the outcome of resolving a user's role against a target's units.
type Reach struct {
	// Role is the highest applicable role, or NoRole.
	Role Role
	// Units are the target units in which the user holds a unit-specific
	// assignment.  Organisation-wide assignments never add to Units.
	Units []UnitID
	// OrgWide is set when an organisation-wide assignment contributed.
	OrgWide bool
}

// Direct reports whether the user reaches the target through at least one
// unit-specific assignment.
func (r Reach) Direct() bool {
	return len(r.Units) > 0
}

// Includes reports whether unit is one of the units the user reaches the
// target through.
func (r Reach) Includes(unit UnitID) bool {
	for _, u := range r.Units {
		if u == unit {
			return true
		}
	}
	return false
}

// ResolveReach computes the effective role of a user for a target belonging to
// targetUnits: the highest role among assignments in any of those units, plus
// any organisation-wide assignment.
func ResolveReach(assignments []Assignment, targetUnits []UnitID) Reach {
	member := make(map[UnitID]bool, len(targetUnits))
	for _, u := range targetUnits {
		member[u] = true
	}

	var (
		reach Reach
		seen  = make(map[UnitID]bool)
	)
	for _, a := range assignments {
		if !a.Role.Valid() {
			continue
		}
		switch {
		case a.OrgWide():
			reach.OrgWide = true
		case member[a.Unit]:
			if !seen[a.Unit] {
				seen[a.Unit] = true
				reach.Units = append(reach.Units, a.Unit)
			}
		default:
			continue
		}
		if a.Role > reach.Role {
			reach.Role = a.Role
		}
	}

	return reach
}

// HoldsRoleIn reports whether any assignment is specifically in unit.
func HoldsRoleIn(assignments []Assignment, unit UnitID) bool {
	if unit == "" {
		return false
	}
	for _, a := range assignments {
		if a.Role.Valid() && a.Unit == unit {
			return true
		}
	}
	return false
}

// HighestRole returns the highest role across all assignments.
func HighestRole(assignments []Assignment) Role {
	best := NoRole
	for _, a := range assignments {
		if a.Role.Valid() && a.Role > best {
			best = a.Role
		}
	}
	return best
}

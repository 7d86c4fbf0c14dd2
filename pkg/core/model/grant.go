//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"fmt"
	"time"
)

// ScopeKind selects what a grant covers.
type ScopeKind string

const (
	ScopeProgram ScopeKind = "program"
	ScopeEntity  ScopeKind = "entity"
)

// GrantScope is either a whole program or a single entity.
type GrantScope struct {
	Kind ScopeKind `json:"kind" validate:"required,oneof=program entity"`
	ID   string    `json:"id" validate:"required"`
}

func (s GrantScope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// GrantStatus is derived from the clock; it is never stored.
type GrantStatus string

const (
	GrantActive  GrantStatus = "active"
	GrantExpired GrantStatus = "expired"
	GrantRevoked GrantStatus = "revoked"
)

// Grant is a justified, time-boxed authorization.  Grants are immutable once
// created except for RevokedAt, and they are never deleted.
type Grant struct {
	ID            string     `json:"id"`
	RequesterID   string     `json:"requester_id"`
	Scope         GrantScope `json:"scope"`
	Action        Action     `json:"action,omitempty"`
	ReasonCode    string     `json:"reason_code"`
	Justification string     `json:"justification"`
	GrantedAt     time.Time  `json:"granted_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

// Status evaluates the grant at now.  Expiry needs no transition: a grant is
// active strictly before ExpiresAt.
func (g *Grant) Status(now time.Time) GrantStatus {
	if g.RevokedAt != nil {
		return GrantRevoked
	}
	if !now.Before(g.ExpiresAt) {
		return GrantExpired
	}
	return GrantActive
}

// ActiveAt is shorthand for Status(now) == GrantActive.
func (g *Grant) ActiveAt(now time.Time) bool {
	return g.Status(now) == GrantActive
}

// ReasonCode is one entry of the organisation's justification reason list.
type ReasonCode struct {
	Code   string `json:"code" yaml:"code" mapstructure:"code"`
	Label  string `json:"label" yaml:"label" mapstructure:"label"`
	Active bool   `json:"active" yaml:"active" mapstructure:"active"`
}

// OrgSettings is the organisation configuration passed into every
// evaluation.
type OrgSettings struct {
	Tier             Tier         `json:"tier"`
	DefaultGrantDays int          `json:"default_grant_days"`
	MaxGrantDays     int          `json:"max_grant_days"`
	Reasons          []ReasonCode `json:"reasons"`
}

// Defaults for OrgSettings.
const (
	DefaultGrantDays = 7
	DefaultMaxDays   = 30
)

// ActiveReason reports whether code is in the active reason list.
func (o OrgSettings) ActiveReason(code string) bool {
	for _, r := range o.Reasons {
		if r.Active && r.Code == code {
			return true
		}
	}
	return false
}

// ActiveReasons returns the reasons currently offered to requesters.
func (o OrgSettings) ActiveReasons() []ReasonCode {
	out := make([]ReasonCode, 0, len(o.Reasons))
	for _, r := range o.Reasons {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// WithDefaults fills unset durations.
func (o OrgSettings) WithDefaults() OrgSettings {
	if o.DefaultGrantDays <= 0 {
		o.DefaultGrantDays = DefaultGrantDays
	}
	if o.MaxGrantDays <= 0 {
		o.MaxGrantDays = DefaultMaxDays
	}
	if !o.Tier.Valid() {
		o.Tier = Tier3
	}
	return o
}

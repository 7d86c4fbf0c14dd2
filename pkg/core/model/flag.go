//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import "time"

// SafetyFlag marks an individual whose sensitive fields are hidden from
// restricted roles.
// ID identifies one setting of the flag; a flag cleared and set again gets
// a new ID.
type SafetyFlag struct {
	ID       string    `json:"id"`
	EntityID string    `json:"entity_id"`
	Active   bool      `json:"active"`
	SetBy    string    `json:"set_by"`
	SetAt    time.Time `json:"set_at"`
}

// RemovalStatus is the state of a flag removal request.
type RemovalStatus string

const (
	RemovalPending  RemovalStatus = "pending"
	RemovalApproved RemovalStatus = "approved"
	RemovalRejected RemovalStatus = "rejected"

	// RemovalSuperseded closes a pending request whose flag was cleared by
	// another approved request.
	RemovalSuperseded RemovalStatus = "superseded"
)

// RemovalRequest asks a second actor to clear a safety flag.  It is bound to
// the flag instance it was filed against through FlagID.
type RemovalRequest struct {
	ID          string        `json:"id"`
	EntityID    string        `json:"entity_id"`
	FlagID      string        `json:"flag_id"`
	RequesterID string        `json:"requester_id"`
	Reason      string        `json:"reason"`
	Status      RemovalStatus `json:"status"`
	ReviewerID  string        `json:"reviewer_id,omitempty"`
	ReviewNote  string        `json:"review_note,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	ReviewedAt  *time.Time    `json:"reviewed_at,omitempty"`
}

// ConsentScope is the cross-unit sharing setting of a program.
type ConsentScope struct {
	Unit                    UnitID `json:"unit" yaml:"unit"`
	CrossUnitSharingEnabled bool   `json:"cross_unit_sharing_enabled" yaml:"crossUnitSharing"`
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an [AuditEvent].
type Kind string

// Event kinds.  A grant's authorization and each access made under it are
// separate kinds so both can be reconstructed independently.
const (
	KindDecision         Kind = "decision"
	KindGrantAuthorized  Kind = "grant.authorized"
	KindGrantAccess      Kind = "grant.access"
	KindGrantRevoked     Kind = "grant.revoked"
	KindFlagSet          Kind = "flag.set"
	KindFlagRemovalAsked Kind = "flag.removal_requested"
	KindFlagReviewed     Kind = "flag.removal_reviewed"
	KindFieldsChanged    Kind = "fields.changed"
	KindTierChanged      Kind = "tier.changed"
	KindReasonsChanged   Kind = "reasons.changed"
)

// AuditEvent is an append-only record of a consequential decision or state
// change.  Streams must treat it as immutable.
type AuditEvent struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Target    string            `json:"target"`
	Decision  string            `json:"decision,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	GrantID   string            `json:"grant_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent stamps a new event with a unique id and time.
func NewEvent(kind Kind, actor, action, target string, at time.Time) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Actor:     actor,
		Action:    action,
		Target:    target,
		Timestamp: at.UTC(),
	}
}

// With adds a metadata entry and returns the event.
func (e *AuditEvent) With(key, value string) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

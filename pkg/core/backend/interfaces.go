//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package backend defines the interfaces for the engine's storage backends.
//
// A backend supplies the facts the engine consumes from its environment
// (role assignments, entity membership, consent scopes) and persists the
// engine's own transactional state (grants, safety flags, removal requests,
// field configuration and the organisation settings).
//
// # Built-in Backends
//
// The following backend implementations are available:
//   - [memory]: In-process maps, useful for testing and single-node use
//   - [sql]: PostgreSQL through gorm
//   - [local]: A read-only [Directory] loaded from a YAML file, combined
//     with a memory store for engine state
//
// # Implementing a Custom Backend
//
//  1. Implement the [Factory] interface to create backend instances
//  2. Implement the [Service] interface
//  3. Use the backend with [options.WithBackend] when creating the engine
//
// Example:
//
//	type MyFactory struct { /* ... */ }
//
//	func (f *MyFactory) NewBackend() (backend.Service, error) {
//	    return &MyBackend{}, nil
//	}
//
//	pe, _ := core.NewAccessEngine(options.WithBackend(&MyFactory{}))
package backend

import (
	"context"
	"time"

	"github.com/caseaccess/accessengine/pkg/core/model"
)

// Factory creates backend [Service] instances.
//
// Factory construction happens early, allowing Viper defaults to be set.
// Configuration is fully loaded before NewBackend is called, so expensive
// work such as opening database connections belongs in NewBackend.
type Factory interface {
	NewBackend() (Service, error)
}

// Directory answers who holds which role where, and where an entity lives.
// It is owned by the surrounding application; the engine only reads it.
type Directory interface {
	// Assignments returns every (role, unit) pair held by the user.  An
	// unknown user has no assignments and is not an error.
	Assignments(ctx context.Context, userID string) ([]model.Assignment, error)

	// EntityUnits returns the units an entity is enrolled in.  An entity
	// that cannot be found is an error.
	EntityUnits(ctx context.Context, entityID string) ([]model.UnitID, error)

	// ConsentScope returns the sharing setting of a unit.  An unknown unit
	// is an error.
	ConsentScope(ctx context.Context, unit model.UnitID) (model.ConsentScope, error)
}

// GrantFilter narrows [GrantStore.ListGrants].  Empty fields match anything.
type GrantFilter struct {
	RequesterID string
	ScopeKind   model.ScopeKind
	ScopeID     string
}

// GrantStore persists access grants.  Grants are never deleted.
type GrantStore interface {
	InsertGrant(ctx context.Context, g *model.Grant) error
	GetGrant(ctx context.Context, id string) (*model.Grant, error)
	ListGrants(ctx context.Context, filter GrantFilter) ([]*model.Grant, error)

	// RevokeGrant sets revoked_at when it is still unset and reports
	// whether it did.  No other column is ever updated.
	RevokeGrant(ctx context.Context, id string, at time.Time) (bool, error)
}

// FlagStore persists safety flags and the two-actor removal workflow.
type FlagStore interface {
	// GetFlag returns the flag of an entity.  An entity that was never
	// flagged yields an inactive flag, not an error.
	GetFlag(ctx context.Context, entityID string) (model.SafetyFlag, error)
	PutFlag(ctx context.Context, flag model.SafetyFlag) error

	// InsertRemoval fails with ErrInvalidRequest while another request for
	// the same flag is pending.
	InsertRemoval(ctx context.Context, r *model.RemovalRequest) error
	GetRemoval(ctx context.Context, id string) (*model.RemovalRequest, error)
	PendingRemovals(ctx context.Context) ([]*model.RemovalRequest, error)

	// ResolveRemoval moves a pending request to approved or rejected.  It
	// fails with ErrAlreadyResolved when the request is no longer pending
	// and with ErrSelfReview when the reviewer is the requester.  Approving
	// clears the entity's flag atomically with the status change, but only
	// while the flag is the one the request was filed against; otherwise it
	// fails with ErrAlreadyResolved.  Other pending requests for the entity
	// are closed as superseded.
	ResolveRemoval(ctx context.Context, r *model.RemovalRequest) error
}

// FieldConfigStore persists the administrator field configuration.
type FieldConfigStore interface {
	FieldConfig(ctx context.Context) (model.FieldConfig, error)
	SetFieldAccess(ctx context.Context, key model.FieldKey, access model.FieldAccess) error
	ReplaceFieldConfig(ctx context.Context, cfg model.FieldConfig) error
}

// SettingsStore persists the organisation settings.
type SettingsStore interface {
	// Settings returns the stored settings, or ErrNotFound when none have
	// been saved.
	Settings(ctx context.Context) (model.OrgSettings, error)
	SaveSettings(ctx context.Context, s model.OrgSettings) error
}

// Service is the complete backend used by the engine.
//
// All methods are safe for concurrent use by multiple goroutines.
type Service interface {
	Directory
	GrantStore
	FlagStore
	FieldConfigStore
	SettingsStore
}

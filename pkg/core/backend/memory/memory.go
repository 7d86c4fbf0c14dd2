//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package memory is an in-process [backend.Service].  Every read returns a
// deep copy so callers can never mutate stored state behind the store's
// back.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/mohae/deepcopy"
)

// Factory hands out one shared Store.
type Factory struct {
	store *Store
}

// NewFactory creates a Factory over a fresh Store.
func NewFactory() *Factory {
	return &Factory{store: New()}
}

// NewFactoryWith creates a Factory over an existing, possibly pre-seeded,
// Store.
func NewFactoryWith(s *Store) *Factory {
	return &Factory{store: s}
}

// NewBackend returns the shared Store.
func (f *Factory) NewBackend() (backend.Service, error) {
	return f.store, nil
}

// Store holds all state in maps guarded by a single lock.
type Store struct {
	mu sync.RWMutex

	assignments map[string][]model.Assignment
	entities    map[string][]model.UnitID
	scopes      map[model.UnitID]model.ConsentScope

	grants   map[string]*model.Grant
	flags    map[string]model.SafetyFlag
	removals map[string]*model.RemovalRequest
	fields   model.FieldConfig
	settings *model.OrgSettings
}

var _ backend.Service = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		assignments: make(map[string][]model.Assignment),
		entities:    make(map[string][]model.UnitID),
		scopes:      make(map[model.UnitID]model.ConsentScope),
		grants:      make(map[string]*model.Grant),
		flags:       make(map[string]model.SafetyFlag),
		removals:    make(map[string]*model.RemovalRequest),
		fields:      make(model.FieldConfig),
	}
}

// Assign gives a user a role in a unit.  An empty unit is organisation-wide.
func (s *Store) Assign(userID string, role model.Role, unit model.UnitID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[userID] = append(s.assignments[userID], model.Assignment{Role: role, Unit: unit})
}

// Enroll records the units an entity belongs to.
func (s *Store) Enroll(entityID string, units ...model.UnitID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entityID] = append([]model.UnitID(nil), units...)
}

// SetConsentScope records the sharing setting of a unit.
func (s *Store) SetConsentScope(scope model.ConsentScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope.Unit] = scope
}

// Assignments implements [backend.Directory].
func (s *Store) Assignments(_ context.Context, userID string) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Assignment(nil), s.assignments[userID]...), nil
}

// EntityUnits implements [backend.Directory].
func (s *Store) EntityUnits(_ context.Context, entityID string) ([]model.UnitID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	units, ok := s.entities[entityID]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "unknown entity %q", entityID)
	}
	return append([]model.UnitID(nil), units...), nil
}

// ConsentScope implements [backend.Directory].
func (s *Store) ConsentScope(_ context.Context, unit model.UnitID) (model.ConsentScope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.scopes[unit]
	if !ok {
		return model.ConsentScope{}, common.NewError(common.CodeNotFound, "unknown unit %q", unit)
	}
	return scope, nil
}

// InsertGrant implements [backend.GrantStore].
func (s *Store) InsertGrant(_ context.Context, g *model.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.ID]; ok {
		return common.NewError(common.CodeInvalidRequest, "duplicate grant id %s", g.ID)
	}
	s.grants[g.ID] = deepcopy.Copy(g).(*model.Grant)
	return nil
}

// GetGrant implements [backend.GrantStore].
func (s *Store) GetGrant(_ context.Context, id string) (*model.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "unknown grant %s", id)
	}
	return deepcopy.Copy(g).(*model.Grant), nil
}

// ListGrants implements [backend.GrantStore].  Grants are returned oldest
// first.
func (s *Store) ListGrants(_ context.Context, filter backend.GrantFilter) ([]*model.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Grant
	for _, g := range s.grants {
		if filter.RequesterID != "" && g.RequesterID != filter.RequesterID {
			continue
		}
		if filter.ScopeKind != "" && g.Scope.Kind != filter.ScopeKind {
			continue
		}
		if filter.ScopeID != "" && g.Scope.ID != filter.ScopeID {
			continue
		}
		out = append(out, deepcopy.Copy(g).(*model.Grant))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].GrantedAt.Before(out[j].GrantedAt)
	})
	return out, nil
}

// RevokeGrant implements [backend.GrantStore].
func (s *Store) RevokeGrant(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return false, common.NewError(common.CodeNotFound, "unknown grant %s", id)
	}
	if g.RevokedAt != nil {
		return false, nil
	}
	g.RevokedAt = &at
	return true, nil
}

// GetFlag implements [backend.FlagStore].
func (s *Store) GetFlag(_ context.Context, entityID string) (model.SafetyFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[entityID]
	if !ok {
		return model.SafetyFlag{EntityID: entityID}, nil
	}
	return f, nil
}

// PutFlag implements [backend.FlagStore].
func (s *Store) PutFlag(_ context.Context, flag model.SafetyFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[flag.EntityID] = flag
	return nil
}

// InsertRemoval implements [backend.FlagStore].
func (s *Store) InsertRemoval(_ context.Context, r *model.RemovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.removals {
		if other.Status == model.RemovalPending && other.EntityID == r.EntityID && other.FlagID == r.FlagID {
			return common.NewError(common.CodeInvalidRequest, "request %s is already pending for this flag", other.ID)
		}
	}
	s.removals[r.ID] = deepcopy.Copy(r).(*model.RemovalRequest)
	return nil
}

// GetRemoval implements [backend.FlagStore].
func (s *Store) GetRemoval(_ context.Context, id string) (*model.RemovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.removals[id]
	if !ok {
		return nil, common.NewError(common.CodeNotFound, "unknown removal request %s", id)
	}
	return deepcopy.Copy(r).(*model.RemovalRequest), nil
}

// PendingRemovals implements [backend.FlagStore].
func (s *Store) PendingRemovals(_ context.Context) ([]*model.RemovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.RemovalRequest
	for _, r := range s.removals {
		if r.Status == model.RemovalPending {
			out = append(out, deepcopy.Copy(r).(*model.RemovalRequest))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

// ResolveRemoval implements [backend.FlagStore].  The status check and the
// update happen under one lock, so of two concurrent reviews exactly one
// succeeds.
func (s *Store) ResolveRemoval(_ context.Context, r *model.RemovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.removals[r.ID]
	if !ok {
		return common.NewError(common.CodeNotFound, "unknown removal request %s", r.ID)
	}
	if stored.RequesterID == r.ReviewerID {
		return common.NewError(common.CodeSelfReview, "requester cannot review their own request")
	}
	if stored.Status != model.RemovalPending {
		return common.NewError(common.CodeAlreadyResolved, "request %s is %s", r.ID, stored.Status)
	}

	f := s.flags[stored.EntityID]
	if r.Status == model.RemovalApproved && (!f.Active || f.ID != stored.FlagID) {
		return common.NewError(common.CodeAlreadyResolved, "the flag request %s was filed against is no longer set", r.ID)
	}

	var at *time.Time
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		at = &t
	}
	stored.Status = r.Status
	stored.ReviewerID = r.ReviewerID
	stored.ReviewNote = r.ReviewNote
	stored.ReviewedAt = at

	if r.Status == model.RemovalApproved {
		f.Active = false
		s.flags[stored.EntityID] = f

		for _, other := range s.removals {
			if other.Status == model.RemovalPending && other.EntityID == stored.EntityID {
				other.Status = model.RemovalSuperseded
				other.ReviewNote = supersededNote(stored.ID)
				other.ReviewedAt = at
			}
		}
	}
	return nil
}

func supersededNote(id string) string {
	return "superseded by " + id
}

// FieldConfig implements [backend.FieldConfigStore].
func (s *Store) FieldConfig(_ context.Context) (model.FieldConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.Clone(), nil
}

// SetFieldAccess implements [backend.FieldConfigStore].
func (s *Store) SetFieldAccess(_ context.Context, key model.FieldKey, access model.FieldAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[key] = access
	return nil
}

// ReplaceFieldConfig implements [backend.FieldConfigStore].
func (s *Store) ReplaceFieldConfig(_ context.Context, cfg model.FieldConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = cfg.Clone()
	return nil
}

// Settings implements [backend.SettingsStore].
func (s *Store) Settings(_ context.Context) (model.OrgSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return model.OrgSettings{}, common.NewError(common.CodeNotFound, "no organisation settings stored")
	}
	return deepcopy.Copy(*s.settings).(model.OrgSettings), nil
}

// SaveSettings implements [backend.SettingsStore].
func (s *Store) SaveSettings(_ context.Context, settings model.OrgSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := deepcopy.Copy(settings).(model.OrgSettings)
	s.settings = &c
	return nil
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package grants issues, finds and revokes time-boxed access grants.
//
// A grant moves through None, Pending ([Justification]), Active, and then
// Expired or Revoked.  Expiry is never a stored transition: every read
// compares the clock against expires_at.  Grants are never deleted, so they
// stay available for audit after the organisation lowers its tier.
package grants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/clock"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("accessengine.grants")

const agent = "grants"

const day = 24 * time.Hour

// ListAllAction is the matrix action that governs the organisation-wide
// grant view.
const ListAllAction model.Action = "grant.list_all"

// Request is a submitted justification form.  Submission is authorization:
// there is no separate approval step.
type Request struct {
	RequesterID   string           `json:"requester_id" validate:"required"`
	Scope         model.GrantScope `json:"scope"`
	Action        model.Action     `json:"action"`
	ReasonCode    string           `json:"reason_code" validate:"required"`
	Justification string           `json:"justification" validate:"required"`
	// Days is the requested duration.  Zero selects the organisation
	// default.
	Days int `json:"days"`
}

// Target is what a grant must cover.
type Target struct {
	EntityID string
	// Reach carries the units the user reaches the entity through.
	Reach  model.Reach
	Action model.Action
}

// Filter selects grants for [Manager.List].
type Filter struct {
	ViewerID string
	// ViewerRole is the viewer's highest role, checked against
	// [ListAllAction] for the organisation-wide view.
	ViewerRole model.Role
	// OrgWide asks for every requester's grants.
	OrgWide   bool
	ScopeKind model.ScopeKind
	ScopeID   string
}

// Entry is a grant with its status at listing time.
type Entry struct {
	*model.Grant
	Status model.GrantStatus `json:"status"`
}

// Authority decides administrative actions.  The permission matrix is one.
type Authority interface {
	Permits(reach model.Reach, action model.Action, t model.Tier) bool
}

// Manager owns the grant lifecycle.
type Manager struct {
	store     backend.GrantStore
	audit     accesslog.Stream
	clock     clock.Clock
	cache     Cache
	authority Authority
	validate  *validator.Validate
}

// Option customizes a Manager.
type Option func(*Manager)

// WithCache puts an active-grant cache in front of the store.
func WithCache(c Cache) Option {
	return func(m *Manager) {
		m.cache = c
	}
}

// WithAuthority decides who may list every grant.  Without one the
// organisation-wide view is refused.
func WithAuthority(a Authority) Option {
	return func(m *Manager) {
		m.authority = a
	}
}

// NewManager creates a Manager.
func NewManager(store backend.GrantStore, audit accesslog.Stream, clk clock.Clock, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		audit:    audit,
		clock:    clk,
		cache:    NoCache(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache returns the cache in use.
func (m *Manager) Cache() Cache {
	return m.cache
}

func invalidRequest(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.NewError(common.CodeInvalidRequest, "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return common.NewError(common.CodeInvalidRequest, "%s", strings.Join(msgs, ", "))
}

// Create validates a request and stores an active grant.
//
// It fails with ErrInvalidDuration when the duration is below one day or
// above the organisation maximum, and with ErrInvalidReason when the reason
// is not in the active list at submission time.
func (m *Manager) Create(ctx context.Context, settings model.OrgSettings, req Request) (*model.Grant, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}
	settings = settings.WithDefaults()

	days := req.Days
	if days == 0 {
		days = settings.DefaultGrantDays
	}
	if days < 1 || days > settings.MaxGrantDays {
		return nil, common.NewError(common.CodeInvalidDuration, "duration must be between 1 and %d days", settings.MaxGrantDays)
	}
	if !settings.ActiveReason(req.ReasonCode) {
		return nil, common.NewError(common.CodeInvalidReason, "reason %q is not available", req.ReasonCode)
	}

	now := m.clock.Now().UTC()
	g := &model.Grant{
		ID:            uuid.NewString(),
		RequesterID:   req.RequesterID,
		Scope:         req.Scope,
		Action:        req.Action,
		ReasonCode:    req.ReasonCode,
		Justification: req.Justification,
		GrantedAt:     now,
		ExpiresAt:     now.Add(time.Duration(days) * day),
	}
	if err := m.store.InsertGrant(ctx, g); err != nil {
		return nil, errors.Wrap(err, "storing grant")
	}
	m.cache.Invalidate(ctx, g.RequesterID)

	e := accesslog.NewEvent(accesslog.KindGrantAuthorized, g.RequesterID, string(g.Action), g.Scope.String(), now)
	e.GrantID = g.ID
	e.Reason = g.ReasonCode
	e.Decision = model.Allow.String()
	m.send(e.With("expires_at", g.ExpiresAt.Format(time.RFC3339)).With("days", fmt.Sprint(days)))

	logger.Debugf(g.RequesterID, "Create", "grant %s on %s for %d days", g.ID, g.Scope, days)
	return g, nil
}

// Covers reports whether g, active or not, covers target.  An entity grant
// covers exactly its entity.  A program grant covers the target only when
// the user reaches the target through that program.
func Covers(g *model.Grant, target Target) bool {
	if g.Action != "" && g.Action != target.Action {
		return false
	}
	switch g.Scope.Kind {
	case model.ScopeEntity:
		return g.Scope.ID == target.EntityID
	case model.ScopeProgram:
		return target.Reach.Includes(model.UnitID(g.Scope.ID))
	default:
		return false
	}
}

// FindActive returns the active grant of userID covering target, or nil.
// When several cover it, the one expiring last wins.  A cache hit is only
// trusted for a positive answer: a miss in the cached list is asked of the
// store, since another instance sharing the store may have created a grant.
func (m *Manager) FindActive(ctx context.Context, userID string, target Target) (*model.Grant, error) {
	if cached, ok := m.cache.Get(ctx, userID); ok {
		if g := m.pick(cached, target); g != nil {
			// revocation may have happened elsewhere; confirm against the store
			current, err := m.store.GetGrant(ctx, g.ID)
			if err == nil && current.ActiveAt(m.clock.Now()) {
				return current, nil
			}
		}
		m.cache.Invalidate(ctx, userID)
	}

	all, err := m.store.ListGrants(ctx, backend.GrantFilter{RequesterID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "listing grants")
	}

	now := m.clock.Now()
	active := make([]*model.Grant, 0, len(all))
	for _, g := range all {
		if g.ActiveAt(now) {
			active = append(active, g)
		}
	}
	m.cache.Put(ctx, userID, active)

	return m.pick(active, target), nil
}

func (m *Manager) pick(candidates []*model.Grant, target Target) *model.Grant {
	now := m.clock.Now()
	var best *model.Grant
	for _, g := range candidates {
		if !g.ActiveAt(now) || !Covers(g, target) {
			continue
		}
		if best == nil || g.ExpiresAt.After(best.ExpiresAt) {
			best = g
		}
	}
	return best
}

// Revoke ends a grant early.  Only its requester may revoke it; revoking an
// already revoked grant is a no-op.
func (m *Manager) Revoke(ctx context.Context, grantID, actorID string) error {
	g, err := m.store.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if g.RequesterID != actorID {
		return common.NewError(common.CodeNotOwner, "only the requester may revoke a grant")
	}

	now := m.clock.Now().UTC()
	changed, err := m.store.RevokeGrant(ctx, grantID, now)
	if err != nil {
		return errors.Wrap(err, "revoking grant")
	}
	m.cache.Invalidate(ctx, g.RequesterID)
	if !changed {
		return nil
	}

	e := accesslog.NewEvent(accesslog.KindGrantRevoked, actorID, string(g.Action), g.Scope.String(), now)
	e.GrantID = g.ID
	m.send(e)
	return nil
}

// List returns grants with their current status.  Without OrgWide only the
// viewer's own grants are listed.  The organisation-wide view exists at tier
// 3 only, for roles the authority permits [ListAllAction].  It has no target
// entity, so a SCOPED cell never permits it.
func (m *Manager) List(ctx context.Context, settings model.OrgSettings, f Filter) ([]Entry, error) {
	filter := backend.GrantFilter{ScopeKind: f.ScopeKind, ScopeID: f.ScopeID}
	if f.OrgWide {
		t := settings.WithDefaults().Tier
		if t < model.Tier3 {
			return nil, common.NewError(common.CodeForbidden, "organisation-wide grant listing requires tier 3")
		}
		if m.authority == nil || !m.authority.Permits(model.Reach{Role: f.ViewerRole, OrgWide: true}, ListAllAction, t) {
			return nil, common.NewError(common.CodeForbidden, "organisation-wide grant listing is not permitted for %s", f.ViewerRole)
		}
	} else {
		if f.ViewerID == "" {
			return nil, common.NewError(common.CodeInvalidRequest, "viewer is required")
		}
		filter.RequesterID = f.ViewerID
	}

	grants, err := m.store.ListGrants(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "listing grants")
	}

	now := m.clock.Now()
	out := make([]Entry, 0, len(grants))
	for _, g := range grants {
		out = append(out, Entry{Grant: g, Status: g.Status(now)})
	}
	return out, nil
}

// RecordAccess writes the audit event for one read made under g.  It is
// distinct from the authorization event written by Create.
func (m *Manager) RecordAccess(_ context.Context, g *model.Grant, userID string, target Target) {
	e := accesslog.NewEvent(accesslog.KindGrantAccess, userID, string(target.Action), target.EntityID, m.clock.Now())
	e.GrantID = g.ID
	e.Reason = g.ReasonCode
	e.Decision = model.Allow.String()
	m.send(e.With("scope", g.Scope.String()))
}

func (m *Manager) send(e *accesslog.AuditEvent) {
	if err := m.audit.Send(e); err != nil {
		logger.Errorf(e.Actor, "send", "audit send failed for %s: %v", e.Kind, err)
	}
}

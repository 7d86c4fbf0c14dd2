//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"
	"strconv"

	"github.com/caseaccess/accessengine/internal/core/metrics"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/tier"
	"github.com/pkg/errors"
)

const (
	actionFieldsConfigure model.Action = "fields.configure"
	actionTierConfigure   model.Action = "tier.configure"
)

// highestRole is the role of a user for organisation-level operations that
// have no target entity.
func (e *AccessEngine) highestRole(ctx context.Context, userID string) (model.Role, error) {
	assignments, err := e.backend.Assignments(ctx, userID)
	if err != nil {
		metrics.FailClosed(metrics.StageDirectory)
		return model.NoRole, errors.Wrap(err, "loading assignments")
	}
	return model.HighestRole(assignments), nil
}

// authorize requires that actor's highest role is allowed action outright at
// the given tier.
func (e *AccessEngine) authorize(ctx context.Context, actor string, action model.Action, t model.Tier) error {
	role, err := e.highestRole(ctx, actor)
	if err != nil {
		return common.NewError(common.CodeForbidden, "%s: role undeterminable", action)
	}
	if role == model.NoRole {
		return common.NewError(common.CodeForbidden, "%s: no role", action)
	}
	base, err := e.matrix.BaseState(role, action)
	if err != nil {
		return err
	}
	if tier.EffectiveState(base, t) != model.Allow {
		return common.NewError(common.CodeForbidden, "%s not permitted for %s", action, role)
	}
	return nil
}

// CreateGrant authorizes a submitted justification.
func (e *AccessEngine) CreateGrant(ctx context.Context, org model.OrgSettings, req grants.Request) (*model.Grant, error) {
	if req.Action != "" && !e.matrix.Declared(req.Action) {
		return nil, common.NewError(common.CodeInvalidRequest, "undeclared action %q", req.Action)
	}
	g, err := e.grants.Create(ctx, e.settingsFor(ctx, org), req)
	if err != nil {
		return nil, err
	}
	metrics.GrantCreated()
	return g, nil
}

// RevokeGrant revokes a grant owned by actor.
func (e *AccessEngine) RevokeGrant(ctx context.Context, grantID, actor string) error {
	return e.grants.Revoke(ctx, grantID, actor)
}

// ListGrants lists the viewer's own grants, or every grant when orgWide is
// set and the grant.list_all row of the matrix permits the viewer.
func (e *AccessEngine) ListGrants(ctx context.Context, org model.OrgSettings, viewer string, orgWide bool) ([]grants.Entry, error) {
	f := grants.Filter{ViewerID: viewer, OrgWide: orgWide}
	if orgWide {
		role, err := e.highestRole(ctx, viewer)
		if err != nil {
			return nil, common.NewError(common.CodeForbidden, "viewer role undeterminable")
		}
		f.ViewerRole = role
	}
	return e.grants.List(ctx, e.settingsFor(ctx, org), f)
}

// SetFlag places a safety flag on an entity.
func (e *AccessEngine) SetFlag(ctx context.Context, entityID, actor string) (model.SafetyFlag, error) {
	return e.safety.Set(ctx, entityID, actor)
}

// RequestFlagRemoval opens a removal request that a second actor must
// review.
func (e *AccessEngine) RequestFlagRemoval(ctx context.Context, entityID, requester, reason string) (*model.RemovalRequest, error) {
	return e.safety.RequestRemoval(ctx, entityID, requester, reason)
}

// ReviewFlagRemoval approves or rejects a pending removal request.
func (e *AccessEngine) ReviewFlagRemoval(ctx context.Context, requestID, reviewer string, approve bool, note string) (*model.RemovalRequest, error) {
	return e.safety.Review(ctx, requestID, reviewer, approve, note)
}

// PendingRemovals lists removal requests awaiting review.
func (e *AccessEngine) PendingRemovals(ctx context.Context) ([]*model.RemovalRequest, error) {
	return e.safety.Pending(ctx)
}

// FlagStatus returns the stored flag of an entity.
func (e *AccessEngine) FlagStatus(ctx context.Context, entityID string) (model.SafetyFlag, error) {
	return e.safety.Flag(ctx, entityID)
}

// FieldConfig returns the administrator field configuration.
func (e *AccessEngine) FieldConfig(ctx context.Context) (model.FieldConfig, error) {
	return e.fields.Config(ctx)
}

// SetFieldAccess changes one cell of the field configuration.
func (e *AccessEngine) SetFieldAccess(ctx context.Context, org model.OrgSettings, actor string, key model.FieldKey, access model.FieldAccess) error {
	settings := e.settingsFor(ctx, org)
	if err := e.authorize(ctx, actor, actionFieldsConfigure, settings.Tier); err != nil {
		return err
	}
	return e.fields.SetAccess(ctx, actor, settings.Tier, key, access)
}

// ResetFieldConfig restores the defaults of the given tier.
func (e *AccessEngine) ResetFieldConfig(ctx context.Context, org model.OrgSettings, actor string, t model.Tier) error {
	settings := e.settingsFor(ctx, org)
	if !t.Valid() {
		t = settings.Tier
	}
	if err := e.authorize(ctx, actor, actionFieldsConfigure, settings.Tier); err != nil {
		return err
	}
	return e.fields.ResetToDefaults(ctx, actor, t)
}

// RegisterCustomField adds an organisation-specific field.
func (e *AccessEngine) RegisterCustomField(ctx context.Context, org model.OrgSettings, actor, name string, sensitive bool) error {
	settings := e.settingsFor(ctx, org)
	if err := e.authorize(ctx, actor, actionFieldsConfigure, settings.Tier); err != nil {
		return err
	}
	return e.fields.RegisterCustomField(ctx, actor, name, sensitive)
}

// SetTier stores a new organisation tier.  Grants, flags and the field
// configuration are left untouched so that raising the tier again restores
// the previous enforcement.
func (e *AccessEngine) SetTier(ctx context.Context, actor string, t model.Tier) (model.OrgSettings, error) {
	if !t.Valid() {
		return model.OrgSettings{}, common.NewError(common.CodeInvalidRequest, "invalid tier %d", int(t))
	}
	current, err := e.Settings(ctx)
	if err != nil {
		return model.OrgSettings{}, err
	}
	if err := e.authorize(ctx, actor, actionTierConfigure, current.Tier); err != nil {
		return model.OrgSettings{}, err
	}

	from := current.Tier
	current.Tier = t
	if err := e.backend.SaveSettings(ctx, current); err != nil {
		return model.OrgSettings{}, errors.Wrap(err, "saving settings")
	}

	e.send(accesslog.NewEvent(accesslog.KindTierChanged, actor, string(actionTierConfigure), "org", e.clock.Now()).
		With("from", from.String()).
		With("to", t.String()))
	logger.Infof(actor, "SetTier", "tier changed from %s to %s", from, t)
	return current, nil
}

// SetReasons replaces the justification reason list.  Retired reasons stay
// in the list as inactive so that existing grants keep their label.
func (e *AccessEngine) SetReasons(ctx context.Context, actor string, reasons []model.ReasonCode) (model.OrgSettings, error) {
	seen := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		if r.Code == "" || seen[r.Code] {
			return model.OrgSettings{}, common.NewError(common.CodeInvalidRequest, "reason codes must be unique and non-empty")
		}
		seen[r.Code] = true
	}

	current, err := e.Settings(ctx)
	if err != nil {
		return model.OrgSettings{}, err
	}
	if err := e.authorize(ctx, actor, actionTierConfigure, current.Tier); err != nil {
		return model.OrgSettings{}, err
	}

	current.Reasons = reasons
	if err := e.backend.SaveSettings(ctx, current); err != nil {
		return model.OrgSettings{}, errors.Wrap(err, "saving settings")
	}
	e.send(accesslog.NewEvent(accesslog.KindReasonsChanged, actor, string(actionTierConfigure), "org", e.clock.Now()).
		With("reasons", strconv.Itoa(len(reasons))))
	logger.Infof(actor, "SetReasons", "%d justification reasons stored", len(reasons))
	return current, nil
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"
	"sync"
	"time"

	"github.com/caseaccess/accessengine/internal/core/metrics"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/consent"
	"github.com/caseaccess/accessengine/pkg/core/fields"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/lookup"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/options"
	"github.com/caseaccess/accessengine/pkg/core/tier"
	"github.com/caseaccess/accessengine/pkg/core/types"
)

// facts are the environment lookups one evaluation depends on.
type facts struct {
	assignments lookup.Result[[]model.Assignment]
	units       lookup.Result[[]model.UnitID]
	flag        lookup.Result[bool]
}

// gather runs the independent lookups concurrently.  Each result carries its
// own failure so the caller decides how to fail closed.
func (e *AccessEngine) gather(ctx context.Context, userID, entityID string) *facts {
	var (
		f  facts
		wg sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		f.assignments = lookup.Of(e.backend.Assignments(ctx, userID))
	}()
	go func() {
		defer wg.Done()
		f.units = lookup.Of(e.backend.EntityUnits(ctx, entityID))
	}()
	go func() {
		defer wg.Done()
		f.flag = e.safety.Status(ctx, entityID)
	}()
	wg.Wait()

	return &f
}

func validRequest(req *types.Request) error {
	switch {
	case req == nil:
		return common.NewError(common.CodeInvalidRequest, "missing request")
	case req.UserID == "":
		return common.NewError(common.CodeInvalidRequest, "missing user_id")
	case req.Action == "":
		return common.NewError(common.CodeInvalidRequest, "missing action")
	case req.Target.EntityID == "":
		return common.NewError(common.CodeInvalidRequest, "missing target entity_id")
	}
	return nil
}

// Evaluate decides one access attempt.  An error is returned only for a
// malformed request; every failure to establish a fact is a DENY.
func (e *AccessEngine) Evaluate(ctx context.Context, req *types.Request, evalOptions *options.EvalOptions) (*types.Decision, error) {
	if err := validRequest(req); err != nil {
		return nil, err
	}
	if !e.matrix.Declared(req.Action) {
		return nil, common.NewError(common.CodeInvalidRequest, "undeclared action %q", req.Action)
	}
	if evalOptions == nil {
		evalOptions = &options.EvalOptions{}
	}

	began := time.Now()
	settings := e.settingsFor(ctx, req.Org)
	f := e.gather(ctx, req.UserID, req.Target.EntityID)

	var (
		decision = &types.Decision{Outcome: types.Deny}
		record   = struct {
			role  model.Role
			base  model.PolicyState
			state model.PolicyState
			cause string
		}{}
	)

	// -------------------------- NOTE: all returns audited -----------------
	defer func() {
		metrics.Decision(string(decision.Outcome), time.Since(began))
		if decision.Outcome == types.Deny {
			*decision = types.Decision{Outcome: types.Deny}
		}
		logger.Debugf(req.UserID, "Evaluate", "%s on %s: %s (role %s, state %s, tier %s, cause %q)",
			req.Action, req.Target.EntityID, decision.Outcome, record.role, record.state, settings.Tier, record.cause)

		if evalOptions.Probe || !e.audited(decision, req.Action) {
			return
		}
		ev := accesslog.NewEvent(accesslog.KindDecision, req.UserID, string(req.Action), req.Target.EntityID, e.clock.Now())
		ev.Decision = string(decision.Outcome)
		ev.Reason = record.cause
		ev.With("role", record.role.String()).
			With("base_state", record.base.String()).
			With("state", record.state.String()).
			With("tier", settings.Tier.String())
		e.send(ev)
	}()

	if f.assignments.Failed() || f.units.Failed() {
		logger.Warnf(req.UserID, "Evaluate", "directory lookup failed for %s, denying: assignments=%v units=%v",
			req.Target.EntityID, f.assignments.Err(), f.units.Err())
		metrics.FailClosed(metrics.StageDirectory)
		record.cause = "directory unavailable"
		return decision, nil
	}

	assignments := f.assignments.Or(nil)
	reach := model.ResolveReach(assignments, f.units.Or(nil))
	record.role = reach.Role
	if reach.Role == model.NoRole {
		record.cause = "no applicable role"
		return decision, nil
	}

	base, err := e.matrix.BaseState(reach.Role, req.Action)
	if err != nil {
		logger.Warnf(req.UserID, "Evaluate", "matrix lookup failed, denying: %v", err)
		record.cause = "matrix lookup failed"
		return decision, nil
	}
	state := tier.EffectiveState(base, settings.Tier)
	record.base, record.state = base, state

	target := grants.Target{EntityID: req.Target.EntityID, Reach: reach, Action: req.Action}

	switch state {
	case model.Allow, model.PerField:
	case model.Scoped:
		if !reach.Direct() {
			record.cause = "no unit-specific assignment"
			return decision, nil
		}
	case model.Gated:
		g, err := e.grants.FindActive(ctx, req.UserID, target)
		if err != nil {
			logger.Warnf(req.UserID, "Evaluate", "grant lookup failed, denying: %v", err)
			metrics.FailClosed(metrics.StageGrants)
			record.cause = "grant lookup failed"
			return decision, nil
		}
		if g == nil {
			decision.Outcome = types.RequiresJustification
			decision.Role, decision.BaseState, decision.State = reach.Role, base, state
			decision.Justification = grants.Begin(settings, req.UserID, target, evalOptions.ReturnTo)
			return decision, nil
		}
		decision.Grant = g
	default:
		record.cause = "denied by matrix"
		return decision, nil
	}

	decision.Outcome = types.Allow
	decision.Role, decision.BaseState, decision.State = reach.Role, base, state
	decision.Fields = e.resolveFields(ctx, req, settings.Tier, reach.Role, base, state, f.flag)
	decision.Content = e.filterContent(ctx, req, assignments)

	if decision.Grant != nil && !evalOptions.Probe {
		e.grants.RecordAccess(ctx, decision.Grant, req.UserID, target)
	}
	return decision, nil
}

// audited reports whether a decision produces a decision event.  A grant
// backed ALLOW is recorded as grant.access instead, and a pending
// justification is not a denial.
func (e *AccessEngine) audited(d *types.Decision, action model.Action) bool {
	switch d.Outcome {
	case types.Deny:
		return true
	case types.Allow:
		return d.Grant == nil && e.matrix.IsSensitive(action)
	default:
		return false
	}
}

func (e *AccessEngine) resolveFields(ctx context.Context, req *types.Request, t model.Tier, role model.Role, base, state model.PolicyState, flag lookup.Result[bool]) map[string]model.FieldAccess {
	names := req.Target.Fields
	perField := base == model.PerField || state == model.PerField
	if len(names) == 0 {
		if !perField {
			return nil
		}
		names = e.resolver.Catalog().Names()
	}

	cfg, err := e.backend.FieldConfig(ctx)
	if err != nil {
		logger.Warnf(req.UserID, "resolveFields", "field configuration unavailable, hiding configured fields: %v", err)
		cfg = model.FieldConfig{}
	}
	if flag.Failed() {
		metrics.FailClosed(metrics.StageSafetyFlag)
	}

	return e.resolver.ResolveAll(cfg, names, fields.Query{Role: role, Tier: t, Flag: flag})
}

func (e *AccessEngine) filterContent(ctx context.Context, req *types.Request, assignments []model.Assignment) []consent.Content {
	if len(req.Target.Content) == 0 {
		return nil
	}
	surface := req.Target.Surface
	if surface == "" {
		surface = consent.Detail
	}
	return e.consent.Filter(ctx, surface, req.Target.Content, consent.Viewer{UserID: req.UserID, Assignments: assignments})
}

// ResolveField returns the access of one field for a user on an entity,
// without evaluating an action.
func (e *AccessEngine) ResolveField(ctx context.Context, org model.OrgSettings, userID, entityID, field string) model.FieldAccess {
	settings := e.settingsFor(ctx, org)
	f := e.gather(ctx, userID, entityID)
	if f.assignments.Failed() || f.units.Failed() {
		metrics.FailClosed(metrics.StageDirectory)
		return model.Hidden
	}
	reach := model.ResolveReach(f.assignments.Or(nil), f.units.Or(nil))

	cfg, err := e.backend.FieldConfig(ctx)
	if err != nil {
		logger.Warnf(userID, "ResolveField", "field configuration unavailable: %v", err)
		cfg = model.FieldConfig{}
	}
	return e.resolver.Resolve(cfg, fields.Query{Field: field, Role: reach.Role, Tier: settings.Tier, Flag: f.flag})
}

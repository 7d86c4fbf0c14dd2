//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package safety manages per-individual safety flags.
//
// A flag is set by a single qualifying actor.  Clearing it takes two: one
// files a removal request with a written reason and a different qualifying
// actor approves or rejects it.  Which actors qualify is decided by the
// "flag.set" and "flag.review" rows of the permission matrix.  The store
// enforces both the two-person rule and the pending-status check, so
// concurrent reviews cannot both succeed.
package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/clock"
	"github.com/caseaccess/accessengine/pkg/core/lookup"
	"github.com/caseaccess/accessengine/pkg/core/matrix"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("accessengine.safety")

const (
	setAction    model.Action = "flag.set"
	reviewAction model.Action = "flag.review"
)

// Authority decides whether an actor reaching the flagged entity through
// reach may perform action.  Setting a flag is checked against "flag.set";
// requesting and reviewing a removal against "flag.review".
type Authority func(ctx context.Context, reach model.Reach, action model.Action) bool

// MatrixAuthority checks flag actions against the permission matrix at the
// tier reported by tierOf.
func MatrixAuthority(mtx *matrix.Matrix, tierOf func(context.Context) model.Tier) Authority {
	return func(ctx context.Context, reach model.Reach, action model.Action) bool {
		return mtx.Permits(reach, action, tierOf(ctx))
	}
}

type removalForm struct {
	EntityID    string `validate:"required"`
	RequesterID string `validate:"required"`
	Reason      string `validate:"required"`
}

type reviewForm struct {
	RequestID  string `validate:"required"`
	ReviewerID string `validate:"required"`
}

// Manager runs the flag workflow.
type Manager struct {
	store     backend.FlagStore
	directory backend.Directory
	authority Authority
	audit     accesslog.Stream
	clock     clock.Clock
	validate  *validator.Validate
}

// NewManager creates a Manager.  The directory resolves the actor's reach
// for the flagged individual and authority decides what that reach permits.
func NewManager(store backend.FlagStore, directory backend.Directory, authority Authority, audit accesslog.Stream, clk clock.Clock) *Manager {
	return &Manager{
		store:     store,
		directory: directory,
		authority: authority,
		audit:     audit,
		clock:     clk,
		validate:  validator.New(),
	}
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.NewError(common.CodeInvalidRequest, "%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return common.NewError(common.CodeInvalidRequest, "%s", strings.Join(msgs, ", "))
}

// reachFor resolves the actor's reach for the entity.  A directory failure
// resolves to no role.
func (m *Manager) reachFor(ctx context.Context, actorID, entityID string) model.Reach {
	units, err := m.directory.EntityUnits(ctx, entityID)
	if err != nil {
		logger.Warnf(actorID, "reachFor", "entity lookup for %s failed: %v", entityID, err)
		return model.Reach{Role: model.NoRole}
	}
	assignments, err := m.directory.Assignments(ctx, actorID)
	if err != nil {
		logger.Warnf(actorID, "reachFor", "assignment lookup failed: %v", err)
		return model.Reach{Role: model.NoRole}
	}
	return model.ResolveReach(assignments, units)
}

func (m *Manager) requireQualified(ctx context.Context, actorID, entityID string, action model.Action) error {
	reach := m.reachFor(ctx, actorID, entityID)
	if reach.Role == model.NoRole || m.authority == nil || !m.authority(ctx, reach, action) {
		return common.NewError(common.CodeNotQualified, "%s is not permitted for this individual", action)
	}
	return nil
}

// Set flags an entity.  Setting an already active flag keeps the original
// setter and time.
func (m *Manager) Set(ctx context.Context, entityID, actorID string) (model.SafetyFlag, error) {
	if entityID == "" || actorID == "" {
		return model.SafetyFlag{}, common.NewError(common.CodeInvalidRequest, "entity and actor are required")
	}
	if err := m.requireQualified(ctx, actorID, entityID, setAction); err != nil {
		return model.SafetyFlag{}, err
	}

	current, err := m.store.GetFlag(ctx, entityID)
	if err != nil {
		return model.SafetyFlag{}, errors.Wrap(err, "loading flag")
	}
	if current.Active {
		return current, nil
	}

	flag := model.SafetyFlag{ID: uuid.NewString(), EntityID: entityID, Active: true, SetBy: actorID, SetAt: m.clock.Now().UTC()}
	if err := m.store.PutFlag(ctx, flag); err != nil {
		return model.SafetyFlag{}, errors.Wrap(err, "storing flag")
	}

	m.send(accesslog.NewEvent(accesslog.KindFlagSet, actorID, string(setAction), entityID, flag.SetAt))
	logger.Infof(actorID, "Set", "safety flag set on %s", entityID)
	return flag, nil
}

// RequestRemoval files the first half of a two-actor removal.  The request
// is bound to the flag that is active now, and only one request per flag
// may be pending.
func (m *Manager) RequestRemoval(ctx context.Context, entityID, requesterID, reason string) (*model.RemovalRequest, error) {
	form := removalForm{EntityID: entityID, RequesterID: requesterID, Reason: strings.TrimSpace(reason)}
	if err := m.validate.Struct(form); err != nil {
		return nil, invalid(err)
	}
	if err := m.requireQualified(ctx, requesterID, entityID, reviewAction); err != nil {
		return nil, err
	}

	flag, err := m.store.GetFlag(ctx, entityID)
	if err != nil {
		return nil, errors.Wrap(err, "loading flag")
	}
	if !flag.Active {
		return nil, common.NewError(common.CodeInvalidRequest, "entity %s is not flagged", entityID)
	}

	r := &model.RemovalRequest{
		ID:          uuid.NewString(),
		EntityID:    entityID,
		FlagID:      flag.ID,
		RequesterID: requesterID,
		Reason:      form.Reason,
		Status:      model.RemovalPending,
		RequestedAt: m.clock.Now().UTC(),
	}
	if err := m.store.InsertRemoval(ctx, r); err != nil {
		if errors.Is(err, common.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.Wrap(err, "storing removal request")
	}

	e := accesslog.NewEvent(accesslog.KindFlagRemovalAsked, requesterID, string(reviewAction), entityID, r.RequestedAt)
	e.Reason = r.Reason
	m.send(e.With("request_id", r.ID))
	return r, nil
}

// Review resolves a pending removal request.  The requester can never
// review their own request, and a request that is no longer pending cannot
// be reviewed again.  Approving clears the flag the request was filed
// against and closes the entity's other pending requests; if that flag was
// cleared and set again in the meantime the approval fails.
func (m *Manager) Review(ctx context.Context, requestID, reviewerID string, approve bool, note string) (*model.RemovalRequest, error) {
	if err := m.validate.Struct(reviewForm{RequestID: requestID, ReviewerID: reviewerID}); err != nil {
		return nil, invalid(err)
	}

	r, err := m.store.GetRemoval(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.RequesterID == reviewerID {
		return nil, common.NewError(common.CodeSelfReview, "someone else must review this request")
	}
	if r.Status != model.RemovalPending {
		return nil, common.NewError(common.CodeAlreadyResolved, "request was already %s", r.Status)
	}
	if err := m.requireQualified(ctx, reviewerID, r.EntityID, reviewAction); err != nil {
		return nil, err
	}

	now := m.clock.Now().UTC()
	r.ReviewerID = reviewerID
	r.ReviewNote = note
	r.ReviewedAt = &now
	r.Status = model.RemovalRejected
	if approve {
		r.Status = model.RemovalApproved
	}

	// the store repeats both checks atomically; a concurrent reviewer loses here
	if err := m.store.ResolveRemoval(ctx, r); err != nil {
		return nil, err
	}

	e := accesslog.NewEvent(accesslog.KindFlagReviewed, reviewerID, string(reviewAction), r.EntityID, now)
	e.Decision = string(r.Status)
	m.send(e.With("request_id", r.ID).With("requester", r.RequesterID))
	logger.Infof(reviewerID, "Review", "removal request %s %s", r.ID, r.Status)
	return r, nil
}

// Status returns whether the entity is flagged.  A failed lookup is carried
// in the result so that the caller must choose the fail-closed value.
func (m *Manager) Status(ctx context.Context, entityID string) lookup.Result[bool] {
	flag, err := m.store.GetFlag(ctx, entityID)
	if err != nil {
		return lookup.Failed[bool](err)
	}
	return lookup.Known(flag.Active)
}

// Flag returns the stored flag.
func (m *Manager) Flag(ctx context.Context, entityID string) (model.SafetyFlag, error) {
	return m.store.GetFlag(ctx, entityID)
}

// Pending lists removal requests awaiting a second actor.
func (m *Manager) Pending(ctx context.Context) ([]*model.RemovalRequest, error) {
	return m.store.PendingRemovals(ctx)
}

func (m *Manager) send(e *accesslog.AuditEvent) {
	if err := m.audit.Send(e); err != nil {
		logger.Errorf(e.Actor, "send", "audit send failed for %s: %v", e.Kind, err)
	}
}

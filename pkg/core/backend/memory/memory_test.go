//
//  Copyright © Manetu Inc. All rights reserved.
//

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Assign("alice", model.DirectService, "p1")
	s.Enroll("ind-1", "p1", "p2")
	s.SetConsentScope(model.ConsentScope{Unit: "p1", CrossUnitSharingEnabled: true})

	a, err := s.Assignments(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []model.Assignment{{Role: model.DirectService, Unit: "p1"}}, a)

	a, err = s.Assignments(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, a)

	units, err := s.EntityUnits(ctx, "ind-1")
	require.NoError(t, err)
	assert.Equal(t, []model.UnitID{"p1", "p2"}, units)

	_, err = s.EntityUnits(ctx, "ind-9")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	_, err = s.ConsentScope(ctx, "p9")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestGrantsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := &model.Grant{ID: "g1", RequesterID: "alice", Scope: model.GrantScope{Kind: model.ScopeEntity, ID: "ind-1"}, GrantedAt: t0, ExpiresAt: t0.Add(time.Hour)}
	require.NoError(t, s.InsertGrant(ctx, g))
	assert.Error(t, s.InsertGrant(ctx, g))

	g.RequesterID = "mallory"
	stored, err := s.GetGrant(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.RequesterID)

	ok, err := s.RevokeGrant(ctx, "g1", t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RevokeGrant(ctx, "g1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	stored, _ = s.GetGrant(ctx, "g1")
	require.NotNil(t, stored.RevokedAt)
	assert.Equal(t, t0, *stored.RevokedAt)

	_, err = s.RevokeGrant(ctx, "missing", t0)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestListGrants(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, spec := range []struct {
		id, who string
		scope   model.GrantScope
	}{
		{"g1", "alice", model.GrantScope{Kind: model.ScopeProgram, ID: "p1"}},
		{"g2", "bob", model.GrantScope{Kind: model.ScopeEntity, ID: "ind-1"}},
		{"g3", "alice", model.GrantScope{Kind: model.ScopeEntity, ID: "ind-2"}},
	} {
		at := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.InsertGrant(ctx, &model.Grant{ID: spec.id, RequesterID: spec.who, Scope: spec.scope, GrantedAt: at, ExpiresAt: at.Add(time.Hour)}))
	}

	all, err := s.ListGrants(ctx, backend.GrantFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "g1", all[0].ID)

	mine, _ := s.ListGrants(ctx, backend.GrantFilter{RequesterID: "alice"})
	assert.Len(t, mine, 2)

	entity, _ := s.ListGrants(ctx, backend.GrantFilter{ScopeKind: model.ScopeEntity, ScopeID: "ind-1"})
	require.Len(t, entity, 1)
	assert.Equal(t, "g2", entity[0].ID)
}

func TestResolveRemoval(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutFlag(ctx, model.SafetyFlag{EntityID: "ind-1", Active: true, SetBy: "pm", SetAt: t0}))
	require.NoError(t, s.InsertRemoval(ctx, &model.RemovalRequest{ID: "r1", EntityID: "ind-1", RequesterID: "alice", Status: model.RemovalPending, RequestedAt: t0}))

	pending, _ := s.PendingRemovals(ctx)
	assert.Len(t, pending, 1)

	at := t0.Add(time.Hour)
	err := s.ResolveRemoval(ctx, &model.RemovalRequest{ID: "r1", ReviewerID: "alice", Status: model.RemovalApproved, ReviewedAt: &at})
	assert.True(t, errors.Is(err, common.ErrSelfReview))
	f, _ := s.GetFlag(ctx, "ind-1")
	assert.True(t, f.Active)

	require.NoError(t, s.ResolveRemoval(ctx, &model.RemovalRequest{ID: "r1", ReviewerID: "bob", Status: model.RemovalApproved, ReviewNote: "ok", ReviewedAt: &at}))
	f, _ = s.GetFlag(ctx, "ind-1")
	assert.False(t, f.Active)
	assert.Equal(t, "pm", f.SetBy)

	err = s.ResolveRemoval(ctx, &model.RemovalRequest{ID: "r1", ReviewerID: "carol", Status: model.RemovalRejected, ReviewedAt: &at})
	assert.True(t, errors.Is(err, common.ErrAlreadyResolved))

	r, _ := s.GetRemoval(ctx, "r1")
	assert.Equal(t, model.RemovalApproved, r.Status)
	assert.Equal(t, "bob", r.ReviewerID)

	pending, _ = s.PendingRemovals(ctx)
	assert.Empty(t, pending)
}

func TestRemovalFlagBinding(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutFlag(ctx, model.SafetyFlag{ID: "f1", EntityID: "ind-1", Active: true, SetBy: "pm", SetAt: t0}))
	require.NoError(t, s.InsertRemoval(ctx, &model.RemovalRequest{ID: "r1", EntityID: "ind-1", FlagID: "f1", RequesterID: "alice", Status: model.RemovalPending, RequestedAt: t0}))

	err := s.InsertRemoval(ctx, &model.RemovalRequest{ID: "r2", EntityID: "ind-1", FlagID: "f1", RequesterID: "bob", Status: model.RemovalPending, RequestedAt: t0})
	assert.True(t, errors.Is(err, common.ErrInvalidRequest))
	require.NoError(t, s.InsertRemoval(ctx, &model.RemovalRequest{ID: "r0", EntityID: "ind-1", FlagID: "f0", RequesterID: "bob", Status: model.RemovalPending, RequestedAt: t0}))

	at := t0.Add(time.Hour)
	err = s.ResolveRemoval(ctx, &model.RemovalRequest{ID: "r0", ReviewerID: "carol", Status: model.RemovalApproved, ReviewedAt: &at})
	assert.True(t, errors.Is(err, common.ErrAlreadyResolved))
	f, _ := s.GetFlag(ctx, "ind-1")
	assert.True(t, f.Active)

	require.NoError(t, s.ResolveRemoval(ctx, &model.RemovalRequest{ID: "r1", ReviewerID: "carol", Status: model.RemovalApproved, ReviewedAt: &at}))
	f, _ = s.GetFlag(ctx, "ind-1")
	assert.False(t, f.Active)
	assert.Equal(t, "f1", f.ID)

	r0, _ := s.GetRemoval(ctx, "r0")
	assert.Equal(t, model.RemovalSuperseded, r0.Status)
	assert.Equal(t, "superseded by r1", r0.ReviewNote)
}

func TestConcurrentReviewsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.PutFlag(ctx, model.SafetyFlag{EntityID: "ind-1", Active: true, SetBy: "pm", SetAt: t0}))
	require.NoError(t, s.InsertRemoval(ctx, &model.RemovalRequest{ID: "r1", EntityID: "ind-1", RequesterID: "alice", Status: model.RemovalPending, RequestedAt: t0}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, reviewer := range []string{"bob", "carol", "dave", "erin"} {
		wg.Add(1)
		go func(reviewer string) {
			defer wg.Done()
			at := t0
			if err := s.ResolveRemoval(ctx, &model.RemovalRequest{ID: "r1", ReviewerID: reviewer, Status: model.RemovalApproved, ReviewedAt: &at}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, common.ErrAlreadyResolved))
			}
		}(reviewer)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestFieldConfigAndSettings(t *testing.T) {
	ctx := context.Background()
	s := New()

	key := model.FieldKey{Field: "phone", Role: model.FrontDesk}
	require.NoError(t, s.SetFieldAccess(ctx, key, model.Edit))
	cfg, _ := s.FieldConfig(ctx)
	cfg[key] = model.Hidden
	cfg, _ = s.FieldConfig(ctx)
	assert.Equal(t, model.Edit, cfg[key])

	require.NoError(t, s.ReplaceFieldConfig(ctx, model.FieldConfig{}))
	cfg, _ = s.FieldConfig(ctx)
	assert.Empty(t, cfg)

	_, err := s.Settings(ctx)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	in := model.OrgSettings{Tier: model.Tier2, Reasons: []model.ReasonCode{{Code: "a", Active: true}}}
	require.NoError(t, s.SaveSettings(ctx, in))
	in.Reasons[0].Code = "mutated"
	out, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", out.Reasons[0].Code)
	assert.Equal(t, model.Tier2, out.Tier)

	f := NewFactoryWith(s)
	svc, err := f.NewBackend()
	require.NoError(t, err)
	assert.Same(t, s, svc)
}

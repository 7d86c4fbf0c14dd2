//
//  Copyright © Manetu Inc. All rights reserved.
//

package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	testlog "github.com/caseaccess/accessengine/internal/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/backend/memory"
	"github.com/caseaccess/accessengine/pkg/core/clock"
	"github.com/caseaccess/accessengine/pkg/core/matrix"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type failingFlags struct {
	*memory.Store
}

func (failingFlags) GetFlag(context.Context, string) (model.SafetyFlag, error) {
	return model.SafetyFlag{}, errors.New("connection reset")
}

const flagRows = `
apiVersion: accessengine/v1
kind: PermissionMatrix
metadata:
  name: flags
spec:
  actions:
    - name: flag.set
      states:
        FrontDesk: DENY
        DirectService: DENY
        ProgramManager: %s
        Executive: ALLOW
        Administrator: ALLOW
    - name: flag.review
      states:
        FrontDesk: DENY
        DirectService: DENY
        ProgramManager: %s
        Executive: ALLOW
        Administrator: ALLOW
`

func authorityFrom(t *testing.T, doc string) Authority {
	t.Helper()
	mtx, err := matrix.Parse("test", []byte(doc))
	require.NoError(t, err)
	return MatrixAuthority(mtx, func(context.Context) model.Tier { return model.Tier3 })
}

func defaultAuthority(t *testing.T) Authority {
	t.Helper()
	mtx, err := matrix.Default()
	require.NoError(t, err)
	return MatrixAuthority(mtx, func(context.Context) model.Tier { return model.Tier3 })
}

func newManager(t *testing.T) (*Manager, *memory.Store, chan *accesslog.AuditEvent) {
	return newManagerWith(t, defaultAuthority(t))
}

func newManagerWith(t *testing.T, authority Authority) (*Manager, *memory.Store, chan *accesslog.AuditEvent) {
	t.Helper()
	store := memory.New()
	store.Enroll("ind-1", "p1")
	store.Assign("pm-a", model.ProgramManager, "p1")
	store.Assign("pm-b", model.ProgramManager, "p1")
	store.Assign("exec", model.Executive, "")
	store.Assign("worker", model.DirectService, "p1")
	store.Assign("pm-other", model.ProgramManager, "p2")
	store.Assign("pm-org", model.ProgramManager, "")

	audit := make(chan *accesslog.AuditEvent, 64)
	return NewManager(store, store, authority, testlog.NewChannelStream(audit), clock.NewFake(start)), store, audit
}

func TestSet(t *testing.T) {
	ctx := context.Background()
	m, _, audit := newManager(t)

	_, err := m.Set(ctx, "ind-1", "worker")
	assert.True(t, errors.Is(err, common.ErrNotQualified))
	_, err = m.Set(ctx, "ind-1", "pm-other")
	assert.True(t, errors.Is(err, common.ErrNotQualified))
	_, err = m.Set(ctx, "ind-1", "pm-org")
	assert.True(t, errors.Is(err, common.ErrNotQualified), "SCOPED needs a unit-specific assignment")
	_, err = m.Set(ctx, "", "pm-a")
	assert.True(t, errors.Is(err, common.ErrInvalidRequest))
	assert.False(t, m.Status(ctx, "ind-1").Or(true))

	flag, err := m.Set(ctx, "ind-1", "pm-a")
	require.NoError(t, err)
	assert.True(t, flag.Active)
	assert.Equal(t, "pm-a", flag.SetBy)
	assert.Equal(t, start, flag.SetAt)

	again, err := m.Set(ctx, "ind-1", "exec")
	require.NoError(t, err)
	assert.Equal(t, "pm-a", again.SetBy)

	assert.True(t, m.Status(ctx, "ind-1").Or(false))

	events := testlog.Drain(audit)
	require.Len(t, events, 1)
	assert.Equal(t, accesslog.KindFlagSet, events[0].Kind)
	assert.Equal(t, "ind-1", events[0].Target)
}

func TestTwoPersonRule(t *testing.T) {
	ctx := context.Background()
	m, _, audit := newManager(t)

	_, err := m.RequestRemoval(ctx, "ind-1", "pm-a", "moved out of area")
	assert.True(t, errors.Is(err, common.ErrInvalidRequest), "flag not active")

	_, err = m.Set(ctx, "ind-1", "pm-a")
	require.NoError(t, err)

	_, err = m.RequestRemoval(ctx, "ind-1", "pm-a", "   ")
	assert.True(t, errors.Is(err, common.ErrInvalidRequest))

	req, err := m.RequestRemoval(ctx, "ind-1", "pm-a", "moved out of area")
	require.NoError(t, err)
	assert.Equal(t, model.RemovalPending, req.Status)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = m.Review(ctx, req.ID, "pm-a", true, "ok")
	assert.True(t, errors.Is(err, common.ErrSelfReview))
	assert.True(t, m.Status(ctx, "ind-1").Or(false))

	_, err = m.Review(ctx, req.ID, "worker", true, "ok")
	assert.True(t, errors.Is(err, common.ErrNotQualified))
	assert.True(t, m.Status(ctx, "ind-1").Or(false))

	done, err := m.Review(ctx, req.ID, "pm-b", true, "confirmed by phone")
	require.NoError(t, err)
	assert.Equal(t, model.RemovalApproved, done.Status)
	assert.Equal(t, "pm-b", done.ReviewerID)
	assert.False(t, m.Status(ctx, "ind-1").Or(true))

	_, err = m.Review(ctx, req.ID, "exec", false, "late")
	assert.True(t, errors.Is(err, common.ErrAlreadyResolved))

	pending, err = m.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var kinds []accesslog.Kind
	for _, e := range testlog.Drain(audit) {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []accesslog.Kind{accesslog.KindFlagSet, accesslog.KindFlagRemovalAsked, accesslog.KindFlagReviewed}, kinds)
}

func TestRejectKeepsFlag(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)

	_, err := m.Set(ctx, "ind-1", "pm-a")
	require.NoError(t, err)
	req, err := m.RequestRemoval(ctx, "ind-1", "pm-a", "no longer at risk")
	require.NoError(t, err)

	done, err := m.Review(ctx, req.ID, "exec", false, "risk remains")
	require.NoError(t, err)
	assert.Equal(t, model.RemovalRejected, done.Status)
	assert.True(t, m.Status(ctx, "ind-1").Or(false))

	_, err = m.Review(ctx, "missing", "exec", true, "")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestRemovalBoundToFlagInstance(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t)

	first, err := m.Set(ctx, "ind-1", "pm-a")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	r1, err := m.RequestRemoval(ctx, "ind-1", "pm-a", "moved out of area")
	require.NoError(t, err)
	assert.Equal(t, first.ID, r1.FlagID)

	_, err = m.RequestRemoval(ctx, "ind-1", "pm-b", "also moved")
	assert.True(t, errors.Is(err, common.ErrInvalidRequest), "one pending request per flag")

	_, err = m.Review(ctx, r1.ID, "pm-b", true, "confirmed")
	require.NoError(t, err)
	assert.False(t, m.Status(ctx, "ind-1").Or(true))

	second, err := m.Set(ctx, "ind-1", "exec")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// a request left over from the first flag must not clear the second
	stale := &model.RemovalRequest{
		ID:          "stale",
		EntityID:    "ind-1",
		FlagID:      first.ID,
		RequesterID: "pm-b",
		Reason:      "filed before the flag was set again",
		Status:      model.RemovalPending,
		RequestedAt: start,
	}
	require.NoError(t, store.InsertRemoval(ctx, stale))

	_, err = m.Review(ctx, "stale", "pm-a", true, "ok")
	assert.True(t, errors.Is(err, common.ErrAlreadyResolved))
	assert.True(t, m.Status(ctx, "ind-1").Or(false))

	flag, err := m.Flag(ctx, "ind-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, flag.ID)
	assert.Equal(t, "exec", flag.SetBy)

	left, err := store.GetRemoval(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.RemovalPending, left.Status)

	// rejecting a stale request still closes it
	done, err := m.Review(ctx, "stale", "pm-a", false, "flag was set again")
	require.NoError(t, err)
	assert.Equal(t, model.RemovalRejected, done.Status)
	assert.True(t, m.Status(ctx, "ind-1").Or(false))
}

func TestApprovalSupersedesOtherRequests(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t)

	_, err := m.Set(ctx, "ind-1", "pm-a")
	require.NoError(t, err)

	old := &model.RemovalRequest{
		ID:          "old",
		EntityID:    "ind-1",
		FlagID:      "an-earlier-flag",
		RequesterID: "pm-b",
		Reason:      "left over",
		Status:      model.RemovalPending,
		RequestedAt: start,
	}
	require.NoError(t, store.InsertRemoval(ctx, old))

	req, err := m.RequestRemoval(ctx, "ind-1", "pm-a", "closed case")
	require.NoError(t, err)

	_, err = m.Review(ctx, req.ID, "exec", true, "agreed")
	require.NoError(t, err)

	superseded, err := store.GetRemoval(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.RemovalSuperseded, superseded.Status)
	assert.Contains(t, superseded.ReviewNote, req.ID)
	assert.Empty(t, superseded.ReviewerID)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = m.Review(ctx, "old", "pm-a", true, "")
	assert.True(t, errors.Is(err, common.ErrAlreadyResolved))
}

func TestConcurrentReviewers(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t)
	store.Assign("pm-c", model.ProgramManager, "p1")

	_, err := m.Set(ctx, "ind-1", "pm-a")
	require.NoError(t, err)
	req, err := m.RequestRemoval(ctx, "ind-1", "pm-a", "closed case")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		resolved int
	)
	for _, reviewer := range []string{"pm-b", "pm-c", "exec"} {
		wg.Add(1)
		go func(reviewer string) {
			defer wg.Done()
			_, err := m.Review(ctx, req.ID, reviewer, true, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, common.ErrAlreadyResolved):
				resolved++
			}
		}(reviewer)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, resolved)
}

func TestMatrixRowsDecideAuthority(t *testing.T) {
	ctx := context.Background()

	m, _, _ := newManagerWith(t, authorityFrom(t, fmt.Sprintf(flagRows, "DENY", "SCOPED")))
	_, err := m.Set(ctx, "ind-1", "pm-a")
	assert.True(t, errors.Is(err, common.ErrNotQualified))
	_, err = m.Set(ctx, "ind-1", "exec")
	require.NoError(t, err)
	_, err = m.RequestRemoval(ctx, "ind-1", "pm-a", "moved out of area")
	require.NoError(t, err, "flag.review is still SCOPED")

	m, store, _ := newManagerWith(t, authorityFrom(t, fmt.Sprintf(flagRows, "ALLOW", "DENY")))
	_, err = m.Set(ctx, "ind-1", "pm-org")
	require.NoError(t, err, "ALLOW does not need a unit-specific assignment")
	req, err := m.RequestRemoval(ctx, "ind-1", "exec", "moved out of area")
	require.NoError(t, err)
	_, err = m.Review(ctx, req.ID, "pm-a", true, "ok")
	assert.True(t, errors.Is(err, common.ErrNotQualified))

	left, err := store.GetRemoval(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RemovalPending, left.Status)
	assert.True(t, m.Status(ctx, "ind-1").Or(false))

	m = NewManager(store, store, nil, testlog.NewChannelStream(make(chan *accesslog.AuditEvent, 4)), clock.Real())
	_, err = m.Review(ctx, req.ID, "pm-a", true, "ok")
	assert.True(t, errors.Is(err, common.ErrNotQualified), "no authority permits nothing")
}

func TestStatusFailure(t *testing.T) {
	store := memory.New()
	m := NewManager(failingFlags{store}, store, nil, testlog.NewChannelStream(make(chan *accesslog.AuditEvent, 4)), clock.Real())

	status := m.Status(context.Background(), "ind-1")
	assert.True(t, status.Failed())
	assert.True(t, status.Or(true))
}

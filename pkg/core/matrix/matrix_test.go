//
//  Copyright © Manetu Inc. All rights reserved.
//

package matrix

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatrixIsTotal(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "default", m.Name())

	actions := m.Actions()
	require.NotEmpty(t, actions)
	for _, action := range actions {
		for _, role := range model.Roles() {
			state, err := m.BaseState(role, action)
			assert.NoError(t, err, "%s/%s", role, action)
			assert.NotEqual(t, model.StateUnknown, state, "%s/%s", role, action)
		}
	}
}

func TestDefaultMatrixCells(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	var cells = []struct {
		role   model.Role
		action model.Action
		state  model.PolicyState
	}{
		{model.FrontDesk, "health.view", model.Deny},
		{model.DirectService, "health.view", model.Gated},
		{model.FrontDesk, "individual.view", model.PerField},
		{model.DirectService, "note.view", model.Scoped},
		{model.Administrator, "fields.configure", model.Allow},
	}
	for _, c := range cells {
		state, err := m.BaseState(c.role, c.action)
		require.NoError(t, err)
		assert.Equal(t, c.state, state, "%s/%s", c.role, c.action)
	}

	assert.True(t, m.IsSensitive("health.view"))
	assert.False(t, m.IsSensitive("individual.list"))
	assert.True(t, m.Declared("note.create"))
	assert.False(t, m.Declared("report.export"))
}

func TestUndeclaredLookups(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	_, err = m.BaseState(model.FrontDesk, "report.export")
	assert.True(t, errors.Is(err, common.ErrConfiguration))

	_, err = m.BaseState(model.NoRole, "health.view")
	assert.True(t, errors.Is(err, common.ErrConfiguration))
}

func TestPermits(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	direct := model.Reach{Role: model.ProgramManager, Units: []model.UnitID{"p1"}}
	orgWide := model.Reach{Role: model.ProgramManager, OrgWide: true}

	var tests = []struct {
		name   string
		reach  model.Reach
		action model.Action
		tier   model.Tier
		want   bool
	}{
		{"scoped with a unit", direct, "flag.set", model.Tier3, true},
		{"scoped org-wide only", orgWide, "flag.set", model.Tier3, false},
		{"allow", model.Reach{Role: model.Executive, OrgWide: true}, "grant.list_all", model.Tier3, true},
		{"deny", direct, "grant.list_all", model.Tier3, false},
		{"gated at tier 3", direct, "health.view", model.Tier3, false},
		{"gated relaxed at tier 2", direct, "health.view", model.Tier2, true},
		{"undeclared", direct, "report.export", model.Tier3, false},
		{"no role", model.Reach{}, "flag.set", model.Tier3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Permits(tt.reach, tt.action, tt.tier))
		})
	}
}

func TestParseFailsFast(t *testing.T) {
	var tests = []struct {
		name     string
		doc      string
		contains []string
	}{
		{
			name: "missing role cell",
			doc: `apiVersion: accessengine/v1
kind: PermissionMatrix
spec:
  actions:
    - name: health.view
      states:
        FrontDesk: DENY
        DirectService: GATED
        ProgramManager: GATED
        Executive: GATED
`,
			contains: []string{"entry 'health.view' field 'Administrator'"},
		},
		{
			name: "unknown state and role",
			doc: `apiVersion: accessengine/v1
kind: PermissionMatrix
spec:
  actions:
    - name: note.view
      states:
        FrontDesk: MAYBE
        Janitor: ALLOW
        DirectService: ALLOW
        ProgramManager: ALLOW
        Executive: ALLOW
        Administrator: ALLOW
`,
			contains: []string{"unknown policy state", "unknown role"},
		},
		{
			name: "wrong kind and duplicate",
			doc: `apiVersion: accessengine/v0
kind: Directory
spec:
  actions:
    - name: a
      states: {FrontDesk: ALLOW, DirectService: ALLOW, ProgramManager: ALLOW, Executive: ALLOW, Administrator: ALLOW}
    - name: a
      states: {FrontDesk: ALLOW, DirectService: ALLOW, ProgramManager: ALLOW, Executive: ALLOW, Administrator: ALLOW}
`,
			contains: []string{"kind", "apiVersion", "declared more than once"},
		},
		{
			name:     "empty",
			doc:      "apiVersion: accessengine/v1\nkind: PermissionMatrix\n",
			contains: []string{"no actions declared"},
		},
		{
			name:     "not yaml",
			doc:      "{{{",
			contains: []string{"CONFIGURATION"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse("test.yaml", []byte(tt.doc))
			assert.Nil(t, m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrConfiguration))
			for _, c := range tt.contains {
				assert.Contains(t, err.Error(), c)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, os.WriteFile(path, defaultDocument, 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Actions(), 13)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

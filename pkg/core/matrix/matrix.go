//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package matrix holds the static role x action permission table.
//
// The table is authored at the strictest tier (3) and never changes at
// request time; the [tier] package adapts it downward.  It is loaded from a
// YAML document:
//
//	apiVersion: accessengine/v1
//	kind: PermissionMatrix
//	spec:
//	  actions:
//	    - name: health.view
//	      sensitive: true
//	      states:
//	        FrontDesk: DENY
//	        DirectService: GATED
//	        ...
//
// Every declared action must carry a state for every role.  A missing or
// unknown cell is a configuration error reported by [Parse], so a gap in the
// table stops the process at startup instead of surfacing as an implicit
// allow or deny on some request.
package matrix

import (
	_ "embed" // default matrix
	"os"
	"sort"

	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/tier"
	"github.com/caseaccess/accessengine/pkg/core/validation"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// APIVersion is the only accepted document version.
	APIVersion = "accessengine/v1"
	// Kind is the expected document kind.
	Kind = "PermissionMatrix"
)

//go:embed default.yaml
var defaultDocument []byte

type document struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec struct {
		Actions []actionDefinition `yaml:"actions"`
	} `yaml:"spec"`
}

type actionDefinition struct {
	Name      string            `yaml:"name"`
	Sensitive bool              `yaml:"sensitive"`
	States    map[string]string `yaml:"states"`
}

// Matrix is the immutable, fully-validated permission table.  It is safe for
// concurrent use.
type Matrix struct {
	name      string
	cells     map[model.Action]map[model.Role]model.PolicyState
	sensitive map[model.Action]bool
	actions   []model.Action
}

// Default returns the built-in matrix.
func Default() (*Matrix, error) {
	return Parse("default", defaultDocument)
}

// Load reads and validates a matrix document from path.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied configuration path
	if err != nil {
		return nil, errors.Wrapf(err, "reading permission matrix %s", path)
	}
	return Parse(path, data)
}

// Parse validates a matrix document.  All problems are collected and
// returned together as a configuration error.
func Parse(source string, data []byte) (*Matrix, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, common.NewError(common.CodeConfiguration, "%s: %v", source, err)
	}

	ve := validation.NewErrors(source)
	if doc.Kind != Kind {
		ve.Addf("preamble", "", "kind", "expected %s got %q", Kind, doc.Kind)
	}
	if doc.APIVersion != APIVersion {
		ve.Addf("preamble", "", "apiVersion", "unsupported version %q", doc.APIVersion)
	}
	if len(doc.Spec.Actions) == 0 {
		ve.Addf("missing", "", "actions", "no actions declared")
	}

	m := &Matrix{
		name:      doc.Metadata.Name,
		cells:     make(map[model.Action]map[model.Role]model.PolicyState),
		sensitive: make(map[model.Action]bool),
	}

	for _, def := range doc.Spec.Actions {
		if def.Name == "" {
			ve.Addf("missing", "", "name", "action without a name")
			continue
		}
		action := model.Action(def.Name)
		if _, dup := m.cells[action]; dup {
			ve.Addf("duplicate", def.Name, "", "action declared more than once")
			continue
		}

		row := make(map[model.Role]model.PolicyState, len(model.Roles()))
		for roleName, stateName := range def.States {
			role, err := model.ParseRole(roleName)
			if err != nil {
				ve.Addf("unknown", def.Name, roleName, "%v", err)
				continue
			}
			state, err := model.ParsePolicyState(stateName)
			if err != nil {
				ve.Addf("unknown", def.Name, roleName, "%v", err)
				continue
			}
			row[role] = state
		}
		for _, role := range model.Roles() {
			if _, ok := row[role]; !ok {
				ve.Addf("missing", def.Name, role.String(), "no state declared for role")
			}
		}

		m.cells[action] = row
		m.sensitive[action] = def.Sensitive
		m.actions = append(m.actions, action)
	}

	if err := ve.Err(); err != nil {
		return nil, err
	}

	sort.Slice(m.actions, func(i, j int) bool { return m.actions[i] < m.actions[j] })
	return m, nil
}

// Name returns the document's metadata name.
func (m *Matrix) Name() string {
	return m.name
}

// BaseState returns the tier-3 state for (role, action).  Only an undeclared
// action or a role outside the closed set can fail; both are configuration
// errors on the caller's side, not a decision.
func (m *Matrix) BaseState(role model.Role, action model.Action) (model.PolicyState, error) {
	row, ok := m.cells[action]
	if !ok {
		return model.StateUnknown, common.NewError(common.CodeConfiguration, "undeclared action %q", action)
	}
	state, ok := row[role]
	if !ok {
		return model.StateUnknown, common.NewError(common.CodeConfiguration, "undeclared role %s for action %q", role, action)
	}
	return state, nil
}

// Permits reports whether reach may perform action outright at t.  It is
// used for administrative actions, which have no justification path: only
// ALLOW, or SCOPED with a unit-specific reach, permits.  An undeclared action
// or a reach without a role never does.
func (m *Matrix) Permits(reach model.Reach, action model.Action, t model.Tier) bool {
	if reach.Role == model.NoRole {
		return false
	}
	base, err := m.BaseState(reach.Role, action)
	if err != nil {
		return false
	}
	switch tier.EffectiveState(base, t) {
	case model.Allow:
		return true
	case model.Scoped:
		return reach.Direct()
	default:
		return false
	}
}

// Declared reports whether action is in the table.
func (m *Matrix) Declared(action model.Action) bool {
	_, ok := m.cells[action]
	return ok
}

// IsSensitive reports whether ALLOW decisions on action must be audited.
func (m *Matrix) IsSensitive(action model.Action) bool {
	return m.sensitive[action]
}

// Actions lists every declared action in lexical order.
func (m *Matrix) Actions() []model.Action {
	out := make([]model.Action, len(m.actions))
	copy(out, m.actions)
	return out
}

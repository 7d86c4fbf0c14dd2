//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package local provides a backend whose directory (units, consent scopes,
// role assignments and entity membership) is loaded from a YAML file.
// Engine state lives in memory.
//
// The document format is:
//
//	apiVersion: accessengine/v1
//	kind: Directory
//	spec:
//	  units:
//	    - id: p1
//	      crossUnitSharing: false
//	  users:
//	    - id: alice
//	      assignments:
//	        - role: DirectService
//	          unit: p1
//	        - role: Executive          # no unit: organisation-wide
//	  entities:
//	    - id: ind-1
//	      units: [p1, p2]
//
// # Usage
//
//	f, err := local.NewFactoryFromFile("directory.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ae, err := core.NewAccessEngine(options.WithBackend(f))
package local

import (
	"os"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/backend/memory"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/validation"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var logger = logging.GetLogger("accessengine.backend.local")

const (
	// APIVersion is the only accepted document version.
	APIVersion = "accessengine/v1"
	// Kind is the expected document kind.
	Kind = "Directory"
)

type document struct {
	APIVersion string    `yaml:"apiVersion"`
	Kind       string    `yaml:"kind"`
	Spec       Directory `yaml:"spec"`
}

// Unit declares a program and its sharing setting.
type Unit struct {
	ID               string `yaml:"id" mapstructure:"id"`
	CrossUnitSharing bool   `yaml:"crossUnitSharing" mapstructure:"crossUnitSharing"`
}

// AssignmentDef is a role held in a unit.  An empty unit is
// organisation-wide.
type AssignmentDef struct {
	Role string `yaml:"role" mapstructure:"role"`
	Unit string `yaml:"unit" mapstructure:"unit"`
}

// User lists one user's assignments.
type User struct {
	ID          string          `yaml:"id" mapstructure:"id"`
	Assignments []AssignmentDef `yaml:"assignments" mapstructure:"assignments"`
}

// Entity lists the units an individual is enrolled in.
type Entity struct {
	ID    string   `yaml:"id" mapstructure:"id"`
	Units []string `yaml:"units" mapstructure:"units"`
}

// Directory is the body of a directory document.
type Directory struct {
	Units    []Unit   `yaml:"units" mapstructure:"units"`
	Users    []User   `yaml:"users" mapstructure:"users"`
	Entities []Entity `yaml:"entities" mapstructure:"entities"`
}

// Seeder receives directory facts.
type Seeder interface {
	Assign(userID string, role model.Role, unit model.UnitID)
	Enroll(entityID string, units ...model.UnitID)
	SetConsentScope(scope model.ConsentScope)
}

// Load reads and validates a directory document.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied configuration path
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", path)
	}
	return Parse(path, data)
}

// Parse validates a directory document.
func Parse(source string, data []byte) (*Directory, error) {
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
	doc.Spec.check(ve)

	if err := ve.Err(); err != nil {
		return nil, err
	}
	return &doc.Spec, nil
}

// Validate checks a directory built by other means, such as configuration.
func (d *Directory) Validate(source string) error {
	ve := validation.NewErrors(source)
	d.check(ve)
	return ve.Err()
}

func (d *Directory) check(ve *validation.Errors) {
	units := make(map[string]bool, len(d.Units))
	for _, u := range d.Units {
		switch {
		case u.ID == "":
			ve.Addf("missing", "", "units.id", "unit without an id")
		case units[u.ID]:
			ve.Addf("duplicate", u.ID, "units", "unit declared more than once")
		}
		units[u.ID] = true
	}

	users := make(map[string]bool, len(d.Users))
	for _, u := range d.Users {
		if u.ID == "" {
			ve.Addf("missing", "", "users.id", "user without an id")
			continue
		}
		if users[u.ID] {
			ve.Addf("duplicate", u.ID, "users", "user declared more than once")
		}
		users[u.ID] = true
		for _, a := range u.Assignments {
			if _, err := model.ParseRole(a.Role); err != nil {
				ve.Addf("unknown", u.ID, "role", "%v", err)
			}
			if a.Unit != "" && !units[a.Unit] {
				ve.Addf("reference", u.ID, "unit", "undeclared unit %q", a.Unit)
			}
		}
	}

	entities := make(map[string]bool, len(d.Entities))
	for _, e := range d.Entities {
		if e.ID == "" {
			ve.Addf("missing", "", "entities.id", "entity without an id")
			continue
		}
		if entities[e.ID] {
			ve.Addf("duplicate", e.ID, "entities", "entity declared more than once")
		}
		entities[e.ID] = true
		if len(e.Units) == 0 {
			ve.Addf("missing", e.ID, "units", "entity is not enrolled in any unit")
		}
		for _, unit := range e.Units {
			if !units[unit] {
				ve.Addf("reference", e.ID, "units", "undeclared unit %q", unit)
			}
		}
	}
}

// Seed copies the directory into s.  The directory must be valid.
func (d *Directory) Seed(s Seeder) {
	for _, u := range d.Units {
		s.SetConsentScope(model.ConsentScope{Unit: model.UnitID(u.ID), CrossUnitSharingEnabled: u.CrossUnitSharing})
	}
	for _, u := range d.Users {
		for _, a := range u.Assignments {
			role, _ := model.ParseRole(a.Role)
			s.Assign(u.ID, role, model.UnitID(a.Unit))
		}
	}
	for _, e := range d.Entities {
		units := make([]model.UnitID, 0, len(e.Units))
		for _, u := range e.Units {
			units = append(units, model.UnitID(u))
		}
		s.Enroll(e.ID, units...)
	}
}

// Factory creates the local backend.
type Factory struct {
	directory *Directory
	store     *memory.Store
}

// NewFactory creates a Factory for a validated directory.
func NewFactory(d *Directory) *Factory {
	return &Factory{directory: d}
}

// NewFactoryFromFile loads path and creates a Factory.
func NewFactoryFromFile(path string) (*Factory, error) {
	d, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewFactory(d), nil
}

// Directory returns the loaded directory.
func (f *Factory) Directory() *Directory {
	return f.directory
}

// NewBackend seeds a memory store from the directory.  Every call returns
// the same store.
func (f *Factory) NewBackend() (backend.Service, error) {
	if f.store == nil {
		f.store = memory.New()
		f.directory.Seed(f.store)
		logger.SysDebugf("local directory loaded: %d units, %d users, %d entities",
			len(f.directory.Units), len(f.directory.Users), len(f.directory.Entities))
	}
	return f.store, nil
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package fields

import (
	_ "embed" // default catalog
	"os"
	"sort"
	"sync"

	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/validation"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	apiVersion  = "accessengine/v1"
	catalogKind = "FieldCatalog"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogDocument struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Spec       struct {
		Fields []fieldDefinition `yaml:"fields"`
	} `yaml:"spec"`
}

type fieldDefinition struct {
	Name         string            `yaml:"name"`
	Pinned       bool              `yaml:"pinned"`
	Sensitive    bool              `yaml:"sensitive"`
	SafeDefaults map[string]string `yaml:"safeDefaults"`
	Defaults     map[string]string `yaml:"defaults"`
}

// Field describes one record field.
type Field struct {
	Name string
	// Pinned fields are structurally required and never resolve below VIEW.
	Pinned bool
	// Sensitive fields are hidden from restricted roles while the
	// individual carries a safety flag.
	Sensitive bool
	// Custom fields were registered by an administrator.
	Custom bool

	safe     map[model.Role]model.FieldAccess
	defaults map[model.Role]model.FieldAccess
}

// Catalog is the set of known fields with their tier defaults.  Core fields
// come from a document; custom fields are added at runtime.
type Catalog struct {
	mu     sync.RWMutex
	fields map[string]*Field
}

// DefaultCatalog returns the built-in core field catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog("default", defaultCatalog)
}

// LoadCatalog reads a field catalog document.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied configuration path
	if err != nil {
		return nil, errors.Wrapf(err, "reading field catalog %s", path)
	}
	return ParseCatalog(path, data)
}

// ParseCatalog validates a field catalog document.
func ParseCatalog(source string, data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, common.NewError(common.CodeConfiguration, "%s: %v", source, err)
	}

	ve := validation.NewErrors(source)
	if doc.Kind != catalogKind {
		ve.Addf("preamble", "", "kind", "expected %s got %q", catalogKind, doc.Kind)
	}
	if doc.APIVersion != apiVersion {
		ve.Addf("preamble", "", "apiVersion", "unsupported version %q", doc.APIVersion)
	}

	c := &Catalog{fields: make(map[string]*Field)}
	for _, def := range doc.Spec.Fields {
		if def.Name == "" {
			ve.Addf("missing", "", "name", "field without a name")
			continue
		}
		if _, dup := c.fields[def.Name]; dup {
			ve.Addf("duplicate", def.Name, "", "field declared more than once")
			continue
		}
		if def.Pinned && def.Sensitive {
			ve.Addf("conflict", def.Name, "sensitive", "a pinned field cannot be sensitive")
		}
		c.fields[def.Name] = &Field{
			Name:      def.Name,
			Pinned:    def.Pinned,
			Sensitive: def.Sensitive,
			safe:      parseAccessMap(ve, def.Name, "safeDefaults", def.SafeDefaults),
			defaults:  parseAccessMap(ve, def.Name, "defaults", def.Defaults),
		}
	}

	if err := ve.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseAccessMap(ve *validation.Errors, entry, field string, in map[string]string) map[model.Role]model.FieldAccess {
	out := make(map[model.Role]model.FieldAccess, len(in))
	for roleName, accessName := range in {
		role, err := model.ParseRole(roleName)
		if err != nil {
			ve.Addf("unknown", entry, field, "%v", err)
			continue
		}
		access, err := model.ParseFieldAccess(accessName)
		if err != nil {
			ve.Addf("unknown", entry, field, "%v", err)
			continue
		}
		out[role] = access
	}
	return out
}

// Lookup returns a copy of the named field.
func (c *Catalog) Lookup(name string) (Field, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.fields[name]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// Pinned reports whether name is a pinned identifier.
func (c *Catalog) Pinned(name string) bool {
	f, ok := c.Lookup(name)
	return ok && f.Pinned
}

// Sensitive reports whether name is a sensitive field.
func (c *Catalog) Sensitive(name string) bool {
	f, ok := c.Lookup(name)
	return ok && f.Sensitive
}

// Names lists every field, core and custom, in lexical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.fields))
	for n := range c.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SafeDefault returns the fixed tier-1 access.  Anything not listed is
// HIDDEN.
func (c *Catalog) SafeDefault(name string, role model.Role) model.FieldAccess {
	f, ok := c.Lookup(name)
	if !ok {
		return model.Hidden
	}
	return f.safe[role]
}

// Defaults returns the field configuration an administrator gets back from
// a reset at tier t.
func (c *Catalog) Defaults(t model.Tier) model.FieldConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg := make(model.FieldConfig)
	for name, f := range c.fields {
		src := f.defaults
		if t <= model.Tier1 {
			src = f.safe
		}
		for _, role := range model.Roles() {
			if a, ok := src[role]; ok {
				cfg[model.FieldKey{Field: name, Role: role}] = a
			}
		}
	}
	return cfg
}

// register adds a custom field.  It returns false if the name is taken.
func (c *Catalog) register(name string, sensitive bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.fields[name]; ok {
		return false
	}
	c.fields[name] = &Field{Name: name, Sensitive: sensitive, Custom: true}
	return true
}

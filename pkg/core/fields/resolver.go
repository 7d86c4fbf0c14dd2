//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package fields resolves per-field visibility and administers the field
// access configuration.
//
// Resolution is a fixed sequence of steps, each of which may only keep or
// tighten the previous result, with the exception of the pinned floor:
//
//  1. Pinned identifiers never resolve below VIEW.
//  2. Tier 1 reads the fixed safe defaults.  Tier 2 and up read the
//     administrator configuration, where an unset cell is HIDDEN.
//  3. A safety flag hides sensitive fields from every restricted role.
//  4. A flag status that could not be determined counts as flagged.
package fields

import (
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core/lookup"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/tier"
)

var logger = logging.GetLogger("accessengine.fields")

const agent = "fields"

// Query is the input of one field resolution.  Flag is the safety flag
// status of the individual, already looked up by the caller; a Query built
// without one resolves as if the individual were flagged.
type Query struct {
	Field     string
	Role      model.Role
	Tier      model.Tier
	Flag      lookup.Result[bool]
	Sensitive bool
}

// Resolver computes field visibility.  It holds no per-request state and is
// safe for concurrent use.
type Resolver struct {
	catalog       *Catalog
	nonRestricted map[model.Role]bool
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithNonRestrictedRoles replaces the set of roles exempt from the safety
// flag override.  The default is Administrator only.
func WithNonRestrictedRoles(roles ...model.Role) ResolverOption {
	return func(r *Resolver) {
		r.nonRestricted = make(map[model.Role]bool, len(roles))
		for _, role := range roles {
			r.nonRestricted[role] = true
		}
	}
}

// NewResolver creates a Resolver over catalog.
func NewResolver(catalog *Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog:       catalog,
		nonRestricted: map[model.Role]bool{model.Administrator: true},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the field catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Restricted reports whether role is subject to the safety flag override.
func (r *Resolver) Restricted(role model.Role) bool {
	return !r.nonRestricted[role]
}

// Resolve returns the access for one field.  cfg is only consulted at tier 2
// and up.
func (r *Resolver) Resolve(cfg model.FieldConfig, q Query) model.FieldAccess {
	access := r.configured(cfg, q)

	if r.catalog.Pinned(q.Field) {
		if access < model.View {
			return model.View
		}
		return access
	}

	if !(q.Sensitive || r.catalog.Sensitive(q.Field)) || !r.Restricted(q.Role) {
		return access
	}

	if q.Flag.Failed() {
		logger.Warnf(agent, "Resolve", "safety flag status unknown, hiding %s: %v", q.Field, q.Flag.Err())
	}
	if q.Flag.Or(true) {
		return model.Hidden
	}
	return access
}

func (r *Resolver) configured(cfg model.FieldConfig, q Query) model.FieldAccess {
	if !q.Role.Valid() {
		return model.Hidden
	}
	if tier.FieldSource(q.Tier) == tier.SafeDefaults {
		return r.catalog.SafeDefault(q.Field, q.Role)
	}
	if a, ok := cfg.Lookup(q.Field, q.Role); ok {
		return a
	}
	return model.Hidden
}

// ResolveAll resolves every name with the role, tier and flag of q.  The
// Field and Sensitive members of q are ignored.
func (r *Resolver) ResolveAll(cfg model.FieldConfig, names []string, q Query) map[string]model.FieldAccess {
	out := make(map[string]model.FieldAccess, len(names))
	for _, name := range names {
		q.Field = name
		q.Sensitive = false
		out[name] = r.Resolve(cfg, q)
	}
	return out
}

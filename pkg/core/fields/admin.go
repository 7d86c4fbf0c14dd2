//
//  Copyright © Manetu Inc. All rights reserved.
//

package fields

import (
	"context"

	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/clock"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/pkg/errors"
)

const configureAction = "fields.configure"

// Admin maintains the administrator field configuration.  Callers check
// that the actor may configure fields before calling.
type Admin struct {
	store   backend.FieldConfigStore
	catalog *Catalog
	audit   accesslog.Stream
	clock   clock.Clock
}

// NewAdmin creates an Admin.
func NewAdmin(store backend.FieldConfigStore, catalog *Catalog, audit accesslog.Stream, clk clock.Clock) *Admin {
	return &Admin{store: store, catalog: catalog, audit: audit, clock: clk}
}

// Config returns the current configuration.
func (a *Admin) Config(ctx context.Context) (model.FieldConfig, error) {
	cfg, err := a.store.FieldConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading field configuration")
	}
	return cfg, nil
}

// SetAccess changes one (field, role) cell.  The tier-1 map is fixed, so the
// change is refused at tier 1.
func (a *Admin) SetAccess(ctx context.Context, actor string, t model.Tier, key model.FieldKey, access model.FieldAccess) error {
	if t <= model.Tier1 {
		return common.NewError(common.CodeFieldConfigLocked, "field configuration is fixed at tier 1")
	}
	f, ok := a.catalog.Lookup(key.Field)
	if !ok {
		return common.NewError(common.CodeNotFound, "unknown field %q", key.Field)
	}
	if !key.Role.Valid() {
		return common.NewError(common.CodeInvalidRequest, "invalid role %s", key.Role)
	}
	if f.Pinned && access < model.View {
		return common.NewError(common.CodeInvalidRequest, "field %q is always visible", key.Field)
	}

	if err := a.store.SetFieldAccess(ctx, key, access); err != nil {
		return errors.Wrap(err, "storing field access")
	}

	a.send(a.event(actor, key.Field, "set").
		With("role", key.Role.String()).
		With("access", access.String()))
	return nil
}

// ResetToDefaults replaces the configuration with the defaults of tier t.
// Custom fields return to HIDDEN.
func (a *Admin) ResetToDefaults(ctx context.Context, actor string, t model.Tier) error {
	cfg := a.catalog.Defaults(t)
	for _, name := range a.catalog.Names() {
		if f, _ := a.catalog.Lookup(name); f.Custom {
			for _, role := range model.Roles() {
				cfg[model.FieldKey{Field: name, Role: role}] = model.Hidden
			}
		}
	}

	if err := a.store.ReplaceFieldConfig(ctx, cfg); err != nil {
		return errors.Wrap(err, "resetting field configuration")
	}

	a.send(a.event(actor, "*", "reset").With("tier", t.String()))
	return nil
}

// RegisterCustomField adds a field that starts HIDDEN for every role.
func (a *Admin) RegisterCustomField(ctx context.Context, actor, name string, sensitive bool) error {
	if name == "" {
		return common.NewError(common.CodeInvalidRequest, "field name is required")
	}
	if !a.catalog.register(name, sensitive) {
		return common.NewError(common.CodeInvalidRequest, "field %q already exists", name)
	}

	for _, role := range model.Roles() {
		if err := a.store.SetFieldAccess(ctx, model.FieldKey{Field: name, Role: role}, model.Hidden); err != nil {
			return errors.Wrap(err, "storing custom field")
		}
	}

	e := a.event(actor, name, "register")
	if sensitive {
		e.With("sensitive", "true")
	}
	a.send(e)
	return nil
}

func (a *Admin) event(actor, field, change string) *accesslog.AuditEvent {
	return accesslog.NewEvent(accesslog.KindFieldsChanged, actor, configureAction, field, a.clock.Now()).With("change", change)
}

func (a *Admin) send(e *accesslog.AuditEvent) {
	if err := a.audit.Send(e); err != nil {
		logger.Errorf(e.Actor, "send", "audit send failed: %v", err)
	}
}

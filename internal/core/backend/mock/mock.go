//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package mock is the backend used when no other is configured.  Its
// directory comes from the mock.directory configuration key and its state
// lives in memory.
//
// Any user, entity or unit whose id contains "networkerror" fails every
// lookup, which lets tests and demos exercise the fail-closed paths.
package mock

import (
	"context"
	"strings"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/backend/local"
	"github.com/caseaccess/accessengine/pkg/core/backend/memory"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/pkg/errors"
)

const (
	mockDirectoryCfg string = "mock.directory"

	faultMarker = "networkerror"
)

var logger = logging.GetLogger("accessengine.backend.mock")
var mockAgent string = "mock"

// Factory ...
type Factory struct {
	directory *local.Directory
}

// Backend wraps a memory store and injects lookup faults.
type Backend struct {
	*memory.Store
}

var _ backend.Service = (*Backend)(nil)

// NewFactory creates a new Factory for the mock backend.
func NewFactory() backend.Factory {
	return &Factory{}
}

// NewDirectoryFactory creates a Factory seeded from d instead of
// configuration.  d must already be validated.
func NewDirectoryFactory(d *local.Directory) backend.Factory {
	return &Factory{directory: d}
}

// NewBackend creates a new mock Backend seeded from configuration.
func (f *Factory) NewBackend() (backend.Service, error) {
	logger.Warn(mockAgent, "Init", "RUNNING IN MOCK MODE. SHOULD NOT BE USED IN PRODUCTION")

	store := memory.New()
	if f.directory != nil {
		f.directory.Seed(store)
	} else if config.VConfig.IsSet(mockDirectoryCfg) {
		var d local.Directory
		if err := config.VConfig.UnmarshalKey(mockDirectoryCfg, &d); err != nil {
			return nil, errors.Wrap(err, "decoding mock directory")
		}
		if err := d.Validate(mockDirectoryCfg); err != nil {
			return nil, err
		}
		d.Seed(store)
	}
	return &Backend{Store: store}, nil
}

func fault(id string) error {
	if strings.Contains(id, faultMarker) {
		return common.NewError(common.CodeNotFound, "network error")
	}
	return nil
}

// Assignments implements [backend.Directory].
func (b *Backend) Assignments(ctx context.Context, userID string) ([]model.Assignment, error) {
	if err := fault(userID); err != nil {
		return nil, err
	}
	return b.Store.Assignments(ctx, userID)
}

// EntityUnits implements [backend.Directory].
func (b *Backend) EntityUnits(ctx context.Context, entityID string) ([]model.UnitID, error) {
	if err := fault(entityID); err != nil {
		return nil, err
	}
	return b.Store.EntityUnits(ctx, entityID)
}

// ConsentScope implements [backend.Directory].
func (b *Backend) ConsentScope(ctx context.Context, unit model.UnitID) (model.ConsentScope, error) {
	if err := fault(string(unit)); err != nil {
		return model.ConsentScope{}, err
	}
	return b.Store.ConsentScope(ctx, unit)
}

// GetFlag implements [backend.FlagStore].
func (b *Backend) GetFlag(ctx context.Context, entityID string) (model.SafetyFlag, error) {
	if err := fault(entityID); err != nil {
		return model.SafetyFlag{}, err
	}
	return b.Store.GetFlag(ctx, entityID)
}

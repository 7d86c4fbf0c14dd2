//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"context"

	"github.com/caseaccess/accessengine/internal/core/metrics"
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/clock"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/consent"
	"github.com/caseaccess/accessengine/pkg/core/fields"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/grants/rediscache"
	"github.com/caseaccess/accessengine/pkg/core/matrix"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/options"
	"github.com/caseaccess/accessengine/pkg/core/safety"
	"github.com/pkg/errors"
)

// AccessEngine composes the pipeline stages over one backend.
type AccessEngine struct {
	audit    accesslog.Stream
	backend  backend.Service
	clock    clock.Clock
	matrix   *matrix.Matrix
	resolver *fields.Resolver
	fields   *fields.Admin
	grants   *grants.Manager
	safety   *safety.Manager
	consent  *consent.Checker
	sweeper  *grants.Sweeper
	auditEnv map[string]string
}

var logger = logging.GetLogger("accessengine")

const agent string = "accessengine"

// NewAccessEngine returns an engine instance.
func NewAccessEngine(engineOptions *options.EngineOptions) (*AccessEngine, error) {
	config.Init()

	clk := engineOptions.Clock
	if clk == nil {
		clk = clock.Real()
	}

	m := engineOptions.Matrix
	if m == nil {
		var err error
		if m, err = loadMatrix(); err != nil {
			return nil, err
		}
	}

	catalog := engineOptions.Catalog
	if catalog == nil {
		var err error
		if catalog, err = loadCatalog(); err != nil {
			return nil, err
		}
	}

	cache := engineOptions.GrantCache
	if cache == nil {
		var err error
		if cache, err = newGrantCache(); err != nil {
			return nil, err
		}
	}

	al, err := engineOptions.AccessLogFactory.NewStream()
	if err != nil {
		return nil, err
	}

	be, err := engineOptions.BackendFactory.NewBackend()
	if err != nil {
		al.Close()
		return nil, err
	}

	var resolverOpts []fields.ResolverOption
	if len(engineOptions.NonRestrictedRoles) > 0 {
		resolverOpts = append(resolverOpts, fields.WithNonRestrictedRoles(engineOptions.NonRestrictedRoles...))
	}

	e := &AccessEngine{
		audit:    al,
		backend:  be,
		clock:    clk,
		matrix:   m,
		resolver: fields.NewResolver(catalog, resolverOpts...),
		fields:   fields.NewAdmin(be, catalog, al, clk),
		grants:   grants.NewManager(be, al, clk, grants.WithCache(cache), grants.WithAuthority(m)),
		consent:  consent.NewChecker(be),
		auditEnv: config.GetAuditEnv(),
	}
	e.safety = safety.NewManager(be, be, safety.MatrixAuthority(m, e.currentTier), al, clk)

	if err := e.seedFieldConfig(context.Background(), catalog); err != nil {
		al.Close()
		return nil, err
	}

	if spec := config.VConfig.GetString(config.GrantSweep); spec != "" {
		s, err := grants.NewSweeper(cache, clk, spec)
		if err != nil {
			al.Close()
			return nil, common.NewError(common.CodeConfiguration, "%v", err)
		}
		s.OnSweep = metrics.GrantsSwept
		s.Start()
		e.sweeper = s
	}

	logger.SysInfof("access engine ready: matrix %q with %d actions, %d fields", m.Name(), len(m.Actions()), len(catalog.Names()))
	return e, nil
}

func loadMatrix() (*matrix.Matrix, error) {
	if path := config.VConfig.GetString(config.MatrixPath); path != "" {
		return matrix.Load(path)
	}
	return matrix.Default()
}

func loadCatalog() (*fields.Catalog, error) {
	if path := config.VConfig.GetString(config.FieldsPath); path != "" {
		return fields.LoadCatalog(path)
	}
	return fields.DefaultCatalog()
}

func newGrantCache() (grants.Cache, error) {
	switch kind := config.VConfig.GetString(config.GrantCache); kind {
	case "none":
		return grants.NoCache(), nil
	case "", "memory":
		return grants.NewMemoryCache(), nil
	case "redis":
		c, err := rediscache.NewFromConfig(context.Background())
		if err != nil {
			return nil, errors.Wrap(err, "connecting to redis grant cache")
		}
		return c, nil
	default:
		return nil, common.NewError(common.CodeConfiguration, "unknown %s %q", config.GrantCache, kind)
	}
}

// seedFieldConfig installs the catalog defaults into an empty store so that
// a fresh deployment at tier 2 starts from the documented defaults rather
// than from all-hidden.
func (e *AccessEngine) seedFieldConfig(ctx context.Context, catalog *fields.Catalog) error {
	cfg, err := e.backend.FieldConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "loading field configuration")
	}
	if len(cfg) > 0 {
		return nil
	}
	return e.backend.ReplaceFieldConfig(ctx, catalog.Defaults(model.Tier2))
}

// Settings returns the stored organisation settings, falling back to the
// configured ones when nothing was stored yet.
func (e *AccessEngine) Settings(ctx context.Context) (model.OrgSettings, error) {
	s, err := e.backend.Settings(ctx)
	if err == nil {
		return s.WithDefaults(), nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return model.OrgSettings{}, err
	}
	return config.OrgSettings()
}

// settingsFor picks the settings of one evaluation.  Settings that cannot
// be loaded resolve to the strictest tier.
func (e *AccessEngine) settingsFor(ctx context.Context, org model.OrgSettings) model.OrgSettings {
	if org.Tier.Valid() {
		return org.WithDefaults()
	}
	s, err := e.Settings(ctx)
	if err != nil {
		logger.Warnf(agent, "settingsFor", "organisation settings unavailable, using tier 3: %v", err)
		return model.OrgSettings{Tier: model.Tier3}.WithDefaults()
	}
	return s
}

// currentTier is the stored organisation tier, used by operations that are
// not handed one.
func (e *AccessEngine) currentTier(ctx context.Context) model.Tier {
	return e.settingsFor(ctx, model.OrgSettings{}).Tier
}

// GetBackend returns the backend service used by this engine.
func (e *AccessEngine) GetBackend() backend.Service {
	return e.backend
}

// Matrix returns the permission matrix in use.
func (e *AccessEngine) Matrix() *matrix.Matrix {
	return e.matrix
}

// Catalog returns the field catalog in use.
func (e *AccessEngine) Catalog() *fields.Catalog {
	return e.resolver.Catalog()
}

// Close stops background work and releases the audit stream.
func (e *AccessEngine) Close() {
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
	if c, ok := e.grants.Cache().(*rediscache.Cache); ok {
		_ = c.Close()
	}
	e.audit.Close()
}

func (e *AccessEngine) send(ev *accesslog.AuditEvent) {
	for k, v := range e.auditEnv {
		ev.With(k, v)
	}
	if err := e.audit.Send(ev); err != nil {
		logger.Errorf(agent, "send", "unable to send message for accesslog %+v", err)
	}
}

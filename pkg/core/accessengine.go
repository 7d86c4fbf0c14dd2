//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package core provides the primary interface for the access engine, which
// decides whether a user may perform an action on an individual's record,
// which fields they see, and which unit-authored content is shown to them.
//
// Decisions combine a fixed role-by-action permission matrix, the
// organisation's enforcement tier, time-boxed grants, safety flags and unit
// consent settings.  Anything that cannot be determined is denied.
//
// # Quick Start
//
// Create an engine with default options (stdout access log, mock backend):
//
//	ae, err := core.NewAccessEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluate an access attempt:
//
//	d, err := ae.Evaluate(ctx, `{
//	    "user_id": "ds-1",
//	    "action": "health.view",
//	    "target": {"entity_id": "ind-1"}
//	}`)
//
// A REQUIRES_JUSTIFICATION decision carries a [grants.Justification].  Once
// the user submits it through [AccessEngine.CreateGrant] the same request is
// allowed until the grant expires or is revoked.
//
// # Configuration
//
// The engine supports various configuration options via functional options:
//
//	ae, err := core.NewAccessEngine(
//	    options.WithBackend(sql.NewFactory(dsn, directory)),
//	    options.WithAccessLog(amqp.NewFactory()),
//	)
//
// # Probe Mode
//
// For UI capabilities discovery without impacting audit logs, use probe mode:
//
//	d, err := ae.Evaluate(ctx, req, options.SetProbeMode(true))
//
// See the [options] package for all available configuration options.
package core

import (
	"context"
	"path/filepath"

	"github.com/caseaccess/accessengine/internal/core"
	"github.com/caseaccess/accessengine/internal/core/backend/mock"
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/common"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/accesslog/amqp"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/backend/local"
	"github.com/caseaccess/accessengine/pkg/core/backend/sql"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/fields"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/matrix"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/options"
	"github.com/caseaccess/accessengine/pkg/core/types"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("accessengine")
var agent = "accessengine"

// AccessEngine is the primary interface for making access decisions and
// administering the state they depend on.
//
// Implementations of AccessEngine are safe for concurrent use by multiple
// goroutines.
type AccessEngine interface {
	// Evaluate decides an access attempt.
	//
	// The request parameter accepts a [types.Request], a JSON string or
	// byte slice, or a map[string]interface{}.
	//
	// Returns an error only if the request is malformed.  Every failure to
	// establish a fact needed for the decision yields DENY.
	Evaluate(ctx context.Context, request types.AnyRequest, evalOptions ...options.EvalOptionsFunc) (*types.Decision, error)

	// ResolveField returns the visibility of one field of an individual's
	// record for a user.
	ResolveField(ctx context.Context, org model.OrgSettings, userID, entityID, field string) model.FieldAccess

	CreateGrant(ctx context.Context, org model.OrgSettings, req grants.Request) (*model.Grant, error)
	RevokeGrant(ctx context.Context, grantID, actor string) error
	ListGrants(ctx context.Context, org model.OrgSettings, viewer string, orgWide bool) ([]grants.Entry, error)

	SetFlag(ctx context.Context, entityID, actor string) (model.SafetyFlag, error)
	RequestFlagRemoval(ctx context.Context, entityID, requester, reason string) (*model.RemovalRequest, error)
	ReviewFlagRemoval(ctx context.Context, requestID, reviewer string, approve bool, note string) (*model.RemovalRequest, error)
	PendingRemovals(ctx context.Context) ([]*model.RemovalRequest, error)
	FlagStatus(ctx context.Context, entityID string) (model.SafetyFlag, error)

	FieldConfig(ctx context.Context) (model.FieldConfig, error)
	SetFieldAccess(ctx context.Context, org model.OrgSettings, actor string, key model.FieldKey, access model.FieldAccess) error
	ResetFieldConfig(ctx context.Context, org model.OrgSettings, actor string, t model.Tier) error
	RegisterCustomField(ctx context.Context, org model.OrgSettings, actor, name string, sensitive bool) error

	// Settings returns the organisation settings in effect when a request
	// does not carry its own.
	Settings(ctx context.Context) (model.OrgSettings, error)
	SetTier(ctx context.Context, actor string, t model.Tier) (model.OrgSettings, error)
	SetReasons(ctx context.Context, actor string, reasons []model.ReasonCode) (model.OrgSettings, error)

	Matrix() *matrix.Matrix
	Catalog() *fields.Catalog

	// GetBackend returns the underlying backend service.
	GetBackend() backend.Service

	// Close stops background work and releases the access log.
	Close()
}

// AccessEngineImpl is the default implementation of the [AccessEngine]
// interface.
//
// AccessEngineImpl wraps the internal engine and can be embedded or wrapped
// by applications that need to extend or customize the engine's behavior.
//
// Use [NewAccessEngine] to create a properly initialized instance.
type AccessEngineImpl struct {
	*core.AccessEngine
}

// NewAccessEngine creates and initializes a new [AccessEngine] instance.
//
// By default, the engine uses a stdout access log.  The backend is chosen
// from configuration: store.driver=postgres selects the [sql] backend,
// otherwise a directory.path selects the [local] backend, and otherwise the
// mock backend is used.
//
// NewAccessEngine loads configuration from environment variables and config
// files before initializing the engine.  See the [config] package for
// details.
func NewAccessEngine(engineOptions ...options.EngineOptionsFunc) (AccessEngine, error) {
	err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	be, err := defaultBackend()
	if err != nil {
		return nil, err
	}

	opts := &options.EngineOptions{
		AccessLogFactory: defaultAccessLog(),
		BackendFactory:   be,
	}
	for _, o := range engineOptions {
		o(opts)
	}

	instance, err := core.NewAccessEngine(opts)
	if err != nil {
		return nil, err
	}

	return &AccessEngineImpl{AccessEngine: instance}, nil
}

// NewLocalAccessEngine creates an engine whose directory is loaded from a
// local YAML file.  Other defaults are inherited from [NewAccessEngine].
func NewLocalAccessEngine(directoryPath string, engineOptions ...options.EngineOptionsFunc) (AccessEngine, error) {
	err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}

	f, err := local.NewFactoryFromFile(directoryPath)
	if err != nil {
		return nil, err
	}

	engineOptions = append([]options.EngineOptionsFunc{options.WithBackend(f)}, engineOptions...)
	return NewAccessEngine(engineOptions...)
}

// defaultAccessLog selects the audit sink named by audit.sink.  Unknown
// sinks fall back to stdout so that no event is silently dropped.
func defaultAccessLog() accesslog.Factory {
	switch sink := config.VConfig.GetString(config.AuditSink); sink {
	case "amqp":
		return amqp.NewFactoryFromConfig()
	case "null":
		return accesslog.NewNullFactory()
	case "", "stdout":
		return accesslog.NewStdoutFactory()
	default:
		logger.SysWarnf("unknown %s %q; using stdout", config.AuditSink, sink)
		return accesslog.NewStdoutFactory()
	}
}

// directoryPath resolves directory.path against the directory of the
// configuration file.
func directoryPath() string {
	p := config.VConfig.GetString(config.DirectoryPath)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if used := config.VConfig.ConfigFileUsed(); used != "" {
		return filepath.Join(filepath.Dir(used), p)
	}
	return p
}

func defaultBackend() (backend.Factory, error) {
	if config.VConfig.GetBool(config.MockEnabled) {
		return mock.NewFactory(), nil
	}

	var directory *local.Directory
	if p := directoryPath(); p != "" {
		d, err := local.Load(p)
		if err != nil {
			return nil, err
		}
		directory = d
	}

	switch driver := config.VConfig.GetString(config.StoreDriver); driver {
	case "postgres":
		logger.SysDebugf("using postgres store")
		return sql.NewFactory(config.VConfig.GetString(config.StoreDSN), directory), nil
	case "", "memory":
		if directory != nil {
			return local.NewFactory(directory), nil
		}
		return mock.NewFactory(), nil
	default:
		return nil, errors.Errorf("unknown %s %q", config.StoreDriver, driver)
	}
}

// Evaluate decides an access attempt.
//
// Evaluation options can modify the behavior:
//
//	// Enable probe mode to skip access logging
//	d, err := ae.Evaluate(ctx, req, options.SetProbeMode(true))
func (ae *AccessEngineImpl) Evaluate(ctx context.Context, request types.AnyRequest, evalOptions ...options.EvalOptionsFunc) (*types.Decision, error) {
	logger.Debug(agent, "Evaluate", "Enter")
	defer logger.Debug(agent, "Evaluate", "Exit")

	opts := &options.EvalOptions{Probe: false}
	for _, o := range evalOptions {
		o(opts)
	}

	req, err := types.UnmarshalRequest(request)
	if err != nil {
		return nil, err
	}
	if logger.IsTraceEnabled() {
		logger.Tracef(agent, "Evaluate", "request: %s", common.PrettyJSON(req))
	}

	d, err := ae.AccessEngine.Evaluate(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	logger.Debugf(agent, "Evaluate", "returned from evaluate(): %s", d.Outcome)

	return d, nil
}

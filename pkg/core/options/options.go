//
//  Copyright © Manetu Inc. All rights reserved.
//
// shared between pkg/core and internal/core, and thus must be in a separate package to avoid circular dependencies

package options

import (
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/backend"
	"github.com/caseaccess/accessengine/pkg/core/clock"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/fields"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/matrix"
	"github.com/caseaccess/accessengine/pkg/core/model"
)

var logger = logging.GetLogger("accessengine")
var agent = "accessengine"

// EngineOptions defines the configuration options for initializing an access engine.
type EngineOptions struct {
	AccessLogFactory accesslog.Factory
	BackendFactory   backend.Factory
	// Matrix and Catalog override the documents named in configuration.
	Matrix  *matrix.Matrix
	Catalog *fields.Catalog
	Clock   clock.Clock
	// GrantCache overrides the grants.cache setting.
	GrantCache         grants.Cache
	NonRestrictedRoles []model.Role
}

// EngineOptionsFunc is a function that modifies EngineOptions.
type EngineOptionsFunc func(*EngineOptions)

// WithAccessLog configures the audit stream for the engine.
func WithAccessLog(factory accesslog.Factory) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.AccessLogFactory = factory
	}
}

// WithBackend configures the backend factory for the engine.
func WithBackend(factory backend.Factory) EngineOptionsFunc {
	return func(o *EngineOptions) {
		if config.VConfig.GetBool(config.MockEnabled) {
			logger.Warn(agent, "WithBackend", "Ignoring backend factory as mock mode is enabled")
		} else {
			o.BackendFactory = factory
		}
	}
}

// WithMatrix uses m instead of the configured permission matrix.
func WithMatrix(m *matrix.Matrix) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Matrix = m
	}
}

// WithCatalog uses c instead of the configured field catalog.
func WithCatalog(c *fields.Catalog) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Catalog = c
	}
}

// WithClock sets the time source used for grant expiry and audit
// timestamps.
func WithClock(c clock.Clock) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.Clock = c
	}
}

// WithGrantCache sets the active-grant cache.
func WithGrantCache(c grants.Cache) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.GrantCache = c
	}
}

// WithNonRestrictedRoles sets the roles that still see sensitive fields of
// flagged individuals.
func WithNonRestrictedRoles(roles ...model.Role) EngineOptionsFunc {
	return func(o *EngineOptions) {
		o.NonRestrictedRoles = roles
	}
}

// EvalOptions represents configuration options for Evaluate operations.
type EvalOptions struct {
	Probe bool
	// ReturnTo is carried into a pending justification so the requester
	// can resume once the grant exists.
	ReturnTo string
}

// EvalOptionsFunc is a function that modifies EvalOptions.
type EvalOptionsFunc func(*EvalOptions)

// SetProbeMode configures the probe mode for Evaluate operations.  Probe mode evaluates the request but does not
// audit it, which is helpful for showing a user which actions are available without impacting the audit trail.
// For instance, a UI may evaluate "health.view" in probe mode to decide whether to render a link.  It would be
// unfair to record that the user attempted to view health data when the service was merely checking.
//
// Probe mode is disabled by default. Use with caution and only in places where you are sure that the decision doesn't
// require logging.
func SetProbeMode(probe bool) EvalOptionsFunc {
	return func(o *EvalOptions) {
		o.Probe = probe
	}
}

// WithReturnTo sets where a pending justification resumes.
func WithReturnTo(path string) EvalOptionsFunc {
	return func(o *EvalOptions) {
		o.ReturnTo = path
	}
}

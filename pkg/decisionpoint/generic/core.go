//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package generic serves the access engine over HTTP.
//
// The routes are:
//
//	POST   /decision                    evaluate a request (?probe=true skips audit)
//	POST   /grants                      submit a justification
//	GET    /grants?viewer=ID[&all=true] list grants
//	DELETE /grants/:id?actor=ID         revoke a grant
//	POST   /flags/:entity               set a safety flag
//	GET    /flags/:entity               read a safety flag
//	POST   /flags/:entity/removals      request removal of a flag
//	GET    /removals                    list pending removal requests
//	POST   /removals/:id/review         approve or reject a removal
//	GET    /fields                      read the field configuration
//	PUT    /fields/:field/:role         change one field cell
//	POST   /fields/reset                restore tier defaults
//	POST   /fields/custom               register a custom field
//	GET    /settings                    read organisation settings
//	PUT    /settings/tier               change the tier
//	PUT    /settings/reasons            replace the reason list
//	GET    /metrics                     prometheus metrics
//	GET    /healthz                     liveness
package generic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/caseaccess/accessengine/internal/core/metrics"
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core"
	"github.com/caseaccess/accessengine/pkg/decisionpoint"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var logger = logging.GetLogger("accessengine.decisionpoint")

const agent string = "generic"

// Server represents a generic decision point server that serves the REST API.
type Server struct {
	echo *echo.Echo
}

// NewHandler builds the routes without starting a listener.
func NewHandler(ae core.AccessEngine) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())

	h := &handlers{ae: ae}

	e.POST("/decision", h.decision)

	e.POST("/grants", h.createGrant)
	e.GET("/grants", h.listGrants)
	e.DELETE("/grants/:id", h.revokeGrant)

	e.POST("/flags/:entity", h.setFlag)
	e.GET("/flags/:entity", h.getFlag)
	e.POST("/flags/:entity/removals", h.requestRemoval)
	e.GET("/removals", h.pendingRemovals)
	e.POST("/removals/:id/review", h.reviewRemoval)

	e.GET("/fields", h.fieldConfig)
	e.PUT("/fields/:field/:role", h.setFieldAccess)
	e.POST("/fields/reset", h.resetFields)
	e.POST("/fields/custom", h.registerField)

	e.GET("/settings", h.settings)
	e.PUT("/settings/tier", h.setTier)
	e.PUT("/settings/reasons", h.setReasons)

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	return e
}

// CreateServer creates and starts a new generic decision point server.
func CreateServer(ae core.AccessEngine, port int) (decisionpoint.Server, error) {
	e := NewHandler(ae)

	// Start server in goroutine since e.Start() blocks
	go func() {
		logger.SysInfof("Starting REST decision point on :%d", port)
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			logger.Fatalf(agent, "echo.start", "Failed to serve REST decision point: %v", err)
		}
	}()

	return &Server{
		echo: e,
	}, nil
}

// Stop gracefully stops the Server by shutting down the Echo HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

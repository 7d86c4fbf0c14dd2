//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package decisionpoint provides interfaces and implementations for
// decision point servers.
//
// A decision point exposes the access engine as a network service that
// enforcement points (an API gateway, a proxy, or the case management
// application itself) call before showing or changing a record.
//
// # Available Implementations
//
// The following server implementations are available:
//   - [generic]: HTTP/REST server for decisions and administration
//   - [envoy]: External authorization server for Envoy proxy
//
// # Usage
//
// Create and start a decision point server:
//
//	ae, _ := core.NewAccessEngine(options.WithBackend(backend))
//	server, _ := generic.CreateServer(ae, 8080)
//	defer server.Stop(ctx)
package decisionpoint

import "context"

// Server is the interface for decision point servers that can be gracefully
// stopped.
//
// Implementations must ensure that [Stop] completes any in-flight requests
// before returning.
type Server interface {
	// Stop gracefully shuts down the server, waiting for active requests
	// to complete or until the context is cancelled.
	Stop(context.Context) error
}

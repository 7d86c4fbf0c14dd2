//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package envoy implements the Envoy external authorization API over the
// access engine.
//
// The enforcement point identifies the attempt with request headers:
//
//	x-ace-user    the acting user
//	x-ace-action  a matrix action, e.g. "health.view"
//	x-ace-entity  the individual whose record is accessed
//	x-ace-tier    optional tier override (1, 2 or 3)
//	x-ace-fields  optional comma separated fields to resolve
//
// x-ace-tier is ignored unless envoy.trust_tier_header is set; otherwise the
// stored organisation tier applies.
// An ALLOW passes the resolved fields upstream in x-ace-fields.  A pending
// justification is answered with 428 and the justification form as body.
package envoy

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/caseaccess/accessengine/pkg/core/model"
	"github.com/caseaccess/accessengine/pkg/core/types"
	"github.com/caseaccess/accessengine/pkg/decisionpoint"
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

var logger = logging.GetLogger("accessengine.decisionpoint")

const agent string = "envoy"

const (
	resultHeader   = "x-ext-authz-check-result"
	receivedHeader = "x-ext-authz-check-received"
	resultAllowed  = "allowed"
	resultDenied   = "denied"

	userHeader    = "x-ace-user"
	actionHeader  = "x-ace-action"
	entityHeader  = "x-ace-entity"
	tierHeader    = "x-ace-tier"
	fieldsHeader  = "x-ace-fields"
	outcomeHeader = "x-ace-outcome"
	grantHeader   = "x-ace-grant"
)

func returnIfNotTooLong(body string) string {
	// Maximum size of a header accepted by Envoy is 60KiB, so when the request body is bigger than 60KB,
	// we don't return it in a response header to avoid rejecting it by Envoy and returning 431 to the client
	if len(body) > 60000 {
		return "<too-long>"
	}
	return body
}

// ExtAuthzServer implements the ext_authz v3 gRPC check request API.
type ExtAuthzServer struct {
	grpcServer *grpc.Server
	ae         core.AccessEngine
	mu         sync.Mutex
	trustTier  bool

	// For test only
	grpcPort chan int
}

func logRequest(result string, request *authv3.CheckRequest) {
	httpAttrs := request.GetAttributes().GetRequest().GetHttp()
	logger.Tracef(agent, "logRequest", "[gRPCv3][%s]: %s%s, attributes: %v", result, httpAttrs.GetHost(),
		httpAttrs.GetPath(),
		request.GetAttributes())
}

func header(key, value string) *corev3.HeaderValueOption {
	return &corev3.HeaderValueOption{
		Header: &corev3.HeaderValue{Key: key, Value: value},
	}
}

// toRequest maps the check request headers to an access request.  The tier
// header is only read when trustTier is set.
func toRequest(request *authv3.CheckRequest, trustTier bool) (*types.Request, error) {
	headers := request.GetAttributes().GetRequest().GetHttp().GetHeaders()

	req := &types.Request{
		UserID: headers[userHeader],
		Action: model.Action(headers[actionHeader]),
		Target: types.Target{EntityID: headers[entityHeader]},
	}
	if v, ok := headers[tierHeader]; ok && !trustTier {
		logger.Debugf(req.UserID, "toRequest", "ignoring untrusted %s header %q", tierHeader, v)
	} else if ok {
		t, err := model.ParseTier(v)
		if err != nil {
			return nil, err
		}
		req.Org.Tier = t
	}
	if v := headers[fieldsHeader]; v != "" {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.Target.Fields = append(req.Target.Fields, f)
			}
		}
	}
	return req, nil
}

func (s *ExtAuthzServer) allow(request *authv3.CheckRequest, d *types.Decision) *authv3.CheckResponse {
	logRequest(resultAllowed, request)

	headers := []*corev3.HeaderValueOption{
		header(resultHeader, resultAllowed),
		header(outcomeHeader, string(d.Outcome)),
		header(receivedHeader, returnIfNotTooLong(request.GetAttributes().String())),
	}
	if len(d.Fields) > 0 {
		if b, err := json.Marshal(d.Fields); err == nil {
			headers = append(headers, header(fieldsHeader, returnIfNotTooLong(string(b))))
		}
	}
	if d.Grant != nil {
		headers = append(headers, header(grantHeader, d.Grant.ID))
	}

	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{Headers: headers},
		},
		Status: &status.Status{Code: int32(codes.OK)},
	}
}

func (s *ExtAuthzServer) deny(request *authv3.CheckRequest, code typev3.StatusCode, body string, outcome types.Outcome) *authv3.CheckResponse {
	logRequest(resultDenied, request)
	return &authv3.CheckResponse{
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status: &typev3.HttpStatus{Code: code},
				Body:   body,
				Headers: []*corev3.HeaderValueOption{
					header(resultHeader, resultDenied),
					header(outcomeHeader, string(outcome)),
					header(receivedHeader, returnIfNotTooLong(request.GetAttributes().String())),
				},
			},
		},
		Status: &status.Status{Code: int32(codes.PermissionDenied)},
	}
}

// Check implements gRPC v3 check request.  Malformed requests are denied
// rather than failed so that Envoy never falls back to its own default.
func (s *ExtAuthzServer) Check(ctx context.Context, request *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	req, err := toRequest(request, s.trustTier)
	if err != nil {
		logger.Debugf(agent, "Check", "bad request headers: %v", err)
		return s.deny(request, typev3.StatusCode_BadRequest, "bad request", types.Deny), nil
	}

	d, err := s.ae.Evaluate(ctx, req)
	if err != nil {
		logger.Debugf(agent, "Check", "invalid request: %v", err)
		return s.deny(request, typev3.StatusCode_BadRequest, "bad request", types.Deny), nil
	}

	switch d.Outcome {
	case types.Allow:
		return s.allow(request, d), nil
	case types.RequiresJustification:
		body, err := json.Marshal(d.Justification)
		if err != nil {
			return nil, err
		}
		return s.deny(request, typev3.StatusCode_PreconditionRequired, string(body), d.Outcome), nil
	default:
		return s.deny(request, typev3.StatusCode_Forbidden, "permission denied", types.Deny), nil
	}
}

func (s *ExtAuthzServer) startGRPC(address string, wg *sync.WaitGroup) {
	logger.Infof(agent, "start", "Starting Envoy External Authorization gRPC server on %s", address)
	defer func() {
		wg.Done()
		logger.SysInfof("Stopped gRPC server")
	}()

	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.Fatalf(agent, "net.listen", "Failed to start gRPC server: %v", err)
		return
	}

	s.mu.Lock()
	s.grpcServer = grpc.NewServer()
	authv3.RegisterAuthorizationServer(s.grpcServer, s)
	srv := s.grpcServer
	s.mu.Unlock()

	// Store the port for test only. Must be after grpcServer is set to avoid race condition.
	s.grpcPort <- listener.Addr().(*net.TCPAddr).Port

	logger.SysInfof("Starting gRPC server at %s", listener.Addr())
	if err := srv.Serve(listener); err != nil {
		logger.Fatalf(agent, "grpc.start", "Failed to serve gRPC server: %v", err)
		return
	}
}

func (s *ExtAuthzServer) run(grpcAddr string) {
	var wg sync.WaitGroup
	wg.Add(1)
	go s.startGRPC(grpcAddr, &wg)
	wg.Wait()
}

// CreateServer creates and starts a new Envoy External Authorization server.
func CreateServer(ae core.AccessEngine, port int) (decisionpoint.Server, error) {
	config.Init()
	s := &ExtAuthzServer{
		grpcPort:  make(chan int, 1),
		ae:        ae,
		trustTier: config.VConfig.GetBool(config.EnvoyTrustTierHeader),
	}
	if s.trustTier {
		logger.SysWarnf("%s is set: callers may choose the tier", config.EnvoyTrustTierHeader)
	}

	go s.run(fmt.Sprintf(":%d", port))

	return s, nil
}

// Stop gracefully stops the ExtAuthzServer by stopping the underlying gRPC server.
func (s *ExtAuthzServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.grpcServer
	s.mu.Unlock()

	if srv != nil {
		srv.GracefulStop()
	}
	logger.SysInfof("GRPC server stopped")

	return nil
}

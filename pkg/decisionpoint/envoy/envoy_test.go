//
//  Copyright © Manetu Inc. All rights reserved.
//

package envoy

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	testlog "github.com/caseaccess/accessengine/internal/core/accesslog"
	"github.com/caseaccess/accessengine/internal/core/test"
	"github.com/caseaccess/accessengine/pkg/core"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/grants"
	"github.com/caseaccess/accessengine/pkg/core/model"
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
)

func setupTestAccessEngine(t *testing.T) (core.AccessEngine, chan *accesslog.AuditEvent) {
	ae, ch, err := test.NewTestAccessEngine(1024)
	require.NoError(t, err)
	require.NotNil(t, ae)
	t.Cleanup(ae.Close)
	return ae, ch
}

func checkRequest(headers map[string]string) *authv3.CheckRequest {
	return &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Host:    "localhost",
					Path:    "/individuals",
					Method:  "GET",
					Headers: headers,
				},
			},
		},
	}
}

func headerValue(headers []*corev3.HeaderValueOption, key string) (string, bool) {
	for _, h := range headers {
		if h.Header.Key == key {
			return h.Header.Value, true
		}
	}
	return "", false
}

// waitForServer waits for the server to be ready by checking the grpcPort channel
func waitForServer(t *testing.T, server *ExtAuthzServer, timeout time.Duration) int {
	select {
	case port := <-server.grpcPort:
		// Give server a moment to fully start
		time.Sleep(200 * time.Millisecond)
		return port
	case <-time.After(timeout):
		t.Fatal("Server failed to start within timeout")
		return 0
	}
}

func TestToRequest(t *testing.T) {
	headers := map[string]string{
		userHeader:   "ds-1",
		actionHeader: "individual.view",
		entityHeader: "ind-1",
		tierHeader:   "2",
		fieldsHeader: "phone, diagnosis,,",
	}
	req, err := toRequest(checkRequest(headers), false)
	require.NoError(t, err)
	assert.Equal(t, "ds-1", req.UserID)
	assert.Equal(t, model.Action("individual.view"), req.Action)
	assert.Equal(t, "ind-1", req.Target.EntityID)
	assert.False(t, req.Org.Tier.Valid(), "untrusted tier header is ignored")
	assert.Equal(t, []string{"phone", "diagnosis"}, req.Target.Fields)

	req, err = toRequest(checkRequest(headers), true)
	require.NoError(t, err)
	assert.Equal(t, model.Tier2, req.Org.Tier)

	_, err = toRequest(checkRequest(map[string]string{tierHeader: "7"}), true)
	assert.Error(t, err)
	_, err = toRequest(checkRequest(map[string]string{tierHeader: "7"}), false)
	assert.NoError(t, err)
}

func TestTierHeaderCannotRelaxGating(t *testing.T) {
	ae, _ := setupTestAccessEngine(t)
	ctx := context.Background()
	relax := map[string]string{
		userHeader: "ds-1", actionHeader: "health.view", entityHeader: "ind-1", tierHeader: "1",
	}

	s := &ExtAuthzServer{ae: ae}
	resp, err := s.Check(ctx, checkRequest(relax))
	require.NoError(t, err)
	denied := resp.GetDeniedResponse()
	require.NotNil(t, denied)
	assert.Equal(t, typev3.StatusCode_PreconditionRequired, denied.Status.Code)

	trusted := &ExtAuthzServer{ae: ae, trustTier: true}
	resp, err = trusted.Check(ctx, checkRequest(relax))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.OK), resp.Status.Code)
}

func TestCheckOutcomes(t *testing.T) {
	ae, _ := setupTestAccessEngine(t)
	s := &ExtAuthzServer{ae: ae}
	ctx := context.Background()

	resp, err := s.Check(ctx, checkRequest(map[string]string{
		userHeader: "ds-1", actionHeader: "individual.view", entityHeader: "ind-1", fieldsHeader: "phone",
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.OK), resp.Status.Code)
	ok := resp.GetOkResponse()
	require.NotNil(t, ok)
	v, found := headerValue(ok.Headers, resultHeader)
	assert.True(t, found)
	assert.Equal(t, resultAllowed, v)
	v, _ = headerValue(ok.Headers, fieldsHeader)
	assert.JSONEq(t, `{"phone":"EDIT"}`, v)

	resp, err = s.Check(ctx, checkRequest(map[string]string{
		userHeader: "fd-1", actionHeader: "health.view", entityHeader: "ind-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.PermissionDenied), resp.Status.Code)
	denied := resp.GetDeniedResponse()
	require.NotNil(t, denied)
	assert.Equal(t, typev3.StatusCode_Forbidden, denied.Status.Code)
	assert.Equal(t, "permission denied", denied.Body)

	resp, err = s.Check(ctx, checkRequest(map[string]string{
		userHeader: "ds-1", actionHeader: "health.view", entityHeader: "ind-1",
	}))
	require.NoError(t, err)
	denied = resp.GetDeniedResponse()
	require.NotNil(t, denied)
	assert.Equal(t, typev3.StatusCode_PreconditionRequired, denied.Status.Code)
	var j grants.Justification
	require.NoError(t, json.Unmarshal([]byte(denied.Body), &j))
	assert.Equal(t, "ds-1", j.RequesterID)
	assert.NotEmpty(t, j.ScopeOptions)

	resp, err = s.Check(ctx, checkRequest(map[string]string{userHeader: "ds-1"}))
	require.NoError(t, err)
	assert.Equal(t, typev3.StatusCode_BadRequest, resp.GetDeniedResponse().Status.Code)
}

func TestCheckWithGrant(t *testing.T) {
	ae, ch := setupTestAccessEngine(t)
	s := &ExtAuthzServer{ae: ae}
	ctx := context.Background()

	org, err := ae.Settings(ctx)
	require.NoError(t, err)
	g, err := ae.CreateGrant(ctx, org, grants.Request{
		RequesterID:   "ds-1",
		Scope:         model.GrantScope{Kind: model.ScopeProgram, ID: "p1"},
		Action:        "health.view",
		ReasonCode:    "care-coordination",
		Justification: "program review",
	})
	require.NoError(t, err)
	testlog.Drain(ch)

	resp, err := s.Check(ctx, checkRequest(map[string]string{
		userHeader: "ds-1", actionHeader: "health.view", entityHeader: "ind-both",
	}))
	require.NoError(t, err)
	ok := resp.GetOkResponse()
	require.NotNil(t, ok)
	v, _ := headerValue(ok.Headers, grantHeader)
	assert.Equal(t, g.ID, v)

	events := testlog.Drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, accesslog.KindGrantAccess, events[0].Kind)
}

func TestEnvoyServer_gRPC(t *testing.T) {
	ae, _ := setupTestAccessEngine(t)

	server, err := CreateServer(ae, 0)
	require.NoError(t, err)
	require.NotNil(t, server)

	extAuthzServer := server.(*ExtAuthzServer)
	actualPort := waitForServer(t, extAuthzServer, 5*time.Second)
	assert.NotEqual(t, 0, actualPort)

	conn, err := grpc.NewClient(
		fmt.Sprintf("localhost:%d", actualPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := authv3.NewAuthorizationClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, checkRequest(map[string]string{
		userHeader: "pm-1", actionHeader: "individual.edit", entityHeader: "ind-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.OK), resp.Status.Code)

	resp, err = client.Check(ctx, checkRequest(map[string]string{
		userHeader: "pm-1", actionHeader: "individual.edit", entityHeader: "ind-networkerror",
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(codes.PermissionDenied), resp.Status.Code)

	assert.NoError(t, server.Stop(ctx))
}

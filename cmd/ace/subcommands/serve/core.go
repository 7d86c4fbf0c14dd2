//
//  Copyright © Manetu Inc. All rights reserved.
//

package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/caseaccess/accessengine/cmd/ace/common"
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/decisionpoint"
	"github.com/caseaccess/accessengine/pkg/decisionpoint/envoy"
	"github.com/caseaccess/accessengine/pkg/decisionpoint/generic"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("accessengine")

const agent string = "serve"

// Execute runs the serve command, starting a decision point server based on the configured protocol.
// It supports both "generic" and "envoy" protocols and gracefully shuts down on interrupt signals.
func Execute(ctx context.Context, cmd *cli.Command) error {
	port := cmd.Int("port")

	ae, err := common.NewCliAccessEngine(cmd, os.Stdout)
	if err != nil {
		return err
	}
	defer ae.Close()

	var server decisionpoint.Server
	switch cmd.String("protocol") {
	case "generic":
		server, err = generic.CreateServer(ae, port)
	case "envoy":
		server, err = envoy.CreateServer(ae, port)
	}
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info(agent, "shutdown", "Shutting down server...")

	err = server.Stop(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}

//
//  Copyright © Manetu Inc. All rights reserved.
//

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/caseaccess/accessengine/cmd/ace/common"
	"github.com/caseaccess/accessengine/cmd/ace/subcommands/check"
	"github.com/caseaccess/accessengine/cmd/ace/subcommands/decision"
	"github.com/caseaccess/accessengine/cmd/ace/subcommands/serve"
	"github.com/caseaccess/accessengine/cmd/ace/version"
	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("ace")

// loadDotEnv exports the variables of ./.env, if present, so ACE_* settings
// can live next to the binary during development.
func loadDotEnv() {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		logger.SysDebugf("No .env file found, skipping environment variable loading")
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Fatalf("Failed to load environment variables: %v", err)
	}
}

func main() {
	loadDotEnv()

	cmd := &cli.Command{
		Name:    "ace",
		Usage:   "A CLI application for working with the case-management access engine",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "trace",
				Aliases: []string{"t"},
				Usage:   "Write audit events to stderr for commands that evaluate requests",
				Value:   logger.IsTraceEnabled(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "decision",
				Usage: "Evaluates a JSON access request and prints the decision",
				Flags: append(common.EngineFlags(),
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Load the request from 'FILE', or use '-' for stdin",
					},
					&cli.BoolFlag{
						Name:  "probe",
						Usage: "Evaluate without recording access or audit events",
					},
					&cli.StringFlag{
						Name:  "return-to",
						Usage: "Location carried in a justification prompt",
					},
				),
				Action: decision.Execute,
			},
			{
				Name:  "check",
				Usage: "Validates permission matrix, field catalog and directory documents",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "matrix",
						Aliases: []string{"m"},
						Usage:   "Permission matrix `FILE`.  Can be specified multiple times.",
					},
					&cli.StringSliceFlag{
						Name:    "fields",
						Aliases: []string{"f"},
						Usage:   "Field catalog `FILE`.  Can be specified multiple times.",
					},
					&cli.StringSliceFlag{
						Name:    "directory",
						Aliases: []string{"d"},
						Usage:   "Directory `FILE`.  Can be specified multiple times.",
					},
				},
				Action: check.Execute,
			},
			{
				Name:  "serve",
				Usage: "Creates a decision-point service",
				Flags: append(common.EngineFlags(),
					&cli.IntFlag{
						Name:  "port",
						Usage: "The TCP port to serve on.",
						Value: 9000,
					},
					&cli.StringFlag{
						Name:    "protocol",
						Aliases: []string{"p"},
						Usage:   "The protocol to serve.  Must be one of 'generic' or 'envoy'",
						Value:   "generic",
						Action: func(ctx context.Context, command *cli.Command, s string) error {
							if s != "generic" && s != "envoy" {
								return fmt.Errorf("unsupported protocol: %s", s)
							}
							return nil
						},
					},
				),
				Action: serve.Execute,
			},
			{
				Name:  "version",
				Usage: "Prints the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintln(cmd.Root().Writer, version.GetVersion())
					return err
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

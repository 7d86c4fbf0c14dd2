//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"io"
	"os"

	"github.com/caseaccess/accessengine/pkg/core"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/fields"
	"github.com/caseaccess/accessengine/pkg/core/matrix"
	"github.com/caseaccess/accessengine/pkg/core/options"
	"github.com/urfave/cli/v3"
)

// NewCliAccessEngine creates an engine from the --matrix, --fields and
// --directory flags of cmd.  Flags left empty fall back to configuration.
// Audit events are written to stdout.
func NewCliAccessEngine(cmd *cli.Command, stdout io.Writer) (core.AccessEngine, error) {
	opts := []options.EngineOptionsFunc{
		options.WithAccessLog(accesslog.NewIoWriterFactory(stdout)),
	}

	if p := cmd.String("matrix"); p != "" {
		m, err := matrix.Load(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, options.WithMatrix(m))
	}

	if p := cmd.String("fields"); p != "" {
		c, err := fields.LoadCatalog(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, options.WithCatalog(c))
	}

	if p := cmd.String("directory"); p != "" {
		return core.NewLocalAccessEngine(p, opts...)
	}
	return core.NewAccessEngine(opts...)
}

// ReadInput returns the contents of path, or of stdin when path is "-" or
// empty.
func ReadInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
}

// EngineFlags are the flags understood by [NewCliAccessEngine].
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "matrix",
			Aliases: []string{"m"},
			Usage:   "Load the permission matrix from `FILE` instead of the built-in one",
		},
		&cli.StringFlag{
			Name:    "fields",
			Aliases: []string{"f"},
			Usage:   "Load the field catalog from `FILE` instead of the built-in one",
		},
		&cli.StringFlag{
			Name:    "directory",
			Aliases: []string{"d"},
			Usage:   "Load units, assignments and entity membership from `FILE`",
		},
	}
}

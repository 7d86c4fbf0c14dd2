//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package check validates the documents that configure the engine before
// they are deployed.
package check

import (
	"context"
	"fmt"
	"io"

	"github.com/caseaccess/accessengine/pkg/core/backend/local"
	"github.com/caseaccess/accessengine/pkg/core/fields"
	"github.com/caseaccess/accessengine/pkg/core/matrix"
	"github.com/urfave/cli/v3"
)

type document struct {
	kind  string
	paths []string
	load  func(string) error
}

// Execute validates every --matrix, --fields and --directory file and
// reports each one.  It fails when any document is invalid.
func Execute(ctx context.Context, cmd *cli.Command) error {
	return run(cmd.Root().Writer, documents(cmd))
}

func documents(cmd *cli.Command) []document {
	return []document{
		{
			kind:  "matrix",
			paths: cmd.StringSlice("matrix"),
			load: func(p string) error {
				_, err := matrix.Load(p)
				return err
			},
		},
		{
			kind:  "fields",
			paths: cmd.StringSlice("fields"),
			load: func(p string) error {
				_, err := fields.LoadCatalog(p)
				return err
			},
		},
		{
			kind:  "directory",
			paths: cmd.StringSlice("directory"),
			load: func(p string) error {
				_, err := local.Load(p)
				return err
			},
		},
	}
}

func run(out io.Writer, docs []document) error {
	total := 0
	failed := 0
	for _, d := range docs {
		for _, p := range d.paths {
			total++
			if err := d.load(p); err != nil {
				failed++
				_, _ = fmt.Fprintf(out, "%s %s: FAIL\n%v\n", d.kind, p, err)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s %s: OK\n", d.kind, p)
		}
	}

	if total == 0 {
		return fmt.Errorf("nothing to check; specify --matrix, --fields or --directory")
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d/%d documents invalid", failed, total), 1)
	}
	return nil
}

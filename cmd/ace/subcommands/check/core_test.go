//
//  Copyright © Manetu Inc. All rights reserved.
//

package check

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// buildCheckTestCommand returns a command tree whose exit codes are
// returned rather than passed to os.Exit.
func buildCheckTestCommand(out *bytes.Buffer) *cli.Command {
	return &cli.Command{
		Name:           "ace",
		Writer:         out,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			{
				Name: "check",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "matrix", Aliases: []string{"m"}},
					&cli.StringSliceFlag{Name: "fields", Aliases: []string{"f"}},
					&cli.StringSliceFlag{Name: "directory", Aliases: []string{"d"}},
				},
				Action: Execute,
			},
		},
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const badMatrix = `apiVersion: accessengine/v1
kind: PermissionMatrix
spec:
  actions:
    - name: health.view
      states:
        FrontDesk: MAYBE
`

func TestCheckValidDocuments(t *testing.T) {
	directory := filepath.Join("..", "..", "..", "..", "testdata", "directory.yaml")

	var out bytes.Buffer
	err := buildCheckTestCommand(&out).Run(context.Background(), []string{"ace", "check", "-d", directory})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "directory "+directory+": OK")
}

func TestCheckReportsEveryFailure(t *testing.T) {
	directory := filepath.Join("..", "..", "..", "..", "testdata", "directory.yaml")
	matrix := writeFile(t, "matrix.yaml", badMatrix)
	catalog := writeFile(t, "fields.yaml", "{{{")

	var out bytes.Buffer
	err := buildCheckTestCommand(&out).Run(context.Background(),
		[]string{"ace", "check", "-m", matrix, "-f", catalog, "-d", directory})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2/3 documents invalid")

	report := out.String()
	assert.Contains(t, report, "matrix "+matrix+": FAIL")
	assert.Contains(t, report, "unknown policy state")
	assert.Contains(t, report, "fields "+catalog+": FAIL")
	assert.Contains(t, report, "directory "+directory+": OK")
}

func TestCheckNothing(t *testing.T) {
	err := run(&bytes.Buffer{}, nil)
	assert.Error(t, err)
}

func TestCheckMissingFile(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, []document{{
		kind:  "matrix",
		paths: []string{filepath.Join(t.TempDir(), "missing.yaml")},
		load: func(string) error {
			return os.ErrNotExist
		},
	}})
	require.Error(t, err)
	assert.Contains(t, out.String(), "FAIL")
}

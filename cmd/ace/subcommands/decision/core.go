//
//  Copyright © Manetu Inc. All rights reserved.
//

package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/caseaccess/accessengine/cmd/ace/common"
	"github.com/caseaccess/accessengine/pkg/core/options"
	"github.com/urfave/cli/v3"
)

// Execute evaluates one JSON request read from --input and prints the
// decision.  Audit events go to stderr when --trace is set and are
// discarded otherwise.
func Execute(ctx context.Context, cmd *cli.Command) error {
	input, err := common.ReadInput(cmd.String("input"), os.Stdin)
	if err != nil {
		return err
	}

	auditWriter := io.Discard
	if cmd.Root().Bool("trace") {
		auditWriter = os.Stderr
	}

	ae, err := common.NewCliAccessEngine(cmd, auditWriter)
	if err != nil {
		return err
	}
	defer ae.Close()

	var evalOpts []options.EvalOptionsFunc
	if cmd.Bool("probe") {
		evalOpts = append(evalOpts, options.SetProbeMode(true))
	}
	if r := cmd.String("return-to"); r != "" {
		evalOpts = append(evalOpts, options.WithReturnTo(r))
	}

	decision, err := ae.Evaluate(ctx, string(input), evalOpts...)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, string(out))
	return err
}

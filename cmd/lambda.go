package cmd

import (
	"github.com/isometry/gh-approval-gate/internal/runtime"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var gateRuntime *runtime.Runtime

func cmdLambda() *cobra.Command {
	cmd := &cobra.Command{
		Use: "lambda",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger = logger.With("mode", "lambda")

			logger.Debug("creating approval handler...")
			hdl, err := newHandler(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "failed to create approval handler")
			}
			logger.Debug("creating runtime...")
			gateRuntime = runtime.NewRuntime(hdl,
				runtime.WithLogger(logger.With("component", "runtime")))
			return nil
		},
	}

	cmd.AddCommand(
		cmdLambdaHTTP(),
		cmdLambdaEvent(),
	)

	bindEnvMap(cmd, lambdaEnvMapString)

	return cmd
}

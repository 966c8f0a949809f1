package commands

import (
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/protocol"
)

func newSetCommand() *cobra.Command {
	var (
		inputJSON string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "set <type>",
		Short: "Converge one unit to its desired state",
		Long: `Converge the unit described by the payload to its desired state.

The engine observes the current state first and only applies a change when
the unit is out of desired state. An already-converged unit is a no-op and
produces no result document. A payload with "_exist": false removes the
unit instead.

The result document reports the state before the change, the state after,
and the properties that changed. When the change needs a dependent system
restarted, the after state carries "_restartRequired" hints.`,
		Example: `  # Desired state inline
  converge set test.sentinel --input '{"name":"alpha","value":"on"}'

  # Desired state from a file
  converge set sql.login --file login.yaml

  # Remove a unit through set
  converge set remote.file --input '{"host":"web1","path":"/etc/app.conf","_exist":false}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return wrapStartup(err)
			}
			defer a.Close()

			res, table, err := a.resolve(ctx, args[0])
			if err != nil {
				return table.WrapExit(err)
			}

			payload, err := protocol.ResolveInput(inputJSON, inputFile, cmd.InOrStdin())
			if err != nil {
				return table.WrapExit(err)
			}

			result, err := a.runner.Set(ctx, res, payload)
			if err != nil {
				return table.WrapExit(err)
			}
			if result.NoOp {
				a.tel.Logger.WithResourceType(args[0]).Info("Already in desired state, nothing to do")
				return nil
			}
			return table.WrapExit(protocol.NewEncoder(cmd.OutOrStdout()).EncodeSetResult(result))
		},
	}

	cmd.Flags().StringVarP(&inputJSON, "input", "i", "", "inline JSON payload")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "payload file (JSON or YAML)")

	return cmd
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/protocol"
)

func newTestCommand() *cobra.Command {
	var (
		inputJSON string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "test <type>",
		Short: "Check whether one unit matches its desired state",
		Long: `Compare the unit's actual state against the desired state in the
payload and report the verdict without changing anything.

The result document is the actual state annotated with "_inDesiredState".
Only properties present in the desired state are compared; set-valued
properties match when the desired entries are present, unless the payload
declares "_purge": true for an exact match.`,
		Example: `  # Verify a sentinel
  converge test test.sentinel --input '{"name":"alpha","value":"on"}'

  # Verify a login from a file
  converge test sql.login --file login.yaml`,
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

			result, err := a.runner.Test(ctx, res, payload)
			if err != nil {
				return table.WrapExit(err)
			}
			return table.WrapExit(protocol.NewEncoder(cmd.OutOrStdout()).EncodeInstance(result))
		},
	}

	cmd.Flags().StringVarP(&inputJSON, "input", "i", "", "inline JSON payload")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "payload file (JSON or YAML)")

	return cmd
}

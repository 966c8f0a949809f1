package commands

import (
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/protocol"
)

func newGetCommand() *cobra.Command {
	var (
		inputJSON string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "get <type>",
		Short: "Read the actual state of one unit",
		Long: `Read the actual state of the unit addressed by the payload's
identifying properties.

A unit that does not exist is not a failure: the result document carries
"_exist": false together with the identifying properties. Write-only
properties never appear in the result.`,
		Example: `  # Address inline
  converge get test.sentinel --input '{"name":"alpha"}'

  # Address from a file (JSON or YAML)
  converge get sql.login --file login.yaml

  # Address on standard input
  echo '{"host":"web1","path":"/etc/app.conf"}' | converge get remote.file`,
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

			result, err := a.runner.Get(ctx, res, payload)
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

package commands

import (
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/protocol"
)

func newDeleteCommand() *cobra.Command {
	var (
		inputJSON string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:   "delete <type>",
		Short: "Drive one unit to absence",
		Long: `Remove the unit addressed by the payload's identifying properties.

Deleting a unit that does not exist is success: the operation converges on
absence either way. Delete emits no result document.`,
		Example: `  # Delete a sentinel
  converge delete test.sentinel --input '{"name":"alpha"}'

  # Delete a remote file
  converge delete remote.file --input '{"host":"web1","path":"/etc/app.conf"}'`,
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

			return table.WrapExit(a.runner.Delete(ctx, res, payload))
		},
	}

	cmd.Flags().StringVarP(&inputJSON, "input", "i", "", "inline JSON payload")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "payload file (JSON or YAML)")

	return cmd
}

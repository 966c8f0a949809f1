package commands

import (
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/engine"
	"github.com/openconverge/converge/pkg/protocol"
)

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <type>",
		Short: "Enumerate every existing unit",
		Long: `Enumerate every existing unit of the resource type as full
instances, one result document per line.

Export takes no payload. Write-only properties never appear in the output,
so an exported document can be fed back into set as-is. Types that cannot
enumerate their units, such as remote.file, reject export with the
invalid-operation exit code.`,
		Example: `  # Export all sentinels
  converge export test.sentinel

  # Export all logins
  converge export sql.login`,
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

			enc := protocol.NewEncoder(cmd.OutOrStdout())
			err = a.runner.Export(ctx, res, func(in *engine.Instance) error {
				return enc.EncodeInstance(in)
			})
			return table.WrapExit(err)
		},
	}

	return cmd
}

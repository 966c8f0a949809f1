package commands

import (
	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/protocol"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the resource types this binary serves",
		Long: `List every registered resource type with its version, supported
operations, and exit-code table, one JSON document per line, sorted by
type name.`,
		Example: `  # List all types
  converge list

  # Pretty-print with jq
  converge list | jq .`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return wrapStartup(err)
			}
			defer a.Close()

			enc := protocol.NewEncoder(cmd.OutOrStdout())
			for _, info := range a.registry.List() {
				res, err := a.registry.Get(info.Name)
				if err != nil {
					return wrapStartup(err)
				}
				if err := enc.EncodeTypeDescriptor(protocol.DescribeType(res)); err != nil {
					return wrapStartup(err)
				}
			}
			return nil
		},
	}

	return cmd
}

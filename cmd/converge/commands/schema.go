package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/engine"
	"github.com/openconverge/converge/pkg/protocol"
)

func newSchemaCommand() *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "schema <type>",
		Short: "Print the property contract of a resource type",
		Long: `Print the machine-readable schema document of a resource type.

The document is JSON-Schema shaped: property types, enums, patterns,
required and identifying properties, and the injected control properties
(_exist, _purge, _inDesiredState, _restartRequired). Hosts use it to
validate desired state before invoking an operation.`,
		Example: `  # Print the sql.login contract
  converge schema sql.login

  # Indented, for reading
  converge schema fs.archive --pretty`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return wrapStartup(err)
			}
			defer a.Close()

			// The schema is static; no backend preparation needed.
			res, err := a.registry.Get(args[0])
			if err != nil {
				return wrapStartup(err)
			}
			table := res.TypeInfo().ExitTableOrDefault()

			doc := res.Schema().Document()
			if pretty {
				data, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return table.WrapExit(engine.NewGenericError("failed to marshal schema document", err))
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return table.WrapExit(err)
			}
			return table.WrapExit(protocol.NewEncoder(cmd.OutOrStdout()).EncodeSchemaDocument(doc))
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the document for reading")

	return cmd
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openconverge/converge/pkg/engine"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonLog    bool

	// appVersion feeds the telemetry service version.
	appVersion = "dev"
)

// Execute runs the root command. Failed invocations return errors carrying
// their process exit code.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	appVersion = version
	return runRoot(ctx, newRootCommand(version, commit, buildDate))
}

// runRoot executes the command tree. An error that never resolved against an
// exit table is command-line misuse and maps to invalid-argument.
func runRoot(ctx context.Context, rootCmd *cobra.Command) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var xe *engine.ExitError
		if !errors.As(err, &xe) {
			return engine.DefaultExitTable().WrapExit(engine.NewInvalidArgumentError(err.Error(), err))
		}
		return err
	}
	return nil
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "converge",
		Short: "Converge - declarative resource convergence runtime",
		Long: `Converge manages units of infrastructure state through five uniform
operations: get, set, test, delete, and export.

A process serves exactly one operation against one resource type and exits.
Desired state arrives as a JSON document inline, from a file, or on standard
input; result documents leave on standard output, one JSON document per
line. Standard error carries diagnostics only.

Exit codes follow the resource's declared table: 0 success, 1 generic
failure, 2 malformed input, 3 invalid argument, 4 permission denied,
5 invalid operation.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug diagnostics")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "force JSON diagnostics")

	// Add subcommands
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newSetCommand())
	rootCmd.AddCommand(newTestCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newListCommand())

	return rootCmd
}

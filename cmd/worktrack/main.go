// Package main provides the worktrack CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configDirFlag is set by the --config-dir flag.
	configDirFlag string

	// flagWorkspace and flagType override the configured workspace/type.
	flagWorkspace string
	flagType      string

	// jsonOutput switches every command to JSON output.
	jsonOutput bool

	// app is the wired application context, initialized on startup.
	app *appContext
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errPartialFailure) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "worktrack",
	Short: "worktrack is a CLI for a remote work-tracking service",
	Long: `worktrack queries and updates work items in a remote multi-tenant
work-tracking service. Workspace, item type, field, option, and user names
are resolved to the service's opaque keys through cached metadata lookups,
so commands take human-readable names throughout.`,
	PersistentPreRunE: initApp,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "config directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "workspace name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagType, "type", "", "item type name (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(batchUpdateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(optionsCmd)
}

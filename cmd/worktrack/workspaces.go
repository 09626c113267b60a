// Workspaces command lists the workspaces the configured token can see.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List available workspaces",
	Long: `List every workspace the configured token can access, with the
opaque key the service knows it by.

Example:
  worktrack workspaces
  worktrack workspaces --json`,
	RunE: runWorkspaces,
}

func runWorkspaces(cmd *cobra.Command, args []string) error {
	byName, err := app.meta.ListWorkspaces(cmd.Context())
	if err != nil {
		return fmt.Errorf("list workspaces: %w", err)
	}

	if jsonOutput {
		return printJSON(byName)
	}
	printNameKeyTable("NAME", "KEY", byName)
	return nil
}

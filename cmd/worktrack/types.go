// Types command lists the item types of the configured workspace.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List item types in the workspace",
	Long: `List the work item types defined in the configured workspace.

Example:
  worktrack types
  worktrack types --workspace "Mobile App"`,
	RunE: runTypes,
}

func runTypes(cmd *cobra.Command, args []string) error {
	wsKey, err := app.resolveWorkspaceKey(cmd.Context())
	if err != nil {
		return err
	}
	byName, err := app.meta.ListTypes(cmd.Context(), wsKey)
	if err != nil {
		return fmt.Errorf("list item types: %w", err)
	}

	if jsonOutput {
		return printJSON(byName)
	}
	printNameKeyTable("NAME", "KEY", byName)
	return nil
}

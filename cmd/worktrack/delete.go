// Delete command removes a work item.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a work item",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseItemID(args[0])
	if err != nil {
		return err
	}
	provider, err := app.provider()
	if err != nil {
		return err
	}

	if err := provider.DeleteIssue(cmd.Context(), id); err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]any{"deleted": id})
	}
	fmt.Printf("Deleted work item %d\n", id)
	return nil
}

// Create command creates a work item.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createPriority    string
	createDescription string
	createAssignee    string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a work item",
	Long: `Create a work item in the configured workspace and type. The
service cannot set priority on the create call itself, so a given
--priority is applied by a best-effort follow-up write.

Example:
  worktrack create "Fix login redirect" --priority P1 --assignee "Jane Doe"`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createPriority, "priority", "", "priority label")
	createCmd.Flags().StringVar(&createDescription, "description", "", "description text")
	createCmd.Flags().StringVar(&createAssignee, "assignee", "", "assignee name, email, or key")
}

func runCreate(cmd *cobra.Command, args []string) error {
	provider, err := app.provider()
	if err != nil {
		return err
	}

	id, err := provider.CreateIssue(cmd.Context(), args[0], createPriority, createDescription, createAssignee)
	if err != nil {
		return fmt.Errorf("create work item: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]any{"id": id})
	}
	fmt.Printf("Created work item %d\n", id)
	return nil
}

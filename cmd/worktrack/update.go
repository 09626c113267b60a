// Update command applies field changes to one work item.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pivotstack/worktrack/internal/items"
)

// updateFlags holds the field flags shared by update and batch-update.
type updateFlags struct {
	name        string
	priority    string
	status      string
	assignee    string
	description string
	fields      []string
}

// register attaches the shared flags to a command.
func (f *updateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "new item name")
	cmd.Flags().StringVar(&f.priority, "priority", "", "priority label")
	cmd.Flags().StringVar(&f.status, "status", "", "status label")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "assignee name, email, or key")
	cmd.Flags().StringVar(&f.description, "description", "", "description text")
	cmd.Flags().StringArrayVar(&f.fields, "field", nil, "arbitrary field as name=value (repeatable)")
}

// request builds the update request from the parsed flags.
func (f *updateFlags) request() (items.UpdateRequest, error) {
	extra, err := parseFieldFlags(f.fields)
	if err != nil {
		return items.UpdateRequest{}, err
	}
	return items.UpdateRequest{
		Name:        f.name,
		Priority:    f.priority,
		Status:      f.status,
		Assignee:    f.assignee,
		Description: f.description,
		Extra:       extra,
	}, nil
}

var updateCmdFlags updateFlags

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a work item",
	Long: `Update one work item. Every value is given by display name —
priority and status labels, assignee names — and resolved to the
service's keys before writing. Each field write succeeds or fails
independently; a partial failure exits 1.

Example:
  worktrack update 6181818812 --priority P0 --status "In Progress"
  worktrack update 6181818812 --field severity=Critical --field tags="Frontend, Backend"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmdFlags.register(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseItemID(args[0])
	if err != nil {
		return err
	}
	provider, err := app.provider()
	if err != nil {
		return err
	}
	req, err := updateCmdFlags.request()
	if err != nil {
		return err
	}

	results, err := provider.UpdateIssue(cmd.Context(), id, req)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	return printUpdateResults(results)
}

// Tasks command lists work items with optional filters.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pivotstack/worktrack/internal/items"
)

var (
	tasksKeyword    string
	tasksStatuses   []string
	tasksPriorities []string
	tasksOwner      string
	tasksRelatedTo  string
	tasksPage       int
	tasksPageSize   int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List work items",
	Long: `List work items in the configured workspace and type. Status,
priority, and owner accept display names; they are resolved to the
service's keys before querying.

A bare --related-to filter cannot be expressed in the remote query
language and falls back to a bounded client-side scan; combine it with a
keyword, status, or priority where possible.

Example:
  worktrack tasks
  worktrack tasks --keyword login --status Open
  worktrack tasks --priority P0 --priority P1 --owner "Jane Doe"
  worktrack tasks --related-to 6181818812`,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVar(&tasksKeyword, "keyword", "", "filter by name keyword")
	tasksCmd.Flags().StringSliceVar(&tasksStatuses, "status", nil, "filter by status (repeatable)")
	tasksCmd.Flags().StringSliceVar(&tasksPriorities, "priority", nil, "filter by priority (repeatable)")
	tasksCmd.Flags().StringVar(&tasksOwner, "owner", "", "filter by owner name, email, or key")
	tasksCmd.Flags().StringVar(&tasksRelatedTo, "related-to", "", "filter by related work item (id or name)")
	tasksCmd.Flags().IntVar(&tasksPage, "page", 1, "page number")
	tasksCmd.Flags().IntVar(&tasksPageSize, "page-size", 0, "page size (default 50)")
}

func runTasks(cmd *cobra.Command, args []string) error {
	provider, err := app.provider()
	if err != nil {
		return err
	}

	filter := items.TaskFilter{
		NameKeyword: tasksKeyword,
		Statuses:    tasksStatuses,
		Priorities:  tasksPriorities,
		Owner:       tasksOwner,
		PageNum:     tasksPage,
		PageSize:    tasksPageSize,
	}
	if tasksRelatedTo != "" {
		relatedID, err := provider.ResolveRelatedTo(cmd.Context(), tasksRelatedTo)
		if err != nil {
			return fmt.Errorf("resolve related-to: %w", err)
		}
		filter.RelatedTo = relatedID
	}

	page, err := provider.GetTasks(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if jsonOutput {
		return printJSON(page)
	}
	printItemPage(page)
	return nil
}

// Batch-update command applies the same field changes to multiple items.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var batchUpdateCmdFlags updateFlags

var batchUpdateCmd = &cobra.Command{
	Use:   "batch-update <id>...",
	Short: "Update the same fields on multiple work items",
	Long: `Apply one set of field changes to several work items. Field names
and values are resolved once and the writes fan out per item; each
(item, field) write succeeds or fails independently. A partial failure
exits 1.

Example:
  worktrack batch-update 6181818812 6181818813 --status Done`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatchUpdate,
}

func init() {
	batchUpdateCmdFlags.register(batchUpdateCmd)
}

func runBatchUpdate(cmd *cobra.Command, args []string) error {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseItemID(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	provider, err := app.provider()
	if err != nil {
		return err
	}
	req, err := batchUpdateCmdFlags.request()
	if err != nil {
		return err
	}

	results, err := provider.BatchUpdateIssues(cmd.Context(), ids, req)
	if err != nil {
		return fmt.Errorf("batch update: %w", err)
	}
	return printUpdateResults(results)
}

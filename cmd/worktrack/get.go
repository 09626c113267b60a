// Get command fetches one work item by ID.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var getReadable bool

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch one work item",
	Long: `Fetch a work item by ID. When the configured type does not contain
the ID, every other type in the workspace is probed.

With --readable, opaque values in the item — user keys, option values,
role keys, related item IDs — are resolved to display names.

Example:
  worktrack get 6181818812
  worktrack get 6181818812 --readable`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().BoolVar(&getReadable, "readable", false, "resolve opaque values to display names")
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := parseItemID(args[0])
	if err != nil {
		return err
	}
	provider, err := app.provider()
	if err != nil {
		return err
	}

	if getReadable {
		issue, err := provider.GetReadableIssueDetails(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get work item: %w", err)
		}
		if jsonOutput {
			return printJSON(issue)
		}
		fmt.Printf("#%d %s\n", issue.ID, issue.Name)
		if issue.Owner != "" {
			fmt.Printf("Owner: %s\n", issue.Owner)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, f := range issue.Fields {
			fmt.Fprintf(w, "%s\t%v\n", f.Name, f.Value)
		}
		w.Flush()
		return nil
	}

	item, err := provider.GetIssueDetails(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get work item: %w", err)
	}
	if jsonOutput {
		return printJSON(item)
	}
	fmt.Printf("#%d %s\n", item.ID, item.Name)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, f := range item.Fields {
		fmt.Fprintf(w, "%s\t%v\n", f.Key, f.Value)
	}
	w.Flush()
	return nil
}

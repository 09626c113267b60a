// Options command lists the option labels of a select-style field.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var optionsCmd = &cobra.Command{
	Use:   "options <field>",
	Short: "List the options of a field",
	Long: `List the option labels a select-style field accepts, with the
opaque value each label maps to. The field is given by display name.

Example:
  worktrack options priority
  worktrack options "Severity"`,
	Args: cobra.ExactArgs(1),
	RunE: runOptions,
}

func runOptions(cmd *cobra.Command, args []string) error {
	provider, err := app.provider()
	if err != nil {
		return err
	}

	options, err := provider.ListAvailableOptions(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("list options: %w", err)
	}

	if jsonOutput {
		return printJSON(options)
	}
	printNameKeyTable("LABEL", "VALUE", options)
	return nil
}

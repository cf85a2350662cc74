package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newFetchCmd creates the 'fetch' subcommand: a one-off fetch of a single
// URL, printing the outcome without touching the library. Useful for
// debugging why a particular publisher page fails to yield text.
func newFetchCmd() *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one URL through the extraction ladder and report the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			outcome := app.Orchestrator.Fetch(cmd.Context(), args[0], app.Creds)
			if !outcome.OK {
				return fmt.Errorf("fetch failed (%s): %s", outcome.Class, outcome.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chars\n", outcome.Reason, len([]rune(outcome.Content)))
			if showText {
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "print the extracted text")
	return cmd
}

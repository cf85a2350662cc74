package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newScanCmd creates the 'scan' subcommand: it walks records that carry a
// URL but no extracted text and backfills them in place.
func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Backfill text for library records that have a URL but no content",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			records, err := app.Store.Load()
			if err != nil {
				return fmt.Errorf("load library: %w", err)
			}
			log, updated := app.Importer.Scan(cmd.Context(), records)
			for _, line := range log {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d of %d records\n", updated, len(records))
			return nil
		},
	}
}

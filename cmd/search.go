package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newSearchCmd creates the 'search' subcommand: rank the library against a
// query and optionally synthesize a prose answer from the top results.
func newSearchCmd() *cobra.Command {
	var (
		topK       int
		withAnswer bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the library and optionally synthesize an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			records, err := app.Store.Load()
			if err != nil {
				return fmt.Errorf("load library: %w", err)
			}
			if topK <= 0 {
				topK = app.Cfg.Search.TopKDefault
			}
			results := app.Ranker.Search(query, records, topK)
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching articles found")
				return nil
			}
			for i, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (%.2f)\n", i+1, res.Record.Title, res.Score)
				if res.Record.URL != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", res.Record.URL)
				}
			}
			if withAnswer {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), app.Synthesizer.Answer(cmd.Context(), query, results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top", 0, "maximum results to return (default from config)")
	cmd.Flags().BoolVar(&withAnswer, "answer", false, "synthesize a prose answer from the top results")
	return cmd
}

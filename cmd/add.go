package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newAddCmd creates the 'add' subcommand for manual library entries.
func newAddCmd() *cobra.Command {
	var (
		authors  string
		abstract string
		url      string
		textFile string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an article to the library by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			var text string
			if textFile != "" {
				raw, readErr := os.ReadFile(textFile)
				if readErr != nil {
					return fmt.Errorf("read text file: %w", readErr)
				}
				text = string(raw)
			}

			record, err := app.Store.Add(args[0], splitAuthors(authors), abstract, url, text)
			if err != nil {
				return fmt.Errorf("add article: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %q (%s)\n", record.Title, record.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&authors, "authors", "", "comma-separated author names")
	cmd.Flags().StringVar(&abstract, "abstract", "", "article abstract")
	cmd.Flags().StringVar(&url, "url", "", "source URL")
	cmd.Flags().StringVar(&textFile, "text-file", "", "file holding the full text")
	return cmd
}

// newDeleteCmd creates the 'delete' subcommand: one record by id, or a
// whole class of records via --failed / --empty / --all.
func newDeleteCmd() *cobra.Command {
	var (
		failed bool
		empty  bool
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "delete [article-id]",
		Short: "Delete library records by id or by class",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			switch {
			case len(args) == 1:
				if err := app.Store.Delete(args[0]); err != nil {
					return fmt.Errorf("delete article: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			case failed:
				if err := app.Store.DeleteFailed(); err != nil {
					return fmt.Errorf("delete failed imports: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted failed imports")
			case empty:
				if err := app.Store.DeleteEmpty(); err != nil {
					return fmt.Errorf("delete empty records: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted records without text")
			case all:
				if err := app.Store.DeleteAll(); err != nil {
					return fmt.Errorf("clear library: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "library cleared")
			default:
				return fmt.Errorf("pass an article id or one of --failed, --empty, --all")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "delete all records with a failed import status")
	cmd.Flags().BoolVar(&empty, "empty", false, "delete all records without extracted text")
	cmd.Flags().BoolVar(&all, "all", false, "delete every record in the library")
	return cmd
}

func splitAuthors(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	authors := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			authors = append(authors, trimmed)
		}
	}
	return authors
}

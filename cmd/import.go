package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paperdock/paperdock/internal/importer"
)

// newImportCmd creates the 'import' subcommand. Candidate links come from
// either a local links file (one URL per line, optional tab-separated
// title) or a remote collection via the listing API.
func newImportCmd() *cobra.Command {
	var (
		linksFile  string
		collection string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a batch of article URLs into the library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			var links []importer.Link
			switch {
			case collection != "":
				if app.Remote == nil {
					return fmt.Errorf("no remote API configured; set remote.base_url")
				}
				links, err = app.Remote.ListArticles(cmd.Context(), collection)
				if err != nil {
					return fmt.Errorf("list collection %s: %w", collection, err)
				}
			case linksFile != "":
				links, err = readLinksFile(linksFile)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("either --links or --collection is required")
			}

			seen, err := app.Store.SeenURLs()
			if err != nil {
				return fmt.Errorf("load library: %w", err)
			}
			_, log, imported := app.Importer.Run(cmd.Context(), links, seen)
			for _, line := range log {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d candidates\n", imported, len(links))
			return nil
		},
	}
	cmd.Flags().StringVar(&linksFile, "links", "", "file with one URL per line (optional tab-separated title)")
	cmd.Flags().StringVar(&collection, "collection", "", "remote collection (project) identifier to import")
	return cmd
}

func readLinksFile(path string) ([]importer.Link, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open links file: %w", err)
	}
	defer file.Close()

	var links []importer.Link
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		link := importer.Link{URL: line}
		if url, title, found := strings.Cut(line, "\t"); found {
			link.URL = strings.TrimSpace(url)
			link.Title = strings.TrimSpace(title)
		}
		links = append(links, link)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	return links, nil
}

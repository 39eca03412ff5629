package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var searchTopK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find issues relevant to a query",
	Long: `Search retrieves the stored issues most relevant to a free-text
query. Issues named by number in the query (e.g. "#123") are always
included first; the rest are the nearest neighbors of the query's
embedding.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top", "k", 0, "maximum results; defaults to config top_k")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	query := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	k := searchTopK
	if k <= 0 {
		k = cfg.Defaults.TopK
	}

	engine := createSearchEngine(c)
	results, err := engine.Search(ctx, query, k)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching issues found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUE\tSIMILARITY\tSTATE\tTITLE")
	for _, r := range results {
		similarity := fmt.Sprintf("%.2f", r.Similarity)
		if r.Explicit {
			similarity = "ref"
		}
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\n", r.Number, similarity, r.State, r.Title)
	}
	return w.Flush()
}

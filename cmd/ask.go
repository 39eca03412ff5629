package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askTopK int

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the synced issues",
	Long: `Ask retrieves the issues most relevant to a question and has the
configured LLM answer from them, citing issue numbers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top", "k", 0, "issues to retrieve; defaults to config top_k")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	question := strings.Join(args, " ")

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

	answerer, err := createAnswerer(c)
	if err != nil {
		return err
	}

	k := askTopK
	if k <= 0 {
		k = cfg.Defaults.TopK
	}

	engine := createSearchEngine(c)
	results, err := engine.Search(ctx, question, k)
	if err != nil {
		return fmt.Errorf("retrieving issues: %w", err)
	}

	ans, err := answerer.Answer(ctx, question, results)
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ans.Text)

	if len(ans.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, src := range ans.Sources {
			marker := fmt.Sprintf("%.2f", src.Similarity)
			if src.Explicit {
				marker = "referenced"
			}
			fmt.Fprintf(out, "  #%d (%s) %s\n", src.Number, marker, src.Title)
		}
	}
	return nil
}

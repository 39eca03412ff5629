package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and embed issues updated since the last sync",
	Long: `Sync fetches every issue updated since the last completed sync,
assembles its searchable content, embeds it, and stores the result.
The first run fetches the full issue history.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

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

	s := createSyncer(c)

	logger.Info("starting sync", "repo", cfg.GitHub.Repo)
	result, err := s.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Synced %d issues (%d skipped), scanned %d pull requests, found %d cross-links in %s\n",
		result.Synced, result.Skipped, result.PullRequests, result.CrossLinks,
		result.Elapsed.Round(time.Millisecond))
	return nil
}

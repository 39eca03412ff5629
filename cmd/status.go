package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store health overview",
	Long: `Display statistics about the synced repository: issue counts,
embedding coverage, last sync time, and database size.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	total, err := c.Store.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("counting issues: %w", err)
	}
	embedded, err := c.Store.CountEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("counting embedded issues: %w", err)
	}
	bookmark, err := c.Store.Bookmark(ctx)
	if err != nil {
		return fmt.Errorf("reading bookmark: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Repository: %s\n", cfg.GitHub.Repo)
	fmt.Fprintf(out, "Issues:     %d\n", total)
	fmt.Fprintf(out, "Embedded:   %d\n", embedded)

	lastSync := "never"
	if bookmark.LastSyncedAt != nil {
		lastSync = formatTimeAgo(*bookmark.LastSyncedAt)
	}
	fmt.Fprintf(out, "Last sync:  %s\n", lastSync)

	if cfg.Store.Backend == "sqlite" {
		path := expandHome(cfg.Store.Path)
		if info, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Database:   %s (%s)\n", path, formatBytes(info.Size()))
		} else {
			fmt.Fprintf(out, "Database:   %s (size unknown)\n", path)
		}
	} else {
		fmt.Fprintf(out, "Database:   postgres\n")
	}

	if total == 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "No issues synced yet. Run 'issuewise sync' to get started.")
	}
	return nil
}

// formatTimeAgo formats a time as a human-readable relative string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calebhart/issuewise/internal/notify"
	"github.com/calebhart/issuewise/internal/syncer"
)

var (
	watchInterval string
	watchNotify   string
	watchDryRun   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously sync issues and notify about new ones",
	Long: `Watch runs sync cycles at a fixed interval until interrupted.
Newly created issues are announced to the configured notification
channels.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "sync interval (e.g. 10m, 30s); defaults to config")
	watchCmd.Flags().StringVar(&watchNotify, "notify", "", "notification target: slack, discord, or both")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "sync issues but skip notifications")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	interval, err := cfg.Defaults.SyncInterval()
	if err != nil {
		return fmt.Errorf("invalid sync_interval: %w", err)
	}
	if watchInterval != "" {
		interval, err = time.ParseDuration(watchInterval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", watchInterval, err)
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	n, err := createNotifier(cfg, watchNotify)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}
	if watchDryRun {
		n = nil
		logger.Info("dry-run mode enabled, notifications disabled")
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	// Start the notification worker before the first sync so no created
	// event is missed.
	workerDone := make(chan struct{})
	if n != nil {
		worker := notify.NewWorker(n, c.Store)
		events := c.Broker.Subscribe(ctx)
		go func() {
			worker.Run(ctx, events)
			close(workerDone)
		}()
	} else {
		close(workerDone)
	}

	s := createSyncer(c)
	logger.Info("starting watch", "repo", cfg.GitHub.Repo, "interval", interval.String())

	// Immediate first sync, then tick.
	if err := syncOnce(ctx, logger, s); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-workerDone
			logger.Info("watch stopped")
			return nil
		case <-ticker.C:
			if err := syncOnce(ctx, logger, s); err != nil {
				return err
			}
		}
	}
}

// syncOnce runs one cycle, treating cancellation as a clean stop and other
// errors as transient.
func syncOnce(ctx context.Context, logger *slog.Logger, s *syncer.Syncer) error {
	result, err := s.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		// Transient errors are expected; keep watching.
		logger.Error("sync cycle failed", "error", err.Error())
		return nil
	}
	logger.Info("sync cycle complete",
		"synced", result.Synced,
		"skipped", result.Skipped,
		"pull_requests", result.PullRequests,
		"cross_links", result.CrossLinks,
		"elapsed", result.Elapsed.String())
	return nil
}

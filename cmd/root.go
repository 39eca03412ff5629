package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	gogithub "github.com/google/go-github/v60/github"
	"github.com/spf13/cobra"

	"github.com/calebhart/issuewise/internal/answer"
	"github.com/calebhart/issuewise/internal/config"
	"github.com/calebhart/issuewise/internal/github"
	"github.com/calebhart/issuewise/internal/notify"
	"github.com/calebhart/issuewise/internal/provider"
	"github.com/calebhart/issuewise/internal/pubsub"
	"github.com/calebhart/issuewise/internal/refs"
	"github.com/calebhart/issuewise/internal/search"
	"github.com/calebhart/issuewise/internal/store"
	"github.com/calebhart/issuewise/internal/syncer"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "issuewise",
	Short: "Sync GitHub issues into a vector store and answer questions about them",
	Long: `Issuewise keeps a local searchable copy of one repository's issues.
It syncs issues incrementally, embeds them with an embedding provider,
and answers free-text questions by retrieving the most relevant issues
and asking an LLM.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".issuewise/config.yaml"
	}
	return home + "/.issuewise/config.yaml"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	return config.Load(path)
}

// components holds initialized components for use by subcommands.
type components struct {
	Config    *config.Config
	Store     store.Store
	Source    *github.Source
	Embedder  provider.BatchEmbedder
	Completer provider.Completer
	Extractor *refs.Extractor
	Broker    *pubsub.Broker[syncer.IssueEvent]
	Logger    *slog.Logger
}

// initComponents creates all components from config.
func initComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	// Create embedding provider first: the Postgres backend needs its
	// dimensions up front.
	switch cfg.Providers.Embedding.Type {
	case "openai", "":
		c.Embedder = provider.NewOpenAIEmbedder(cfg.Providers.Embedding.APIKey, cfg.Providers.Embedding.Model)
	case "ollama":
		c.Embedder = provider.NewOllamaEmbedder(cfg.Providers.Embedding.URL, cfg.Providers.Embedding.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider type: %q", cfg.Providers.Embedding.Type)
	}

	st, err := openStore(ctx, cfg, c.Embedder)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = st

	client, err := newGitHubClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}
	c.Source = github.NewSource(client, cfg.GitHub.Owner(), cfg.GitHub.Name())

	switch cfg.Providers.LLM.Type {
	case "openai":
		c.Completer = provider.NewOpenAICompleter(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model)
	case "anthropic":
		c.Completer = provider.NewAnthropicCompleter(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model)
	case "ollama":
		c.Completer = provider.NewOllamaCompleter(cfg.Providers.LLM.URL, cfg.Providers.LLM.Model)
	case "":
		// No LLM provider configured; ask is unavailable.
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %q", cfg.Providers.LLM.Type)
	}

	c.Extractor = refs.NewExtractor(cfg.GitHub.Owner(), cfg.GitHub.Name())
	c.Broker = pubsub.NewBroker[syncer.IssueEvent]()

	return c, nil
}

// openStore picks the backend from config. Postgres derives the vector
// column width from the embedding provider.
func openStore(ctx context.Context, cfg *config.Config, embedder provider.Embedder) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		dims := 1536
		if d, ok := embedder.(interface{ Dimensions() int }); ok {
			dims = d.Dimensions()
		}
		return store.OpenPostgres(ctx, cfg.Store.DSN, dims)
	default:
		return store.OpenSQLite(expandHome(cfg.Store.Path))
	}
}

// newGitHubClient builds the API client for the configured auth mode.
func newGitHubClient(cfg *config.Config) (*gogithub.Client, error) {
	if cfg.GitHub.Auth == "app" {
		return github.NewAppClient(cfg.GitHub.AppID, cfg.GitHub.InstallationID,
			[]byte(cfg.GitHub.PrivateKey), cfg.GitHub.PrivateKeyPath)
	}
	return github.NewTokenClient(cfg.GitHub.Token), nil
}

// createSyncer builds a Syncer from components.
func createSyncer(c *components) *syncer.Syncer {
	builder := contentBuilder(c.Config)
	return syncer.New(c.Source, c.Store, c.Embedder, builder, c.Extractor, c.Broker)
}

// createSearchEngine builds a search Engine from components.
func createSearchEngine(c *components) *search.Engine {
	return search.NewEngine(c.Store, c.Embedder, float32(c.Config.Defaults.MatchThreshold))
}

// createAnswerer builds an Answerer, or errors when no LLM is configured.
func createAnswerer(c *components) (*answer.Answerer, error) {
	if c.Completer == nil {
		return nil, fmt.Errorf("no LLM provider configured: set providers.llm in the config")
	}
	timeout, err := c.Config.Defaults.RequestTimeout()
	if err != nil {
		timeout = 60 * time.Second
	}
	return answer.NewAnswerer(c.Completer, c.Config.GitHub.Repo, timeout), nil
}

// createNotifier builds a Notifier from config and flag override. Returns
// nil when no notification channel is configured.
func createNotifier(cfg *config.Config, notifyFlag string) (notify.Notifier, error) {
	notifyType := notifyFlag
	if notifyType == "" {
		notifyType = cfg.Notify.Type
	}
	if notifyType == "" {
		// Infer from which webhooks are set.
		hasSlack := cfg.Notify.SlackWebhook != ""
		hasDiscord := cfg.Notify.DiscordWebhook != ""
		switch {
		case hasSlack && hasDiscord:
			notifyType = "both"
		case hasSlack:
			notifyType = "slack"
		case hasDiscord:
			notifyType = "discord"
		default:
			return nil, nil // no notification configured
		}
	}

	return notify.NewNotifier(notifyType, cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
}

// Package config loads the YAML configuration file, expanding ${VAR}
// environment references and applying defaults.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub    GitHubConfig    `yaml:"github"`
	Providers ProvidersConfig `yaml:"providers"`
	Notify    NotifyConfig    `yaml:"notify"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Store     StoreConfig     `yaml:"store"`
}

// GitHubConfig holds the watched repository and authentication settings.
// Auth selects between "token" (default) and "app".
type GitHubConfig struct {
	Repo           string `yaml:"repo"` // "owner/name"
	Auth           string `yaml:"auth"`
	Token          string `yaml:"token"`
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// Owner returns the owner half of the repo setting.
func (g GitHubConfig) Owner() string {
	owner, _, _ := strings.Cut(g.Repo, "/")
	return owner
}

// Name returns the name half of the repo setting.
func (g GitHubConfig) Name() string {
	_, name, _ := strings.Cut(g.Repo, "/")
	return name
}

// ProviderConfig holds settings for a single provider (embedding or LLM).
type ProviderConfig struct {
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

// ProvidersConfig groups embedding and LLM provider configs.
type ProvidersConfig struct {
	Embedding ProviderConfig `yaml:"embedding"`
	LLM       ProviderConfig `yaml:"llm"`
}

// NotifyConfig holds notification webhook URLs. Type is "slack", "discord",
// or "both"; empty disables notifications.
type NotifyConfig struct {
	Type           string `yaml:"type"`
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// DefaultsConfig holds default operational parameters.
type DefaultsConfig struct {
	SyncIntervalRaw   string  `yaml:"sync_interval"`
	MatchThreshold    float64 `yaml:"match_threshold"`
	TopK              int     `yaml:"top_k"`
	EmbedMaxTokens    int     `yaml:"embed_max_tokens"`
	RequestTimeoutRaw string  `yaml:"request_timeout"`
}

// StoreConfig holds storage settings. Backend is "sqlite" (default, using
// Path) or "postgres" (using DSN).
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// SyncInterval returns the parsed sync interval duration.
func (d DefaultsConfig) SyncInterval() (time.Duration, error) {
	if d.SyncIntervalRaw == "" {
		return 10 * time.Minute, nil
	}
	return time.ParseDuration(d.SyncIntervalRaw)
}

// RequestTimeout returns the parsed request timeout duration.
func (d DefaultsConfig) RequestTimeout() (time.Duration, error) {
	if d.RequestTimeoutRaw == "" {
		return 60 * time.Second, nil
	}
	return time.ParseDuration(d.RequestTimeoutRaw)
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable
// values. Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.GitHub.Auth == "" {
		cfg.GitHub.Auth = "token"
	}
	if cfg.Defaults.SyncIntervalRaw == "" {
		cfg.Defaults.SyncIntervalRaw = "10m"
	}
	if cfg.Defaults.MatchThreshold == 0 {
		cfg.Defaults.MatchThreshold = 0.15
	}
	if cfg.Defaults.TopK == 0 {
		cfg.Defaults.TopK = 5
	}
	if cfg.Defaults.EmbedMaxTokens == 0 {
		cfg.Defaults.EmbedMaxTokens = 7000
	}
	if cfg.Defaults.RequestTimeoutRaw == "" {
		cfg.Defaults.RequestTimeoutRaw = "60s"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.issuewise/issuewise.db"
	}
}

func validate(cfg *Config) error {
	if cfg.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required")
	}
	if owner, name, ok := strings.Cut(cfg.GitHub.Repo, "/"); !ok || owner == "" || name == "" {
		return fmt.Errorf("github.repo must be in owner/name form, got %q", cfg.GitHub.Repo)
	}

	switch cfg.GitHub.Auth {
	case "token":
	case "app":
		if cfg.GitHub.AppID == 0 || cfg.GitHub.InstallationID == 0 {
			return fmt.Errorf("app auth requires app_id and installation_id")
		}
	default:
		return fmt.Errorf("unsupported github auth mode: %q", cfg.GitHub.Auth)
	}

	if cfg.Defaults.MatchThreshold < 0 || cfg.Defaults.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be between 0 and 1, got %f", cfg.Defaults.MatchThreshold)
	}
	if cfg.Defaults.TopK < 0 {
		return fmt.Errorf("top_k must be positive, got %d", cfg.Defaults.TopK)
	}

	if _, err := time.ParseDuration(cfg.Defaults.SyncIntervalRaw); err != nil {
		return fmt.Errorf("invalid sync_interval %q: %w", cfg.Defaults.SyncIntervalRaw, err)
	}
	if _, err := time.ParseDuration(cfg.Defaults.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Defaults.RequestTimeoutRaw, err)
	}

	switch cfg.Store.Backend {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("postgres backend requires store.dsn")
		}
	default:
		return fmt.Errorf("unsupported store backend: %q", cfg.Store.Backend)
	}

	validEmbedTypes := map[string]bool{"openai": true, "ollama": true, "": true}
	if !validEmbedTypes[cfg.Providers.Embedding.Type] {
		return fmt.Errorf("unsupported embedding provider type: %s", cfg.Providers.Embedding.Type)
	}

	validLLMTypes := map[string]bool{"openai": true, "ollama": true, "anthropic": true, "": true}
	if !validLLMTypes[cfg.Providers.LLM.Type] {
		return fmt.Errorf("unsupported LLM provider type: %s", cfg.Providers.LLM.Type)
	}

	if cfg.Notify.Type != "" {
		validNotify := map[string]bool{"slack": true, "discord": true, "both": true}
		if !validNotify[cfg.Notify.Type] {
			return fmt.Errorf("unsupported notify type: %q", cfg.Notify.Type)
		}
	}

	return nil
}

package config

import (
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
github:
  repo: acme/widgets
`

func TestParseMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.GitHub.Auth != "token" {
		t.Errorf("Auth = %q, want token", cfg.GitHub.Auth)
	}
	if cfg.GitHub.Owner() != "acme" || cfg.GitHub.Name() != "widgets" {
		t.Errorf("Owner/Name = %q/%q", cfg.GitHub.Owner(), cfg.GitHub.Name())
	}
	if cfg.Defaults.MatchThreshold != 0.15 {
		t.Errorf("MatchThreshold = %v, want 0.15", cfg.Defaults.MatchThreshold)
	}
	if cfg.Defaults.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.Defaults.TopK)
	}
	if cfg.Defaults.EmbedMaxTokens != 7000 {
		t.Errorf("EmbedMaxTokens = %d, want 7000", cfg.Defaults.EmbedMaxTokens)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Backend = %q, want sqlite", cfg.Store.Backend)
	}

	interval, err := cfg.Defaults.SyncInterval()
	if err != nil {
		t.Fatalf("SyncInterval: %v", err)
	}
	if interval != 10*time.Minute {
		t.Errorf("SyncInterval = %v, want 10m", interval)
	}

	timeout, err := cfg.Defaults.RequestTimeout()
	if err != nil {
		t.Fatalf("RequestTimeout: %v", err)
	}
	if timeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", timeout)
	}
}

func TestParseFullConfig(t *testing.T) {
	raw := `
github:
  repo: acme/widgets
  auth: app
  app_id: 12345
  installation_id: 67890
  private_key_path: /etc/keys/app.pem
providers:
  embedding:
    type: openai
    model: text-embedding-3-small
    api_key: sk-test
  llm:
    type: anthropic
    api_key: sk-ant-test
notify:
  type: slack
  slack_webhook: https://hooks.slack.com/services/T/B/X
defaults:
  sync_interval: 5m
  match_threshold: 0.3
  top_k: 10
store:
  backend: postgres
  dsn: postgres://localhost/issuewise
`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.GitHub.AppID != 12345 {
		t.Errorf("AppID = %d", cfg.GitHub.AppID)
	}
	if cfg.Providers.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("embedding model = %q", cfg.Providers.Embedding.Model)
	}
	if cfg.Defaults.MatchThreshold != 0.3 {
		t.Errorf("MatchThreshold = %v", cfg.Defaults.MatchThreshold)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("Backend = %q", cfg.Store.Backend)
	}

	interval, _ := cfg.Defaults.SyncInterval()
	if interval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", interval)
	}
}

func TestParseExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GH_TOKEN", "ghp_secret")

	raw := `
github:
  repo: acme/widgets
  token: ${TEST_GH_TOKEN}
`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.GitHub.Token != "ghp_secret" {
		t.Errorf("Token = %q, want expanded value", cfg.GitHub.Token)
	}
}

func TestParseMissingEnvVarFails(t *testing.T) {
	raw := `
github:
  repo: acme/widgets
  token: ${DEFINITELY_NOT_SET_VAR_12345}
`
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatal("expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "DEFINITELY_NOT_SET_VAR_12345") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing repo", `defaults: {top_k: 3}`},
		{"malformed repo", "github:\n  repo: no-slash"},
		{"bad auth mode", "github:\n  repo: a/b\n  auth: magic"},
		{"app auth without ids", "github:\n  repo: a/b\n  auth: app"},
		{"threshold out of range", "github:\n  repo: a/b\ndefaults:\n  match_threshold: 1.5"},
		{"bad sync interval", "github:\n  repo: a/b\ndefaults:\n  sync_interval: often"},
		{"postgres without dsn", "github:\n  repo: a/b\nstore:\n  backend: postgres"},
		{"unknown backend", "github:\n  repo: a/b\nstore:\n  backend: dynamo"},
		{"unknown embedding type", "github:\n  repo: a/b\nproviders:\n  embedding:\n    type: bedrock"},
		{"unknown notify type", "github:\n  repo: a/b\nnotify:\n  type: email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

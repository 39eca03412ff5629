package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calebhart/issuewise/internal/config"
	"github.com/calebhart/issuewise/internal/notify"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	got := strings.TrimSpace(out.String())
	if !strings.HasPrefix(got, "issuewise ") {
		t.Errorf("version output = %q", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := expandHome("~/x.db"); got != home+"/x.db" {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs/x.db"); got != "/abs/x.db" {
		t.Errorf("expandHome changed absolute path: %q", got)
	}
}

func TestBuildConfigYAMLParses(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	raw := buildConfigYAML("acme/widgets", "openai", "anthropic", "", "")

	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	if cfg.GitHub.Repo != "acme/widgets" {
		t.Errorf("repo = %q", cfg.GitHub.Repo)
	}
	if cfg.Providers.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("embedding model = %q", cfg.Providers.Embedding.Model)
	}
	if cfg.Providers.LLM.Type != "anthropic" {
		t.Errorf("llm type = %q", cfg.Providers.LLM.Type)
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	oldCfgFile := cfgFile
	cfgFile = path
	defer func() { cfgFile = oldCfgFile }()

	initCmd.SetIn(strings.NewReader("acme/widgets\n\n\n\n\n"))
	var out bytes.Buffer
	initCmd.SetOut(&out)

	if err := runInit(initCmd, nil); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written config: %v", err)
	}
	if !strings.Contains(string(data), "repo: acme/widgets") {
		t.Error("written config missing repo")
	}
}

func TestCreateNotifierInference(t *testing.T) {
	cfg := &config.Config{}
	n, err := createNotifier(cfg, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != nil {
		t.Error("expected nil notifier with nothing configured")
	}

	cfg.Notify.SlackWebhook = "https://hooks.slack.com/services/T/B/X"
	n, err = createNotifier(cfg, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := n.(*notify.SlackNotifier); !ok {
		t.Errorf("notifier = %T, want *notify.SlackNotifier", n)
	}

	// Flag override wins, and missing URL for the override is an error.
	if _, err := createNotifier(cfg, "discord"); err == nil {
		t.Error("expected error for discord override without webhook")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package cmd

import (
	"os"

	"github.com/calebhart/issuewise/internal/config"
	"github.com/calebhart/issuewise/internal/content"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home + path[1:]
	}
	return path
}

// contentBuilder creates the content builder with the configured token
// budget.
func contentBuilder(cfg *config.Config) *content.Builder {
	return content.NewBuilder(cfg.Defaults.EmbedMaxTokens)
}

package notify

import (
	"fmt"
	"strings"
	"time"
)

// snippetLength caps the body preview included in notifications.
const snippetLength = 280

// FormatLabels formats issue labels as a readable string.
// Example: "`bug`, `crash`"
func FormatLabels(labels []string) string {
	if len(labels) == 0 {
		return "None"
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("`%s`", l)
	}
	return strings.Join(parts, ", ")
}

// Snippet returns the first lines of a body, truncated for chat display.
func Snippet(body string) string {
	s := strings.TrimSpace(body)
	if s == "" {
		return "(no description)"
	}
	if idx := strings.Index(s, "\n\n"); idx > 0 {
		s = s[:idx]
	}
	if len(s) > snippetLength {
		s = s[:snippetLength] + "..."
	}
	return s
}

// TimeAgo returns a human-readable relative time string.
func TimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		secs := int(d.Seconds())
		if secs <= 1 {
			return "just now"
		}
		return fmt.Sprintf("%d sec ago", secs)
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d min ago", mins)
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

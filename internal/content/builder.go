// Package content builds the canonical text blob for an issue. The same
// blob is embedded and handed to the LLM as context, so it must be
// deterministic: identical issue data always yields byte-identical output.
package content

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultMaxTokens is the embedding budget. The embedding model rejects
	// inputs over 8192 tokens; 7000 leaves headroom for tokenizer variance.
	DefaultMaxTokens = 7000

	// charsPerToken approximates how many characters fit in one token.
	// Conservative on purpose: underestimating keeps truncated content
	// safely under the model's hard ceiling.
	charsPerToken = 1.5

	// TruncationMarker is appended whenever content is cut; a silent cut
	// would be indistinguishable from a short issue.
	TruncationMarker = "[... truncated for length ...]"
)

// Comment is a single issue comment in chronological order.
type Comment struct {
	Body      string
	Author    string
	CreatedAt time.Time
}

// Builder renders issues into sanitized, length-bounded text.
type Builder struct {
	maxChars int
}

// NewBuilder creates a Builder with the given token budget. A budget <= 0
// falls back to DefaultMaxTokens.
func NewBuilder(maxTokens int) *Builder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Builder{maxChars: int(float64(maxTokens) * charsPerToken)}
}

// Input carries the issue fields that contribute to the content blob.
type Input struct {
	Number   int
	Title    string
	State    string
	Labels   []string
	Author   string
	Body     string
	Comments []Comment
}

// Build concatenates the issue's metadata, description, and comments in a
// fixed order, strips NUL bytes, and truncates to the character budget.
// Truncation always keeps the prefix: title, metadata, description, and the
// earliest comments are judged most valuable.
func (b *Builder) Build(in Input) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Title: %s\n", in.Title)
	fmt.Fprintf(&sb, "Issue Number: %d\n", in.Number)
	fmt.Fprintf(&sb, "State: %s\n", in.State)
	fmt.Fprintf(&sb, "Labels: %s\n", strings.Join(in.Labels, ", "))
	fmt.Fprintf(&sb, "Author: %s\n", in.Author)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Description: %s\n", in.Body)

	if len(in.Comments) > 0 {
		sb.WriteString("\nComments:\n")
		parts := make([]string, len(in.Comments))
		for i, c := range in.Comments {
			parts[i] = fmt.Sprintf("Comment by %s: %s", c.Author, c.Body)
		}
		sb.WriteString(strings.Join(parts, "\n\n"))
	}

	return b.truncate(Sanitize(sb.String()))
}

// Sanitize removes NUL content that would be rejected downstream: the raw
// 0x00 control character and the literal \u0000 escape text that survives
// JSON decoding of malformed issue bodies.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\\u0000", "")
	return s
}

func (b *Builder) truncate(s string) string {
	if len(s) <= b.maxChars {
		return s
	}
	// Back off to a rune boundary so the cut never emits invalid UTF-8.
	cut := b.maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}

// MaxChars reports the derived character budget.
func (b *Builder) MaxChars() int {
	return b.maxChars
}

// Package answer turns retrieved issues into an LLM-generated answer with
// issue citations.
package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/calebhart/issuewise/internal/provider"
	"github.com/calebhart/issuewise/internal/search"
)

// Answerer generates answers from retrieved issue context.
type Answerer struct {
	completer provider.Completer
	repo      string
	timeout   time.Duration
}

// Answer is the generated response plus the issues it was grounded on.
type Answer struct {
	Text    string
	Sources []search.Result
}

// NewAnswerer creates an Answerer. If timeout is zero, defaults to 60
// seconds.
func NewAnswerer(completer provider.Completer, repo string, timeout time.Duration) *Answerer {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Answerer{
		completer: completer,
		repo:      repo,
		timeout:   timeout,
	}
}

// Answer asks the completer to answer the question from the retrieved
// issues. With no retrieved issues it returns a fixed "nothing found"
// answer without calling the LLM.
func (a *Answerer) Answer(ctx context.Context, question string, issues []search.Result) (*Answer, error) {
	if len(issues) == 0 {
		return &Answer{
			Text: "No matching issues were found for this question.",
		}, nil
	}

	prompt, err := BuildPrompt(a.repo, question, issues)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completing prompt: %w", err)
	}

	return &Answer{Text: text, Sources: issues}, nil
}

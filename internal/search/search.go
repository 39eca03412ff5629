// Package search retrieves issues for a free-text query, combining issues
// named explicitly in the query with nearest neighbors of its embedding.
package search

import (
	"context"
	"fmt"

	"github.com/calebhart/issuewise/internal/provider"
	"github.com/calebhart/issuewise/internal/refs"
	"github.com/calebhart/issuewise/internal/store"
)

// Result is one retrieved issue. Explicit marks issues the query named by
// number; those carry a pinned similarity of 1.
type Result struct {
	store.Issue
	Similarity float32
	Explicit   bool
}

// Engine answers retrieval queries against a synced store.
type Engine struct {
	store         store.Store
	embedder      provider.Embedder
	minSimilarity float32
}

// NewEngine creates an Engine. minSimilarity <= 0 falls back to the store
// default threshold.
func NewEngine(st store.Store, embedder provider.Embedder, minSimilarity float32) *Engine {
	if minSimilarity <= 0 {
		minSimilarity = store.DefaultMinSimilarity
	}
	return &Engine{
		store:         st,
		embedder:      embedder,
		minSimilarity: minSimilarity,
	}
}

// Search returns up to k issues for the query. Issues named by number come
// first, in ascending numeric order; the remainder fills with nearest
// neighbors by descending similarity. An issue never appears twice.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	var results []Result
	seen := make(map[int]bool)

	if numbers := refs.IssueNumbers(query); len(numbers) > 0 {
		explicit, err := e.store.GetByNumbers(ctx, numbers)
		if err != nil {
			return nil, fmt.Errorf("fetching referenced issues: %w", err)
		}
		for _, issue := range explicit {
			if seen[issue.Number] {
				continue
			}
			seen[issue.Number] = true
			results = append(results, Result{Issue: issue, Similarity: 1, Explicit: true})
		}
	}

	if len(results) >= k {
		return results[:k], nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	neighbors, err := e.store.NearestNeighbors(ctx, vec, k, e.minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("searching neighbors: %w", err)
	}

	for _, n := range neighbors {
		if len(results) >= k {
			break
		}
		if seen[n.Number] {
			continue
		}
		seen[n.Number] = true
		results = append(results, Result{Issue: n.Issue, Similarity: n.Similarity})
	}

	return results, nil
}

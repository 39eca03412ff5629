// Package store persists synced issues and answers nearest-neighbor queries
// over their embeddings. Two backends implement the same contract: a local
// sqlite database (default) and Postgres with pgvector.
package store

import (
	"context"
	"time"
)

// Issue is the persisted representation of a GitHub issue. Number is the
// natural key; upserts replace the full row except for NotifiedAt, which is
// set once, and LinkedPRs, which only ever grows.
type Issue struct {
	Number        int
	Title         string
	Body          string
	State         string
	Labels        []string
	Author        string
	URL           string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CommentsCount int
	Comments      []Comment
	LinkedPRs     []int // always sorted ascending
	Content       string
	Embedding     []float32
	SyncedAt      time.Time
	NotifiedAt    *time.Time
}

// Comment is one issue comment, stored in chronological order.
type Comment struct {
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredIssue pairs an issue with its similarity to a query vector.
type ScoredIssue struct {
	Issue
	Similarity float32
}

// Bookmark marks the last successfully completed sync. Exactly one bookmark
// row exists per store; LastSyncedAt is nil until the first sync completes.
type Bookmark struct {
	LastSyncedAt *time.Time
	TotalIssues  int
}

// DefaultMinSimilarity is the nearest-neighbor threshold used when callers
// pass no override.
const DefaultMinSimilarity = float32(0.15)

// Store is the persistence contract shared by the sqlite and Postgres
// backends. All methods are safe for concurrent use.
type Store interface {
	// Upsert inserts or replaces issues keyed by number. Safe to call
	// repeatedly with overlapping data. Returns the numbers that were newly
	// inserted (not previously present).
	Upsert(ctx context.Context, issues []Issue) (created []int, err error)

	// GetByNumbers returns the issues with the given numbers, in the order
	// requested. Numbers not present are silently omitted.
	GetByNumbers(ctx context.Context, numbers []int) ([]Issue, error)

	// NearestNeighbors returns up to k issues whose cosine similarity to
	// query exceeds minSimilarity, ordered by similarity descending. Ties
	// break by ascending issue number.
	NearestNeighbors(ctx context.Context, query []float32, k int, minSimilarity float32) ([]ScoredIssue, error)

	// Bookmark reads the single sync bookmark row.
	Bookmark(ctx context.Context) (*Bookmark, error)

	// SetBookmark replaces the sync bookmark row.
	SetBookmark(ctx context.Context, lastSyncedAt time.Time, totalIssues int) error

	// CountAll returns the total number of stored issues.
	CountAll(ctx context.Context) (int, error)

	// CountEmbedded returns the number of issues carrying an embedding.
	CountEmbedded(ctx context.Context) (int, error)

	// MarkNotified stamps notified_at for the given issues. Rows already
	// stamped are left untouched.
	MarkNotified(ctx context.Context, numbers []int, at time.Time) error

	// Close releases the underlying connections.
	Close() error
}

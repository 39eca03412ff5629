// Package syncer drives the incremental sync pipeline: fetch updated issues
// from GitHub, assemble their embedding content, embed in batches, and
// persist everything with a bookmark marking the completed cycle.
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/calebhart/issuewise/internal/content"
	"github.com/calebhart/issuewise/internal/github"
	"github.com/calebhart/issuewise/internal/provider"
	"github.com/calebhart/issuewise/internal/pubsub"
	"github.com/calebhart/issuewise/internal/refs"
	"github.com/calebhart/issuewise/internal/store"
)

// embedChunkSize is how many issues are embedded and persisted per chunk.
// Matches the embedding API batch limit.
const embedChunkSize = provider.MaxBatchSize

// IssueSource lists issues and comments from one repository.
type IssueSource interface {
	Repo() string
	ListIssues(ctx context.Context, since *time.Time, fn func(github.RawIssue) error) error
	ListComments(ctx context.Context, number int) ([]github.Comment, error)
}

// IssueEvent is published for every issue a sync cycle touches.
type IssueEvent struct {
	Repo  string
	Issue store.Issue
}

// Result summarizes one completed sync cycle.
type Result struct {
	Synced       int // issues fetched and persisted
	Skipped      int // issues fetched but dropped this cycle (embed or upsert failure)
	PullRequests int // pull requests seen (scanned for links, not stored)
	CrossLinks   int // issue links discovered in pull request bodies
	Elapsed      time.Duration
}

// Syncer runs sync cycles against a single repository.
type Syncer struct {
	source    IssueSource
	store     store.Store
	embedder  provider.BatchEmbedder
	builder   *content.Builder
	extractor *refs.Extractor
	broker    *pubsub.Broker[IssueEvent]
	logger    *log.Logger
	now       func() time.Time
}

// New creates a Syncer. broker may be nil when no one consumes events.
func New(source IssueSource, st store.Store, embedder provider.BatchEmbedder, builder *content.Builder, extractor *refs.Extractor, broker *pubsub.Broker[IssueEvent]) *Syncer {
	return &Syncer{
		source:    source,
		store:     st,
		embedder:  embedder,
		builder:   builder,
		extractor: extractor,
		broker:    broker,
		logger:    log.New(log.Writer(), fmt.Sprintf("[sync %s] ", source.Repo()), log.LstdFlags),
		now:       time.Now,
	}
}

// Sync runs one full cycle. The bookmark is only advanced after every chunk
// has been attempted; a cycle that fetches no issues leaves it untouched so
// the next run retries the same window.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	started := s.now()

	bookmark, err := s.store.Bookmark(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading bookmark: %w", err)
	}
	if bookmark.LastSyncedAt != nil {
		s.logger.Printf("incremental sync since %s", bookmark.LastSyncedAt.Format(time.RFC3339))
	} else {
		s.logger.Printf("first sync, fetching all issues")
	}

	issues, prLinks, prCount, err := s.fetch(ctx, bookmark.LastSyncedAt)
	if err != nil {
		return nil, err
	}

	// No issues means no forward progress: the bookmark stays put so the
	// next cycle re-scans the same window. PR-only activity falls under this
	// too; re-fetching the PRs later is how their cross-links eventually land
	// once the issues they close show up.
	if len(issues) == 0 {
		s.logger.Printf("no issues to sync")
		return &Result{PullRequests: prCount, Elapsed: s.now().Sub(started)}, nil
	}

	crossLinks, err := s.applyCrossLinks(ctx, issues, prLinks)
	if err != nil {
		return nil, err
	}

	synced, skipped := s.persist(ctx, issues)

	total, err := s.store.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting issues: %w", err)
	}
	if err := s.store.SetBookmark(ctx, started, total); err != nil {
		return nil, fmt.Errorf("committing bookmark: %w", err)
	}

	result := &Result{
		Synced:       synced,
		Skipped:      skipped,
		PullRequests: prCount,
		CrossLinks:   crossLinks,
		Elapsed:      s.now().Sub(started),
	}
	if s.broker != nil {
		s.broker.Publish(pubsub.SyncCompleted, IssueEvent{Repo: s.source.Repo()})
	}
	s.logger.Printf("sync complete: %d issues, %d skipped, %d PRs scanned, %d cross-links, %s",
		result.Synced, result.Skipped, result.PullRequests, result.CrossLinks, result.Elapsed.Round(time.Millisecond))
	return result, nil
}

// fetch streams the updated issues, separating pull requests out. PRs are
// never stored; their bodies are scanned for closing references so the
// issues they fix can be linked back.
func (s *Syncer) fetch(ctx context.Context, since *time.Time) ([]store.Issue, map[int][]int, int, error) {
	var issues []store.Issue
	prLinks := make(map[int][]int)
	prCount := 0

	err := s.source.ListIssues(ctx, since, func(raw github.RawIssue) error {
		if raw.IsPullRequest {
			prCount++
			if closed := refs.ClosingReferences(raw.Body); len(closed) > 0 {
				prLinks[raw.Number] = closed
			}
			return nil
		}

		issue := store.Issue{
			Number:        raw.Number,
			Title:         raw.Title,
			Body:          raw.Body,
			State:         raw.State,
			Labels:        raw.Labels,
			Author:        raw.Author,
			URL:           raw.URL,
			CreatedAt:     raw.CreatedAt,
			UpdatedAt:     raw.UpdatedAt,
			CommentsCount: raw.CommentsCount,
		}

		if raw.CommentsCount > 0 {
			comments, err := s.source.ListComments(ctx, raw.Number)
			if err != nil {
				return fmt.Errorf("fetching comments for #%d: %w", raw.Number, err)
			}
			issue.Comments = make([]store.Comment, len(comments))
			for i, c := range comments {
				issue.Comments[i] = store.Comment{Body: c.Body, Author: c.Author, CreatedAt: c.CreatedAt}
			}
		}

		issue.LinkedPRs = s.linkedPRs(&issue)
		issues = append(issues, issue)
		return nil
	})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("fetching issues: %w", err)
	}

	return issues, prLinks, prCount, nil
}

// linkedPRs collects PR references from the issue body and all comments.
func (s *Syncer) linkedPRs(issue *store.Issue) []int {
	linked := s.extractor.PRLinks(issue.Body)
	for _, c := range issue.Comments {
		linked = refs.MergeSorted(linked, s.extractor.PRLinks(c.Body))
	}
	return linked
}

// applyCrossLinks adds PR numbers to the issues their bodies claim to close.
// Issues in the current batch are linked in memory; issues already stored but
// not in this batch get a merge-only upsert.
func (s *Syncer) applyCrossLinks(ctx context.Context, issues []store.Issue, prLinks map[int][]int) (int, error) {
	if len(prLinks) == 0 {
		return 0, nil
	}

	inBatch := make(map[int]*store.Issue, len(issues))
	for i := range issues {
		inBatch[issues[i].Number] = &issues[i]
	}

	count := 0
	storedLinks := make(map[int][]int)
	for prNumber, issueNumbers := range prLinks {
		for _, n := range issueNumbers {
			count++
			if issue, ok := inBatch[n]; ok {
				issue.LinkedPRs = refs.MergeSorted(issue.LinkedPRs, []int{prNumber})
				continue
			}
			storedLinks[n] = refs.MergeSorted(storedLinks[n], []int{prNumber})
		}
	}

	if len(storedLinks) == 0 {
		return count, nil
	}

	numbers := make([]int, 0, len(storedLinks))
	for n := range storedLinks {
		numbers = append(numbers, n)
	}
	stored, err := s.store.GetByNumbers(ctx, numbers)
	if err != nil {
		return 0, fmt.Errorf("loading cross-linked issues: %w", err)
	}
	for i := range stored {
		stored[i].LinkedPRs = refs.MergeSorted(stored[i].LinkedPRs, storedLinks[stored[i].Number])
	}
	if len(stored) > 0 {
		if _, err := s.store.Upsert(ctx, stored); err != nil {
			return 0, fmt.Errorf("persisting cross-links: %w", err)
		}
	}

	return count, nil
}

// persist builds content, embeds, and upserts issues in chunks. An issue
// whose embedding cannot be produced is logged and left out of the store
// entirely; it comes back when a later cycle re-fetches it. A chunk whose
// upsert fails is likewise logged and counted as skipped, and the remaining
// chunks still run, so the bookmark commits only after every chunk has been
// attempted.
func (s *Syncer) persist(ctx context.Context, issues []store.Issue) (synced, skipped int) {
	syncedAt := s.now()

	for start := 0; start < len(issues); start += embedChunkSize {
		end := start + embedChunkSize
		if end > len(issues) {
			end = len(issues)
		}
		chunk := issues[start:end]

		for i := range chunk {
			chunk[i].Content = s.buildContent(&chunk[i])
			chunk[i].SyncedAt = syncedAt
		}

		embedded := s.embedChunk(ctx, chunk)
		skipped += len(chunk) - len(embedded)
		if len(embedded) == 0 {
			continue
		}

		created, err := s.store.Upsert(ctx, embedded)
		if err != nil {
			s.logger.Printf("persisting issues %d-%d failed, skipping chunk: %v",
				embedded[0].Number, embedded[len(embedded)-1].Number, err)
			skipped += len(embedded)
			continue
		}
		synced += len(embedded)

		s.publish(embedded, created)
	}

	return synced, skipped
}

// buildContent assembles the canonical embedding text for an issue.
func (s *Syncer) buildContent(issue *store.Issue) string {
	in := content.Input{
		Number: issue.Number,
		Title:  issue.Title,
		State:  issue.State,
		Labels: issue.Labels,
		Author: issue.Author,
		Body:   issue.Body,
	}
	for _, c := range issue.Comments {
		in.Comments = append(in.Comments, content.Comment{
			Body:      c.Body,
			Author:    c.Author,
			CreatedAt: c.CreatedAt,
		})
	}
	return s.builder.Build(in)
}

// embedChunk embeds a chunk in one batch call, falling back to per-issue
// calls when the batch fails. Returns the issues that got a vector; issues
// whose individual call also fails are dropped from this cycle so the store
// never holds a vectorless row.
func (s *Syncer) embedChunk(ctx context.Context, chunk []store.Issue) []store.Issue {
	texts := make([]string, len(chunk))
	for i := range chunk {
		texts[i] = chunk[i].Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(chunk) {
		for i := range chunk {
			chunk[i].Embedding = vectors[i]
		}
		return chunk
	}

	if err != nil {
		s.logger.Printf("batch embed failed for %d issues, retrying individually: %v", len(chunk), err)
	}

	embedded := make([]store.Issue, 0, len(chunk))
	for i := range chunk {
		vec, err := s.embedder.Embed(ctx, chunk[i].Content)
		if err != nil {
			s.logger.Printf("embedding issue #%d failed, skipping this cycle: %v", chunk[i].Number, err)
			continue
		}
		chunk[i].Embedding = vec
		embedded = append(embedded, chunk[i])
	}
	return embedded
}

// publish emits events for the persisted chunk: IssueCreated for numbers the
// store had never seen, IssueUpdated for the rest.
func (s *Syncer) publish(chunk []store.Issue, created []int) {
	if s.broker == nil {
		return
	}

	isNew := make(map[int]bool, len(created))
	for _, n := range created {
		isNew[n] = true
	}

	repo := s.source.Repo()
	for _, issue := range chunk {
		evt := IssueEvent{Repo: repo, Issue: issue}
		if isNew[issue.Number] {
			s.broker.Publish(pubsub.IssueCreated, evt)
		} else {
			s.broker.Publish(pubsub.IssueUpdated, evt)
		}
	}
}

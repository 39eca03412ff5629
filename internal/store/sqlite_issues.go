package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calebhart/issuewise/internal/refs"
)

// Upsert inserts or replaces issues keyed by number. LinkedPRs are merged
// with the stored set (links are only ever added) and notified_at is never
// overwritten, everything else is a full row replace.
func (s *SQLite) Upsert(ctx context.Context, issues []Issue) ([]int, error) {
	if len(issues) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	var created []int
	for _, issue := range issues {
		var existingPRs sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT linked_prs FROM issues WHERE number = ?`, issue.Number,
		).Scan(&existingPRs)

		exists := true
		switch {
		case err == sql.ErrNoRows:
			exists = false
		case err != nil:
			return nil, fmt.Errorf("checking issue #%d: %w", issue.Number, err)
		}

		linked := issue.LinkedPRs
		if exists && existingPRs.Valid && existingPRs.String != "" {
			var prior []int
			if err := json.Unmarshal([]byte(existingPRs.String), &prior); err == nil {
				linked = refs.MergeSorted(prior, linked)
			}
		} else {
			linked = refs.MergeSorted(nil, linked)
		}

		labelsJSON, err := json.Marshal(sortedLabels(issue.Labels))
		if err != nil {
			return nil, fmt.Errorf("marshaling labels: %w", err)
		}
		commentsJSON, err := json.Marshal(issue.Comments)
		if err != nil {
			return nil, fmt.Errorf("marshaling comments: %w", err)
		}
		linkedJSON, err := json.Marshal(linked)
		if err != nil {
			return nil, fmt.Errorf("marshaling linked PRs: %w", err)
		}

		var embedding []byte
		if len(issue.Embedding) > 0 {
			embedding = EncodeVector(issue.Embedding)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO issues (number, title, body, state, labels, author, url,
				created_at, updated_at, comments_count, comments, linked_prs,
				content, embedding, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(number) DO UPDATE SET
				title = excluded.title,
				body = excluded.body,
				state = excluded.state,
				labels = excluded.labels,
				author = excluded.author,
				url = excluded.url,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				comments_count = excluded.comments_count,
				comments = excluded.comments,
				linked_prs = excluded.linked_prs,
				content = excluded.content,
				embedding = excluded.embedding,
				synced_at = excluded.synced_at`,
			issue.Number, issue.Title, issue.Body, issue.State,
			string(labelsJSON), issue.Author, issue.URL,
			formatTime(issue.CreatedAt), formatTime(issue.UpdatedAt),
			issue.CommentsCount, string(commentsJSON), string(linkedJSON),
			issue.Content, embedding, formatTime(issue.SyncedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("upserting issue #%d: %w", issue.Number, err)
		}

		if !exists {
			created = append(created, issue.Number)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing upsert: %w", err)
	}

	s.invalidateCache()
	return created, nil
}

// GetByNumbers returns the issues with the given numbers, in the order
// requested, silently omitting numbers that are not stored.
func (s *SQLite) GetByNumbers(ctx context.Context, numbers []int) ([]Issue, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(numbers)), ",")
	args := make([]any, len(numbers))
	for i, n := range numbers {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE number IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	byNumber := make(map[int]Issue, len(numbers))
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		byNumber[issue.Number] = *issue
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]Issue, 0, len(byNumber))
	for _, n := range numbers {
		if issue, ok := byNumber[n]; ok {
			result = append(result, issue)
		}
	}
	return result, nil
}

// NearestNeighbors scans the cached vectors and returns up to k issues with
// cosine similarity above minSimilarity, best first. Ties break by ascending
// issue number (the cache is number-ordered, and the sort is stable).
func (s *SQLite) NearestNeighbors(ctx context.Context, query []float32, k int, minSimilarity float32) ([]ScoredIssue, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	entries, err := s.loadCache(ctx)
	if err != nil {
		return nil, err
	}

	type hit struct {
		number     int
		similarity float32
	}
	var hits []hit
	for _, e := range entries {
		sim, err := CosineSimilarity(query, e.vec)
		if err != nil {
			// Dimension mismatch: a leftover row embedded under a different
			// model. Skip rather than fail the whole query.
			continue
		}
		if sim > minSimilarity {
			hits = append(hits, hit{number: e.number, similarity: sim})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].similarity > hits[j].similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	numbers := make([]int, len(hits))
	for i, h := range hits {
		numbers[i] = h.number
	}
	issues, err := s.GetByNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}

	simByNumber := make(map[int]float32, len(hits))
	for _, h := range hits {
		simByNumber[h.number] = h.similarity
	}

	scored := make([]ScoredIssue, len(issues))
	for i, issue := range issues {
		scored[i] = ScoredIssue{Issue: issue, Similarity: simByNumber[issue.Number]}
	}
	return scored, nil
}

// CountAll returns the total number of stored issues.
func (s *SQLite) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting issues: %w", err)
	}
	return count, nil
}

// CountEmbedded returns the number of issues carrying an embedding.
func (s *SQLite) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE embedding IS NOT NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting embedded issues: %w", err)
	}
	return count, nil
}

// MarkNotified stamps notified_at for the given issues, leaving rows that
// already carry a stamp untouched.
func (s *SQLite) MarkNotified(ctx context.Context, numbers []int, at time.Time) error {
	if len(numbers) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(numbers)), ",")
	args := make([]any, 0, len(numbers)+1)
	args = append(args, formatTime(at))
	for _, n := range numbers {
		args = append(args, n)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE issues SET notified_at = ? WHERE number IN (`+placeholders+`) AND notified_at IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("marking notified: %w", err)
	}
	return nil
}

// Bookmark reads the single sync bookmark row.
func (s *SQLite) Bookmark(ctx context.Context) (*Bookmark, error) {
	var lastSynced sql.NullString
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced_at, total_issues FROM sync_metadata WHERE id = 1`,
	).Scan(&lastSynced, &total)
	if err != nil {
		return nil, fmt.Errorf("reading bookmark: %w", err)
	}

	b := &Bookmark{TotalIssues: total}
	if lastSynced.Valid && lastSynced.String != "" {
		t := parseTime(lastSynced.String)
		b.LastSyncedAt = &t
	}
	return b, nil
}

// SetBookmark replaces the sync bookmark row.
func (s *SQLite) SetBookmark(ctx context.Context, lastSyncedAt time.Time, totalIssues int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_metadata SET last_synced_at = ?, total_issues = ? WHERE id = 1`,
		formatTime(lastSyncedAt), totalIssues)
	if err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

const issueColumns = `number, title, body, state, labels, author, url,
	created_at, updated_at, comments_count, comments, linked_prs,
	content, embedding, synced_at, notified_at`

func scanIssue(rows *sql.Rows) (*Issue, error) {
	var issue Issue
	var body, labels, author, url, comments, linkedPRs, contentCol, syncedAt, notifiedAt sql.NullString
	var embedding []byte
	var createdAt, updatedAt string

	err := rows.Scan(
		&issue.Number, &issue.Title, &body, &issue.State, &labels, &author, &url,
		&createdAt, &updatedAt, &issue.CommentsCount, &comments, &linkedPRs,
		&contentCol, &embedding, &syncedAt, &notifiedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning issue: %w", err)
	}

	issue.Body = body.String
	issue.Author = author.String
	issue.URL = url.String
	issue.Content = contentCol.String
	issue.Embedding = DecodeVector(embedding)
	issue.CreatedAt = parseTime(createdAt)
	issue.UpdatedAt = parseTime(updatedAt)

	if syncedAt.Valid && syncedAt.String != "" {
		issue.SyncedAt = parseTime(syncedAt.String)
	}
	if notifiedAt.Valid && notifiedAt.String != "" {
		t := parseTime(notifiedAt.String)
		issue.NotifiedAt = &t
	}
	if labels.Valid && labels.String != "" {
		_ = json.Unmarshal([]byte(labels.String), &issue.Labels)
	}
	if comments.Valid && comments.String != "" {
		_ = json.Unmarshal([]byte(comments.String), &issue.Comments)
	}
	if linkedPRs.Valid && linkedPRs.String != "" {
		_ = json.Unmarshal([]byte(linkedPRs.String), &issue.LinkedPRs)
	}

	return &issue, nil
}

func sortedLabels(labels []string) []string {
	if len(labels) == 0 {
		return []string{}
	}
	out := make([]string, len(labels))
	copy(out, labels)
	sort.Strings(out)
	return out
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/calebhart/issuewise/internal/refs"
)

// Postgres is the pgvector-backed Store. Nearest-neighbor queries run
// server-side through the match_issues SQL function over a cosine index,
// so no vectors are held in process.
type Postgres struct {
	pool *pgxpool.Pool
	dims int
}

// OpenPostgres connects to the given DSN and ensures the schema exists.
// dims fixes the vector column width and must match the embedding model for
// the lifetime of the store.
func OpenPostgres(ctx context.Context, dsn string, dims int) (*Postgres, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", dims)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	p := &Postgres{pool: pool, dims: dims}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS issues (
			number BIGINT PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			labels JSONB NOT NULL DEFAULT '[]',
			author TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			comments_count INT NOT NULL DEFAULT 0,
			comments JSONB NOT NULL DEFAULT '[]',
			linked_prs JSONB NOT NULL DEFAULT '[]',
			content TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			synced_at TIMESTAMPTZ,
			notified_at TIMESTAMPTZ
		)`, p.dims),
		`CREATE INDEX IF NOT EXISTS idx_issues_embedding ON issues
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE TABLE IF NOT EXISTS sync_metadata (
			id INT PRIMARY KEY CHECK (id = 1),
			last_synced_at TIMESTAMPTZ,
			total_issues INT NOT NULL DEFAULT 0
		)`,
		`INSERT INTO sync_metadata (id) VALUES (1) ON CONFLICT DO NOTHING`,
		`CREATE OR REPLACE FUNCTION match_issues(
			query_embedding vector,
			match_count int,
			match_threshold float
		) RETURNS TABLE (number bigint, similarity double precision)
		LANGUAGE sql STABLE AS $$
			SELECT i.number,
			       1 - (i.embedding <=> query_embedding) AS similarity
			FROM issues i
			WHERE i.embedding IS NOT NULL
			  AND 1 - (i.embedding <=> query_embedding) > match_threshold
			ORDER BY similarity DESC, i.number ASC
			LIMIT match_count
		$$`,
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces issues keyed by number, merging linked PRs with
// the stored set and leaving notified_at untouched.
func (p *Postgres) Upsert(ctx context.Context, issues []Issue) ([]int, error) {
	if len(issues) == 0 {
		return nil, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var created []int
	for _, issue := range issues {
		var existingPRs []byte
		exists := true
		err := tx.QueryRow(ctx,
			`SELECT linked_prs FROM issues WHERE number = $1`, issue.Number,
		).Scan(&existingPRs)
		switch {
		case err == pgx.ErrNoRows:
			exists = false
		case err != nil:
			return nil, fmt.Errorf("checking issue #%d: %w", issue.Number, err)
		}

		linked := issue.LinkedPRs
		if exists && len(existingPRs) > 0 {
			var prior []int
			if err := json.Unmarshal(existingPRs, &prior); err == nil {
				linked = refs.MergeSorted(prior, linked)
			}
		} else {
			linked = refs.MergeSorted(nil, linked)
		}
		if linked == nil {
			linked = []int{}
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

		var embedding *pgvector.Vector
		if len(issue.Embedding) > 0 {
			v := pgvector.NewVector(issue.Embedding)
			embedding = &v
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO issues (number, title, body, state, labels, author, url,
				created_at, updated_at, comments_count, comments, linked_prs,
				content, embedding, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (number) DO UPDATE SET
				title = EXCLUDED.title,
				body = EXCLUDED.body,
				state = EXCLUDED.state,
				labels = EXCLUDED.labels,
				author = EXCLUDED.author,
				url = EXCLUDED.url,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at,
				comments_count = EXCLUDED.comments_count,
				comments = EXCLUDED.comments,
				linked_prs = EXCLUDED.linked_prs,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				synced_at = EXCLUDED.synced_at`,
			issue.Number, issue.Title, issue.Body, issue.State,
			labelsJSON, issue.Author, issue.URL,
			issue.CreatedAt.UTC(), issue.UpdatedAt.UTC(),
			issue.CommentsCount, commentsJSON, linkedJSON,
			issue.Content, embedding, issue.SyncedAt.UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("upserting issue #%d: %w", issue.Number, err)
		}

		if !exists {
			created = append(created, issue.Number)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing upsert: %w", err)
	}
	return created, nil
}

// GetByNumbers returns the issues with the given numbers, in the order
// requested, silently omitting numbers that are not stored.
func (p *Postgres) GetByNumbers(ctx context.Context, numbers []int) ([]Issue, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	rows, err := p.pool.Query(ctx,
		`SELECT number, title, body, state, labels, author, url,
			created_at, updated_at, comments_count, comments, linked_prs,
			content, embedding, synced_at, notified_at
		FROM issues WHERE number = ANY($1)`, numbers)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	byNumber := make(map[int]Issue, len(numbers))
	for rows.Next() {
		issue, err := scanPGIssue(rows)
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

// NearestNeighbors calls the match_issues SQL function, which ranks by
// cosine similarity server-side.
func (p *Postgres) NearestNeighbors(ctx context.Context, query []float32, k int, minSimilarity float32) ([]ScoredIssue, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := p.pool.Query(ctx,
		`SELECT number, similarity FROM match_issues($1, $2, $3)`,
		pgvector.NewVector(query), k, float64(minSimilarity))
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query: %w", err)
	}
	defer rows.Close()

	type hit struct {
		number     int
		similarity float32
	}
	var hits []hit
	for rows.Next() {
		var number int64
		var similarity float64
		if err := rows.Scan(&number, &similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		hits = append(hits, hit{number: int(number), similarity: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	numbers := make([]int, len(hits))
	simByNumber := make(map[int]float32, len(hits))
	for i, h := range hits {
		numbers[i] = h.number
		simByNumber[h.number] = h.similarity
	}

	issues, err := p.GetByNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredIssue, len(issues))
	for i, issue := range issues {
		scored[i] = ScoredIssue{Issue: issue, Similarity: simByNumber[issue.Number]}
	}
	return scored, nil
}

// CountAll returns the total number of stored issues.
func (p *Postgres) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting issues: %w", err)
	}
	return count, nil
}

// CountEmbedded returns the number of issues carrying an embedding.
func (p *Postgres) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM issues WHERE embedding IS NOT NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting embedded issues: %w", err)
	}
	return count, nil
}

// MarkNotified stamps notified_at for the given issues, leaving rows that
// already carry a stamp untouched.
func (p *Postgres) MarkNotified(ctx context.Context, numbers []int, at time.Time) error {
	if len(numbers) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx,
		`UPDATE issues SET notified_at = $1 WHERE number = ANY($2) AND notified_at IS NULL`,
		at.UTC(), numbers)
	if err != nil {
		return fmt.Errorf("marking notified: %w", err)
	}
	return nil
}

// Bookmark reads the single sync bookmark row.
func (p *Postgres) Bookmark(ctx context.Context) (*Bookmark, error) {
	var lastSynced *time.Time
	var total int
	err := p.pool.QueryRow(ctx,
		`SELECT last_synced_at, total_issues FROM sync_metadata WHERE id = 1`,
	).Scan(&lastSynced, &total)
	if err != nil {
		return nil, fmt.Errorf("reading bookmark: %w", err)
	}
	return &Bookmark{LastSyncedAt: lastSynced, TotalIssues: total}, nil
}

// SetBookmark replaces the sync bookmark row.
func (p *Postgres) SetBookmark(ctx context.Context, lastSyncedAt time.Time, totalIssues int) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE sync_metadata SET last_synced_at = $1, total_issues = $2 WHERE id = 1`,
		lastSyncedAt.UTC(), totalIssues)
	if err != nil {
		return fmt.Errorf("writing bookmark: %w", err)
	}
	return nil
}

func scanPGIssue(rows pgx.Rows) (*Issue, error) {
	var issue Issue
	var labelsJSON, commentsJSON, linkedJSON []byte
	var embedding *pgvector.Vector
	var syncedAt, notifiedAt *time.Time

	err := rows.Scan(
		&issue.Number, &issue.Title, &issue.Body, &issue.State,
		&labelsJSON, &issue.Author, &issue.URL,
		&issue.CreatedAt, &issue.UpdatedAt, &issue.CommentsCount,
		&commentsJSON, &linkedJSON, &issue.Content,
		&embedding, &syncedAt, &notifiedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning issue: %w", err)
	}

	if len(labelsJSON) > 0 {
		_ = json.Unmarshal(labelsJSON, &issue.Labels)
	}
	if len(commentsJSON) > 0 {
		_ = json.Unmarshal(commentsJSON, &issue.Comments)
	}
	if len(linkedJSON) > 0 {
		_ = json.Unmarshal(linkedJSON, &issue.LinkedPRs)
	}
	if embedding != nil {
		issue.Embedding = embedding.Slice()
	}
	if syncedAt != nil {
		issue.SyncedAt = *syncedAt
	}
	issue.NotifiedAt = notifiedAt

	return &issue, nil
}

// Verify Postgres satisfies the Store contract.
var _ Store = (*Postgres)(nil)

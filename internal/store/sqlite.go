package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// SQLite is the default Store backend: a single local database file with
// embeddings stored as float32 BLOBs and an in-process cosine scan for
// nearest-neighbor queries. The scan reads from a vector cache that is
// invalidated on every write.
type SQLite struct {
	db *sql.DB

	cacheMu sync.Mutex
	cache   []vecEntry // nil = not loaded
}

type vecEntry struct {
	number int
	vec    []float32
}

// OpenSQLite opens (or creates) a sqlite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for testing).
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: modernc sqlite serializes writers anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLite{db: sqlDB}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion)); err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}

	return nil
}

func (s *SQLite) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS issues (
			number INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			body TEXT,
			state TEXT NOT NULL,
			labels TEXT,
			author TEXT,
			url TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			comments_count INTEGER NOT NULL DEFAULT 0,
			comments TEXT,
			linked_prs TEXT,
			content TEXT,
			embedding BLOB,
			synced_at TEXT,
			notified_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_state ON issues(state)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_notified ON issues(notified_at)`,
		`CREATE TABLE IF NOT EXISTS sync_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_synced_at TEXT,
			total_issues INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO sync_metadata (id, last_synced_at, total_issues) VALUES (1, NULL, 0)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}

// invalidateCache drops the loaded vector cache; the next nearest-neighbor
// query reloads it from the issues table.
func (s *SQLite) invalidateCache() {
	s.cacheMu.Lock()
	s.cache = nil
	s.cacheMu.Unlock()
}

// loadCache returns the cached (number, vector) entries, loading them from
// the database on first use after an invalidation.
func (s *SQLite) loadCache(ctx context.Context) ([]vecEntry, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.cache != nil {
		return s.cache, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT number, embedding FROM issues WHERE embedding IS NOT NULL ORDER BY number`)
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}
	defer rows.Close()

	entries := make([]vecEntry, 0, 256)
	for rows.Next() {
		var number int
		var blob []byte
		if err := rows.Scan(&number, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		vec := DecodeVector(blob)
		if len(vec) == 0 {
			continue
		}
		entries = append(entries, vecEntry{number: number, vec: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.cache = entries
	return entries, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// Verify SQLite satisfies the Store contract.
var _ Store = (*SQLite)(nil)

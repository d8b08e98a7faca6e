package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the manifest database name inside the cache directory.
const FileName = "manifest.db"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens (creating if needed) the manifest database at dbPath.
// Use ":memory:" for an in-memory database.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create manifest directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		output TEXT PRIMARY KEY,
		sources TEXT NOT NULL,
		hash TEXT NOT NULL,
		written INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS builds (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		mode TEXT NOT NULL,
		outcome TEXT NOT NULL,
		revision TEXT,
		variant TEXT,
		written INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		started INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns every stored artifact keyed by output path.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT output, sources, hash, written FROM artifacts")
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Artifact)
	for rows.Next() {
		var a Artifact
		var sourcesJSON string
		var written int64
		if err := rows.Scan(&a.Output, &sourcesJSON, &a.Hash, &written); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &a.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal sources of %s: %w", a.Output, err)
		}
		a.Written = time.Unix(0, written)
		out[a.Output] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Save replaces the artifact table in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, artifacts map[string]Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM artifacts"); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO artifacts (output, sources, hash, written) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, out := range Outputs(artifacts) {
		a := artifacts[out]
		sources := a.Sources
		if sources == nil {
			sources = []string{}
		}
		sourcesJSON, err := json.Marshal(sources)
		if err != nil {
			return fmt.Errorf("marshal sources: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, out, string(sourcesJSON), a.Hash, a.Written.UnixNano()); err != nil {
			return fmt.Errorf("insert artifact %s: %w", out, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit artifacts: %w", err)
	}
	return nil
}

// AppendBuild adds a history row.
func (s *SQLiteStore) AppendBuild(ctx context.Context, rec BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (id, mode, outcome, revision, variant, written, skipped, removed, failed, started, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Mode, rec.Outcome, rec.Revision, rec.Variant,
		rec.Written, rec.Skipped, rec.Removed, rec.Failed,
		rec.Started.UnixNano(), rec.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// Builds returns the most recent history rows, newest first. A limit of zero
// or less returns all rows.
func (s *SQLiteStore) Builds(ctx context.Context, limit int) ([]BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, outcome, revision, variant, written, skipped, removed, failed, started, elapsed_ms
		FROM builds ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var r BuildRecord
		var revision, variant sql.NullString
		var started, elapsedMS int64
		if err := rows.Scan(&r.ID, &r.Mode, &r.Outcome, &revision, &variant,
			&r.Written, &r.Skipped, &r.Removed, &r.Failed, &started, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		r.Revision = revision.String
		r.Variant = variant.String
		r.Started = time.Unix(0, started)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	scouterr "github.com/Itsme23476/filescout/internal/errors"
)

// SQLiteStore implements MetadataStore on modernc.org/sqlite.
// WAL mode with a single connection keeps writers serialized without
// busy-loop contention.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the metadata database at path and
// migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	// Serialize all access through one connection. modernc.org/sqlite
	// allows one writer at a time; pooling only produces SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	identity     TEXT PRIMARY KEY,
	path         TEXT NOT NULL UNIQUE,
	root         TEXT NOT NULL,
	name         TEXT NOT NULL,
	extension    TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT 'misc',
	size         INTEGER NOT NULL DEFAULT 0,
	mod_time     INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL DEFAULT '',
	caption      TEXT NOT NULL DEFAULT '',
	ocr_text     TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	status       TEXT NOT NULL DEFAULT 'pending',
	embedding_id TEXT NOT NULL DEFAULT '',
	indexed_at   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_files_root ON files(root);
CREATE INDEX IF NOT EXISTS idx_files_category ON files(category);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);

CREATE TABLE IF NOT EXISTS index_runs (
	id          TEXT PRIMARY KEY,
	root        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0,
	scanned     INTEGER NOT NULL DEFAULT 0,
	enriched    INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	cursor      INTEGER NOT NULL DEFAULT 0,
	done        INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_root ON index_runs(root, started_at);

CREATE TABLE IF NOT EXISTS search_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	query        TEXT NOT NULL,
	result_count INTEGER NOT NULL DEFAULT 0,
	executed_at  INTEGER NOT NULL
);
`

// migrate creates tables and verifies the schema version.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec("INSERT INTO schema_info (version) VALUES (?)", CurrentSchemaVersion); err != nil {
			return scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
		}
	case err != nil:
		return scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	case version != CurrentSchemaVersion:
		return scouterr.New(scouterr.ErrCodeSchemaMismatch,
			fmt.Sprintf("database schema version %d, want %d", version, CurrentSchemaVersion), nil).
			WithDetail("path", s.path).
			WithSuggestion("delete the data directory and reindex")
	}

	return nil
}

// Upsert inserts or replaces a file record in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *FileRecord) error {
	if rec.Identity == "" || rec.Path == "" {
		return scouterr.New(scouterr.ErrCodeInvalidInput, "record requires identity and path", nil)
	}

	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return scouterr.Wrap(scouterr.ErrCodeInternal, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (identity, path, root, name, extension, category, size,
			mod_time, content_hash, caption, ocr_text, tags, status, embedding_id, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			path = excluded.path,
			root = excluded.root,
			name = excluded.name,
			extension = excluded.extension,
			category = excluded.category,
			size = excluded.size,
			mod_time = excluded.mod_time,
			content_hash = excluded.content_hash,
			caption = excluded.caption,
			ocr_text = excluded.ocr_text,
			tags = excluded.tags,
			status = excluded.status,
			embedding_id = excluded.embedding_id,
			indexed_at = excluded.indexed_at`,
		rec.Identity, rec.Path, rec.Root, rec.Name, rec.Extension, rec.Category,
		rec.Size, rec.ModTime.UnixNano(), rec.ContentHash, rec.Caption, rec.OCRText,
		string(tags), string(rec.Status), rec.EmbeddingID, rec.IndexedAt.UnixNano())
	if err != nil {
		return scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return nil
}

const fileColumns = `identity, path, root, name, extension, category, size,
	mod_time, content_hash, caption, ocr_text, tags, status, embedding_id, indexed_at`

func scanRecord(scanner interface{ Scan(...any) error }) (*FileRecord, error) {
	var rec FileRecord
	var modTime, indexedAt int64
	var tags, status string

	err := scanner.Scan(&rec.Identity, &rec.Path, &rec.Root, &rec.Name,
		&rec.Extension, &rec.Category, &rec.Size, &modTime, &rec.ContentHash,
		&rec.Caption, &rec.OCRText, &tags, &status, &rec.EmbeddingID, &indexedAt)
	if err != nil {
		return nil, err
	}

	rec.ModTime = time.Unix(0, modTime)
	if indexedAt > 0 {
		rec.IndexedAt = time.Unix(0, indexedAt)
	}
	rec.Status = EnrichmentStatus(status)
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		rec.Tags = nil
	}
	return &rec, nil
}

// Get fetches one record by identity. Returns ErrNotFound if missing.
func (s *SQLiteStore) Get(ctx context.Context, identity string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE identity = ?", identity)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return rec, nil
}

// GetByPath fetches one record by absolute path.
func (s *SQLiteStore) GetByPath(ctx context.Context, path string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE path = ?", path)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return rec, nil
}

// GetMany fetches records by identity. Missing identities are silently
// omitted; order follows the input order.
func (s *SQLiteStore) GetMany(ctx context.Context, identities []string) ([]*FileRecord, error) {
	if len(identities) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(identities))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(identities))
	for i, id := range identities {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE identity IN ("+placeholders+")", args...)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	defer rows.Close()

	byID := make(map[string]*FileRecord, len(identities))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
		}
		byID[rec.Identity] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	out := make([]*FileRecord, 0, len(byID))
	for _, id := range identities {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes a record and returns the embedding ID it held.
// Deleting an unknown identity returns empty and no error.
func (s *SQLiteStore) Delete(ctx context.Context, identity string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	var embeddingID string
	err = tx.QueryRowContext(ctx,
		"SELECT embedding_id FROM files WHERE identity = ?", identity).Scan(&embeddingID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE identity = ?", identity); err != nil {
		return "", scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return "", scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return embeddingID, nil
}

// DeleteByRoot removes all records under root and returns their
// embedding IDs for vector cascade.
func (s *SQLiteStore) DeleteByRoot(ctx context.Context, root string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT embedding_id FROM files WHERE root = ? AND embedding_id != ''", root)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE root = ?", root); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM index_runs WHERE root = ?", root); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return ids, nil
}

// QueryByPredicates returns all records matching the conjunction of
// set predicates, ordered by path for determinism.
func (s *SQLiteStore) QueryByPredicates(ctx context.Context, p Predicates) ([]*FileRecord, error) {
	var where []string
	var args []any

	if p.Root != "" {
		where = append(where, "root = ?")
		args = append(args, p.Root)
	}
	if p.Category != "" {
		where = append(where, "category = ?")
		args = append(args, p.Category)
	}
	for _, tag := range p.Tags {
		// Tags are stored as a JSON array of strings; match the quoted
		// element to avoid substring false positives.
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+strings.ToLower(tag)+`"%`)
	}
	if p.HasOCR {
		where = append(where, "ocr_text != ''")
	}
	if p.HasVision {
		where = append(where, "caption != ''")
	}

	query := "SELECT " + fileColumns + " FROM files"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	defer rows.Close()

	var out []*FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return out, nil
}

// ScanRoot returns all records under root ordered by path.
func (s *SQLiteStore) ScanRoot(ctx context.Context, root string) ([]*FileRecord, error) {
	return s.QueryByPredicates(ctx, Predicates{Root: root})
}

// SaveRun inserts or updates an index run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *IndexRun) error {
	if run.ID == "" {
		return scouterr.New(scouterr.ErrCodeInvalidInput, "run requires an ID", nil)
	}

	var finished int64
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UnixNano()
	}
	done := 0
	if run.Done {
		done = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_runs (id, root, started_at, finished_at, scanned,
			enriched, failed, skipped, cursor, done)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			scanned = excluded.scanned,
			enriched = excluded.enriched,
			failed = excluded.failed,
			skipped = excluded.skipped,
			cursor = excluded.cursor,
			done = excluded.done`,
		run.ID, run.Root, run.StartedAt.UnixNano(), finished,
		run.Scanned, run.Enriched, run.Failed, run.Skipped, run.Cursor, done)
	if err != nil {
		return scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return nil
}

func scanRun(scanner interface{ Scan(...any) error }) (*IndexRun, error) {
	var run IndexRun
	var started, finished int64
	var done int

	err := scanner.Scan(&run.ID, &run.Root, &started, &finished,
		&run.Scanned, &run.Enriched, &run.Failed, &run.Skipped, &run.Cursor, &done)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(0, started)
	if finished > 0 {
		run.FinishedAt = time.Unix(0, finished)
	}
	run.Done = done == 1
	return &run, nil
}

const runColumns = "id, root, started_at, finished_at, scanned, enriched, failed, skipped, cursor, done"

// GetRun fetches a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*IndexRun, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM index_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return run, nil
}

// UnfinishedRun returns the most recent unfinished run for root, or
// ErrNotFound if every run completed.
func (s *SQLiteStore) UnfinishedRun(ctx context.Context, root string) (*IndexRun, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM index_runs WHERE root = ? AND done = 0 ORDER BY started_at DESC LIMIT 1", root)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return run, nil
}

// RecordSearch appends a query to the search history.
func (s *SQLiteStore) RecordSearch(ctx context.Context, query string, resultCount int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO search_history (query, result_count, executed_at) VALUES (?, ?, ?)",
		query, resultCount, time.Now().UnixNano())
	if err != nil {
		return scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return nil
}

// RecentSearches returns the latest queries, newest first.
func (s *SQLiteStore) RecentSearches(ctx context.Context, limit int) ([]*SearchEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT query, result_count, executed_at FROM search_history ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	defer rows.Close()

	var out []*SearchEntry
	for rows.Next() {
		var e SearchEntry
		var at int64
		if err := rows.Scan(&e.Query, &e.ResultCount, &at); err != nil {
			return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
		}
		e.ExecutedAt = time.Unix(0, at)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	return out, nil
}

// Stats summarizes the index contents.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByCategory: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM files GROUP BY category")
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			_ = rows.Close()
			return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
		}
		st.ByCategory[cat] = n
		st.TotalFiles += n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	_ = rows.Close()

	var lastIndexed int64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN ocr_text != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN caption != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'complete' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(indexed_at), 0)
		FROM files`).
		Scan(&st.WithOCR, &st.WithCaption, &st.Complete, &st.Failed, &st.Pending, &lastIndexed)
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ErrCodeIOFailure, err)
	}
	if lastIndexed > 0 {
		st.LastIndexedAt = time.Unix(0, lastIndexed)
	}
	return st, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Verify interface implementation
var _ MetadataStore = (*SQLiteStore)(nil)

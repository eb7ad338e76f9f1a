package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore implements Store using SQLite with an FTS5 virtual table for
// full-text search. WAL mode enables concurrent readers alongside a single
// writer, matching the reader-writer exclusivity the cascade requires.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// validateIntegrity checks an existing SQLite file before opening it, so a
// corrupted store is caught at startup rather than mid-query.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='sections'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("sections table missing")
	}

	return nil
}

// NewSQLiteStore opens (or creates) the document store at path. An empty
// path opens an in-memory database, used by tests.
func NewSQLiteStore(path string, cacheMB int) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("store_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if cacheMB <= 0 {
		cacheMB = 64
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		version TEXT NOT NULL DEFAULT '',
		base_url TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS sections (
		section_id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_name TEXT NOT NULL REFERENCES documents(name) ON DELETE CASCADE,
		title TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 5,
		keywords_json TEXT NOT NULL DEFAULT '[]',
		use_cases_json TEXT NOT NULL DEFAULT '[]',
		tags_json TEXT NOT NULL DEFAULT '[]',
		content TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		UNIQUE(doc_name, path)
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS sections_fts USING fts5(
		title, keywords, use_cases, tags, content,
		content='sections', content_rowid='section_id', tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS engine_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc Document, sections []Section) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteDocumentSections(ctx, tx, doc.Name); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents(name, display_name, version, base_url) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET display_name=excluded.display_name, version=excluded.version, base_url=excluded.base_url`,
		doc.Name, doc.DisplayName, doc.Version, doc.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to upsert document %s: %w", doc.Name, err)
	}

	insertSection, err := tx.PrepareContext(ctx, `
		INSERT INTO sections(doc_name, title, path, url, priority, keywords_json, use_cases_json, tags_json, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare section insert: %w", err)
	}
	defer insertSection.Close()

	insertFTS, err := tx.PrepareContext(ctx, `
		INSERT INTO sections_fts(rowid, title, keywords, use_cases, tags, content)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare fts insert: %w", err)
	}
	defer insertFTS.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	ids := make([]int64, 0, len(sections))
	for _, sec := range sections {
		keywords := NormalizeFacet(sec.Keywords)
		useCases := NormalizeUseCases(sec.UseCases)
		tags := NormalizeFacet(sec.Tags)
		priority := ClampPriority(sec.Priority)

		kwJSON, _ := json.Marshal(keywords)
		ucJSON, _ := json.Marshal(useCases)
		tagJSON, _ := json.Marshal(tags)

		res, err := insertSection.ExecContext(ctx, doc.Name, sec.Title, sec.Path, sec.URL, priority, string(kwJSON), string(ucJSON), string(tagJSON), sec.Content, now, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert section %s/%s: %w", doc.Name, sec.Path, err)
		}
		sectionID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read assigned section_id: %w", err)
		}

		if _, err := insertFTS.ExecContext(ctx, sectionID, sec.Title,
			strings.Join(keywords, " "), strings.Join(useCases, " "), strings.Join(tags, " "), sec.Content); err != nil {
			return nil, fmt.Errorf("failed to index section %d: %w", sectionID, err)
		}

		ids = append(ids, sectionID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ingest: %w", err)
	}

	return ids, nil
}

// deleteDocumentSections removes every section (and matching FTS row) for
// name within an open transaction. Safe to call for a name with no rows.
func deleteDocumentSections(ctx context.Context, tx *sql.Tx, name string) error {
	rows, err := tx.QueryContext(ctx, `SELECT section_id FROM sections WHERE doc_name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to enumerate existing sections: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan section_id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sections_fts WHERE rowid = ?`, id); err != nil {
			return fmt.Errorf("failed to delete fts row %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE doc_name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete sections for %s: %w", name, err)
	}

	return nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, name string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT section_id FROM sections WHERE doc_name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sections: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := deleteDocumentSections(ctx, tx, name); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("failed to delete document %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}

	return ids, nil
}

func (s *SQLiteStore) GetSection(ctx context.Context, sectionID int64) (*Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT section_id, doc_name, title, path, url, priority, keywords_json, use_cases_json, tags_json, content, created_at, updated_at
		FROM sections WHERE section_id = ?`, sectionID)

	sec, err := scanSection(row)
	if err == sql.ErrNoRows {
		return nil, ErrSectionNotFound{SectionID: sectionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load section %d: %w", sectionID, err)
	}
	return sec, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, name string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc Document
	err := s.db.QueryRowContext(ctx, `SELECT name, display_name, version, base_url FROM documents WHERE name = ?`, name).
		Scan(&doc.Name, &doc.DisplayName, &doc.Version, &doc.BaseURL)
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", name, err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections WHERE doc_name = ?`, name).Scan(&doc.Sections)
	if err != nil {
		return nil, fmt.Errorf("failed to count sections for %s: %w", name, err)
	}

	return &doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.name, d.display_name, d.version, d.base_url, COUNT(s.section_id)
		FROM documents d
		LEFT JOIN sections s ON s.doc_name = d.name
		GROUP BY d.name
		ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Name, &d.DisplayName, &d.Version, &d.BaseURL, &d.Sections); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) IterSections(ctx context.Context, fn func(Section) error) error {
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, doc_name, title, path, url, priority, keywords_json, use_cases_json, tags_json, content, created_at, updated_at
		FROM sections ORDER BY doc_name, section_id`)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to iterate sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return fmt.Errorf("failed to scan section: %w", err)
		}
		if err := fn(*sec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) SearchFTS(ctx context.Context, query string, docName string, limit int) ([]FtsCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	args := []any{trimmed}
	docFilter := ""
	if docName != "" {
		docFilter = " AND s.doc_name = ?"
		args = append(args, docName)
	}
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
		SELECT s.section_id, bm25(sections_fts) AS score, s.priority
		FROM sections_fts
		JOIN sections s ON s.section_id = sections_fts.rowid
		WHERE sections_fts MATCH ?%s
		ORDER BY score ASC, s.priority DESC, s.section_id ASC
		LIMIT ?`, docFilter)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("fts search failed: %w", err)
	}
	defer rows.Close()

	var results []FtsCandidate
	for rows.Next() {
		var c FtsCandidate
		var rawScore float64
		if err := rows.Scan(&c.SectionID, &rawScore, &c.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan fts result: %w", err)
		}
		// bm25() returns negative values where lower (more negative) is a
		// better match; negate so higher means better, consistent with the
		// rest of the cascade's scoring.
		c.Score = -rawScore
		results = append(results, c)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) SectionCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sections: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM engine_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state key %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_state(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSection(row rowScanner) (*Section, error) {
	var sec Section
	var kwJSON, ucJSON, tagJSON, createdAt, updatedAt string
	if err := row.Scan(&sec.SectionID, &sec.DocName, &sec.Title, &sec.Path, &sec.URL, &sec.Priority, &kwJSON, &ucJSON, &tagJSON, &sec.Content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(kwJSON), &sec.Keywords)
	_ = json.Unmarshal([]byte(ucJSON), &sec.UseCases)
	_ = json.Unmarshal([]byte(tagJSON), &sec.Tags)
	sec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sec, nil
}

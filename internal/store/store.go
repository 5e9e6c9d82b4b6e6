// Package store implements the authoritative note record store.
//
// Every read is served from the store, never from disk. Writes validate an
// expected content hash (optimistic concurrency) before mutating, so lost
// updates surface as conflicts instead of disappearing silently. The store
// is backed by SQLite with an LRU record cache in front.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/flint-notes/flint/internal/errors"
	"github.com/flint-notes/flint/internal/note"
)

// defaultCacheSize bounds the in-memory record cache.
const defaultCacheSize = 512

const schema = `
CREATE TABLE IF NOT EXISTS notes (
    id           TEXT PRIMARY KEY,
    path         TEXT NOT NULL UNIQUE,
    title        TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL,
    deleted_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_notes_path ON notes(path);
`

// Store is the SQLite-backed record store.
// Writes to a single note are strictly serialized: SQLite runs on one
// connection and mutations validate the content hash inside the statement.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	cache  *lru.Cache[string, *note.Record]
	path   string
	closed bool
}

// Open opens (or creates) a store at the given database path.
// An empty path creates an in-memory store for testing.
func Open(path string) (*Store, error) {
	return OpenWithCache(path, defaultCacheSize)
}

// OpenWithCache opens a store with an explicit record cache capacity.
func OpenWithCache(path string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	// One connection keeps note mutations serialized and avoids
	// table-lock errors from concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	cache, err := lru.New[string, *note.Record](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	return &Store{db: db, cache: cache, path: path}, nil
}

// Close closes the underlying database. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Purge()
	return s.db.Close()
}

// Get returns the record for a note id.
// Returns a NoteNotFound error when no live record exists.
func (s *Store) Get(ctx context.Context, id string) (*note.Record, error) {
	if rec, ok := s.cache.Get(id); ok {
		return rec.Clone(), nil
	}

	rec, err := s.queryOne(ctx, `SELECT id, path, title, content, content_hash, created_at, updated_at
		FROM notes WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NoteNotFound(id)
		}
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	s.cache.Add(rec.ID, rec.Clone())
	return rec, nil
}

// GetByPath returns the record whose file lives at the given canonical path.
func (s *Store) GetByPath(ctx context.Context, path string) (*note.Record, error) {
	rec, err := s.queryOne(ctx, `SELECT id, path, title, content, content_hash, created_at, updated_at
		FROM notes WHERE path = ? AND deleted_at IS NULL`, path)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NoteNotFound(path)
		}
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	s.cache.Add(rec.ID, rec.Clone())
	return rec, nil
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, rec *note.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO notes
		(id, path, title, content, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.Title, rec.Content, rec.ContentHash,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	s.cache.Add(rec.ID, rec.Clone())
	return nil
}

// UpdateContent mutates a note's content iff expectedHash matches the
// current content hash. On mismatch it returns a Conflict error and
// mutates nothing. On success the returned record carries the new hash.
func (s *Store) UpdateContent(ctx context.Context, id, content, expectedHash string) (*note.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	newHash := note.Hash(content)
	title := note.TitleFromContent(current.Path, content)
	now := time.Now().UTC()

	// Hash check and mutation happen in one statement so a concurrent
	// writer cannot slip between validation and update.
	res, err := s.db.ExecContext(ctx, `UPDATE notes
		SET content = ?, content_hash = ?, title = ?, updated_at = ?
		WHERE id = ? AND content_hash = ? AND deleted_at IS NULL`,
		content, newHash, title, now.Format(time.RFC3339Nano), id, expectedHash)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}
	if affected == 0 {
		s.cache.Remove(id)
		return nil, errors.Conflict(id)
	}

	rec, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Add(rec.ID, rec.Clone())
	return rec, nil
}

// ApplyExternal makes the file's content authoritative for the note at the
// given path, creating a record if none exists (migration fallback for
// files discovered on disk). Returns the record and whether it was created.
func (s *Store) ApplyExternal(ctx context.Context, path, content string) (*note.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	title := note.TitleFromContent(path, content)

	existing, err := s.queryOne(ctx, `SELECT id, path, title, content, content_hash, created_at, updated_at
		FROM notes WHERE path = ? AND deleted_at IS NULL`, path)
	if err == sql.ErrNoRows {
		rec := note.NewRecord(path, title, content)
		_, err := s.db.ExecContext(ctx, `INSERT INTO notes
			(id, path, title, content, content_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Path, rec.Title, rec.Content, rec.ContentHash,
			rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return nil, false, errors.Wrap(errors.ErrCodeStoreFailed, err)
		}
		s.cache.Add(rec.ID, rec.Clone())
		return rec.Clone(), true, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	existing.SetContent(content)
	existing.Title = title
	_, err = s.db.ExecContext(ctx, `UPDATE notes
		SET content = ?, content_hash = ?, title = ?, updated_at = ?
		WHERE id = ?`,
		existing.Content, existing.ContentHash, existing.Title,
		existing.UpdatedAt.Format(time.RFC3339Nano), existing.ID)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	s.cache.Add(existing.ID, existing.Clone())
	return existing, false, nil
}

// Delete tombstones a record. The row is kept so a recreated file at the
// same path gets a fresh identity while history remains traceable.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET deleted_at = ?, path = path || '#deleted#' || id WHERE id = ? AND deleted_at IS NULL`,
		now, id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, err)
	}
	if affected == 0 {
		return errors.NoteNotFound(id)
	}

	s.cache.Remove(id)
	return nil
}

// List returns all live records ordered by path.
func (s *Store) List(ctx context.Context) ([]*note.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, title, content, content_hash, created_at, updated_at
		FROM notes WHERE deleted_at IS NULL ORDER BY path`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}
	defer rows.Close()

	var records []*note.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of live records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}
	return n, nil
}

// getLocked fetches a record by id. Caller must hold s.mu.
func (s *Store) getLocked(ctx context.Context, id string) (*note.Record, error) {
	rec, err := s.queryOne(ctx, `SELECT id, path, title, content, content_hash, created_at, updated_at
		FROM notes WHERE id = ? AND deleted_at IS NULL`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NoteNotFound(id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) queryOne(ctx context.Context, query string, arg string) (*note.Record, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	return scanRecord(row)
}

func scanRecord(row rowScanner) (*note.Record, error) {
	var rec note.Record
	var createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &rec.Path, &rec.Title, &rec.Content,
		&rec.ContentHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}

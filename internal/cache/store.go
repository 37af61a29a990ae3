package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (entries)
// 1 - Added cache_info table recording the cache format version
const currentSchemaVersion = 1

// Directory and file names within the cache root.
const (
	dbFile   = "cache.db"
	filesDir = "files"
	tmpDir   = "tmp"
)

// Store is the persistent artifact store for one cache directory.
//
// Thread-safety: all methods are safe for concurrent use. Writes are
// serialized by SQLite's single writer connection; the shared read view
// is guarded by an internal mutex.
type Store struct {
	dir    string
	cfg    config
	logger *slog.Logger

	writer *sql.DB
	reader *sql.DB

	mu     sync.Mutex
	view   *sql.Tx
	closed bool

	shared bool
}

// Open creates or opens the cache rooted at dir.
// The directory tree is created if missing; opening a directory that
// already holds data is not an error.
//
// This function is idempotent - safe to call multiple times.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, d := range []string{dir, filepath.Join(dir, filesDir), filepath.Join(dir, tmpDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", d, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(dir, dbFile))

	writer, err := openDB(dsn, cfg.mmapSize)
	if err != nil {
		return nil, err
	}
	if err := applySchema(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	reader, err := openDB(dsn, cfg.mmapSize)
	if err != nil {
		writer.Close()
		return nil, err
	}

	s := &Store{
		dir:    dir,
		cfg:    cfg,
		logger: cfg.logger,
		writer: writer,
		reader: reader,
	}
	s.logger.Debug("cache opened", "dir", dir, "chunk_size", cfg.chunkSize)
	return s, nil
}

// openDB opens one single-connection pool with the required pragmas.
func openDB(dsn string, mmapSize int64) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection per pool: the writer because SQLite allows a single
	// writer, the reader because its open transaction is the read view.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, mmapSize); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, mmapSize int64) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		fmt.Sprintf("PRAGMA mmap_size = %d", mmapSize),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 records the cache format version so a future format change
// can detect and discard incompatible data.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_info (
			name  TEXT PRIMARY KEY NOT NULL,
			value TEXT NOT NULL
		);
		INSERT INTO cache_info (name, value) VALUES ('format', '1')
		ON CONFLICT(name) DO NOTHING;
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// Dir returns the cache root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether the store is open and its directory is present.
func (s *Store) Exists() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// Refresh drops the cached read view. The next read starts a fresh
// snapshot that includes every commit made up to that point, including
// commits from other processes.
func (s *Store) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropViewLocked()
}

func (s *Store) dropViewLocked() {
	if s.view != nil {
		_ = s.view.Rollback()
		s.view = nil
	}
}

// withView runs fn against the current read view, opening one if needed.
func (s *Store) withView(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("cache is closed")
	}
	if s.view == nil {
		// The view outlives any single call, so it must not be bound to
		// a caller's context.
		tx, err := s.reader.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin read view: %w", err)
		}
		s.view = tx
	}
	return fn(s.view)
}

// Close releases the database handles. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.dropViewLocked()
	s.closed = true
	s.mu.Unlock()

	unregisterShared(s)

	errR := s.reader.Close()
	errW := s.writer.Close()
	return errors.Join(errR, errW)
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.writer.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Package storage owns the SQLite record store: schema migration, default
// reference data, record and lookup queries, and the swappable handle that
// lets a restore replace the database file under a running process.
package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"findash/internal/core"
	"findash/internal/jsonfile"
	applog "findash/internal/log"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned by queries issued while no database is open, for
// example after a failed restore.
var ErrClosed = core.Configuration(core.CodeStoreUnavailable, "record store is not open")

// Handle is the indirection every store consumer goes through. Queries hold a
// read lock for their duration; Replace takes the write lock, so it waits for
// in-flight queries and blocks new ones until the new file is open.
type Handle struct {
	path   string
	loc    *time.Location
	logger *slog.Logger

	mu      sync.RWMutex
	db      *sql.DB
	version uint
}

// Option customises a Handle.
type Option func(*Handle)

// WithLocation sets the zone used to derive dateLocal from instants.
func WithLocation(loc *time.Location) Option {
	return func(h *Handle) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithLogger sets the logger used for store lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Open creates the database directory, opens the file in WAL mode, runs
// migrations and seeds default lookups.
func Open(ctx context.Context, path string, opts ...Option) (*Handle, error) {
	h := &Handle{
		path:   path,
		loc:    time.Local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.openLocked(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handle) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + h.path + "?" + q.Encode()
}

func (h *Handle) openLocked(ctx context.Context) error {
	version, err := RunMigrations(h.dsn())
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", h.dsn())
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	if err := SeedDefaults(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("seed defaults: %w", err)
	}

	h.db = db
	h.version = version
	h.logger.InfoContext(ctx, "Record store opened", applog.FieldDBPath, h.path, "schema_version", version)
	return nil
}

// Path is the live database file.
func (h *Handle) Path() string { return h.path }

// Location is the zone used to derive dateLocal.
func (h *Handle) Location() *time.Location { return h.loc }

// SchemaVersion reports the migration version of the open file.
func (h *Handle) SchemaVersion() uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Close closes the live database. Further queries fail with ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// withDB runs fn against the current database under the read lock.
func (h *Handle) withDB(fn func(db *sql.DB) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.db == nil {
		return ErrClosed
	}
	return fn(h.db)
}

// withTx runs fn inside a transaction on the current database.
func (h *Handle) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return h.withDB(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// Ping checks the live database.
func (h *Handle) Ping(ctx context.Context) error {
	return h.withDB(func(db *sql.DB) error {
		return db.PingContext(ctx)
	})
}

// Snapshot merges the write-ahead log into the main file and returns the
// file's bytes. It holds the write lock so no writer can append to the WAL
// between the checkpoint and the read.
func (h *Handle) Snapshot(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil, ErrClosed
	}
	if _, err := h.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		// A failed checkpoint still leaves a readable main file; the newest
		// writes may be missing from the snapshot.
		h.logger.WarnContext(ctx, "Checkpoint before snapshot failed", applog.FieldError, err)
	}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("read database file: %w", err)
	}
	return data, nil
}

// sqliteHeader opens every SQLite 3 database file.
const sqliteHeader = "SQLite format 3\x00"

// Replace swaps the database file for data. data is first written and synced
// to a staging file next to the live one and checked by opening it; anything
// that is not a readable SQLite database is rejected with the live store
// untouched. Only then is the live handle closed, the -wal and -shm side
// files dropped, the staging file renamed over the live path and the store
// reopened (migrations and seeding run again). If the rename or reopen fails
// the store stays closed and queries return ErrClosed.
func (h *Handle) Replace(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return core.Integrity(core.CodeBackupDatabaseMissing, "backup contains an empty database")
	}
	if !bytes.HasPrefix(data, []byte(sqliteHeader)) {
		return core.Integrity(core.CodeBackupDatabaseMissing, "backup database is not a SQLite file")
	}

	staged := h.path + ".restore"
	if err := jsonfile.WriteBytes(staged, data); err != nil {
		return fmt.Errorf("stage restored database: %w", err)
	}
	defer removeDatabaseFiles(staged)

	if err := checkDatabaseFile(ctx, staged); err != nil {
		e := core.Integrity(core.CodeBackupDatabaseMissing, "backup database is unreadable")
		e.Err = err
		return e
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		if err := h.db.Close(); err != nil {
			h.logger.WarnContext(ctx, "Failed to close database before restore", applog.FieldError, err)
		}
		h.db = nil
	}

	for _, side := range []string{h.path + "-wal", h.path + "-shm"} {
		if err := os.Remove(side); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(side), err)
		}
	}

	if err := os.Rename(staged, h.path); err != nil {
		return fmt.Errorf("rename staged database: %w", err)
	}

	if err := h.openLocked(ctx); err != nil {
		return fmt.Errorf("reopen database: %w", err)
	}
	return nil
}

// checkDatabaseFile opens path on its own connection and runs
// PRAGMA quick_check.
func checkDatabaseFile(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}

func removeDatabaseFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		_ = os.Remove(p)
	}
}

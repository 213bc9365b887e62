package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

// DB wraps a sql.DB connection to the tmebrain SQLite database.
type DB struct {
	*sql.DB
	Path string

	// Now is the clock used for every timestamp the store writes or compares.
	// Tests replace it to move time forward.
	Now func() time.Time
}

// DefaultDBPath returns the default database path: ~/.tmebrain/tmebrain.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".tmebrain", "tmebrain.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", memoryPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection to :memory: would get its own empty database.
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB, memoryPath)
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path, Now: time.Now}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA mmap_size=268435456", // 256MB
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func (db *DB) now() time.Time {
	if db.Now == nil {
		return time.Now()
	}
	return db.Now()
}

// InMemory reports whether the database lives only in memory.
func (db *DB) InMemory() bool {
	return db.Path == memoryPath
}

// Footprint returns the on-disk size in bytes of the database file and its
// WAL/SHM siblings. In-memory databases report page_count * page_size.
func (db *DB) Footprint(ctx context.Context) (int64, error) {
	if db.InMemory() {
		var pages, pageSize int64
		if err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
			return 0, fmt.Errorf("page count: %w", err)
		}
		if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
			return 0, fmt.Errorf("page size: %w", err)
		}
		return pages * pageSize, nil
	}

	var total int64
	for _, p := range []string{db.Path, db.Path + "-wal", db.Path + "-shm"} {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", p, err)
		}
		total += info.Size()
	}
	return total, nil
}

// Compact rebuilds the database file to reclaim pages freed by deletes.
// VACUUM needs the database to itself; concurrent writers wait on busy_timeout.
func (db *DB) Compact(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if db.InMemory() {
		return nil
	}
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Counts holds row counts per table, used for stats reporting.
type Counts struct {
	History       int64
	Cache         int64
	Sessions      int64
	Documents     int64
	OldestHistory *time.Time
}

// Counts returns row counts for every persisted store.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"history", &c.History},
		{"cache", &c.Cache},
		{"session", &c.Sessions},
		{"documents", &c.Documents},
	} {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return c, fmt.Errorf("count %s: %w", q.table, err)
		}
	}

	var oldest sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MIN(timestamp) FROM history").Scan(&oldest); err != nil {
		return c, fmt.Errorf("oldest history: %w", err)
	}
	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64)
		c.OldestHistory = &t
	}
	return c, nil
}

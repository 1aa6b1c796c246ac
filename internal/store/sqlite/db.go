// Package sqlite is the concrete Store implementation (C1): a single
// write-serialized SQLite connection with WAL journaling, embedded goose
// migrations, and config_version bumping done by the Create and Update
// methods of users, hosts and workers, each of which calls nextConfigVersion.
//
// Grounded on the teacher's pkg/storage/sqlite.Open: same pragma set, same
// MaxOpenConns(1) single-writer discipline, same DefaultDBPath helper.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/sunrayhq/control-plane/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a single *sql.DB configured for SQLite's serialized-writer model.
type DB struct {
	db *sql.DB
}

// DB returns the underlying *sql.DB, primarily for tests.
func (d *DB) DB() *sql.DB { return d.db }

// Close releases the underlying connection.
func (d *DB) Close() error { return d.db.Close() }

// DefaultDBPath returns the default on-disk database location.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "sunray", "sunray.db")
}

// Open opens (creating parent directories and the schema if necessary) a
// SQLite database at path, applies the teacher's pragma set, and runs any
// pending goose migrations embedded in this package.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// A single writer serializes every mutating transaction, which is what
	// gives us the row-level-locking contract spec.md §5 asks for without a
	// separate lock manager.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -2000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("sqlite: apply pragma %q: %w", p, err)
		}
	}

	db := &DB{db: sqlDB}
	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func migrate(sqlDB *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: set goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("sqlite: run migrations: %w", err)
	}
	logger.Info("sqlite: migrations applied")
	return nil
}

// Package db persists capture sessions, readouts, and analysis results in
// sqlite.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsFS returns the embedded migration files rooted at the
// migrations directory.
func MigrationsFS() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}

type DB struct {
	*sql.DB
}

// OpenDB opens the sqlite database at path without touching the schema.
// Use NewDB unless the caller manages migrations itself (the migrate
// subcommand does).
func OpenDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; the capture loop and the API server
	// share this handle, so queue briefly instead of failing with SQLITE_BUSY.
	if _, err := sqldb.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return &DB{sqldb}, nil
}

// NewDB opens the database and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrations, err := MigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	busyTimeout = 5 * time.Second

	// WAL mode supports many concurrent readers next to the single writer.
	sqliteReaderConns = 4
)

// OpenSQLite opens the write side of a SQLite database. The pool is capped at
// one connection so writes serialise in the driver instead of surfacing as
// SQLITE_BUSY errors.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	path, err := prepareSQLitePath(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path, "rwc")+"&_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// OpenSQLiteReader opens a read-only pool against the same database file.
// journal_mode and synchronous are database-level settings owned by the
// writer, so the reader DSN does not repeat them.
func OpenSQLiteReader(dbPath string) (*sql.DB, error) {
	path, err := prepareSQLitePath(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path, "ro"))
	if err != nil {
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}
	db.SetMaxOpenConns(sqliteReaderConns)
	db.SetMaxIdleConns(sqliteReaderConns)
	return db, nil
}

func sqliteDSN(path, mode string) string {
	return fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=%s&_busy_timeout=%d&_cache=shared",
		path, mode, int(busyTimeout/time.Millisecond),
	)
}

// prepareSQLitePath resolves the path and makes sure the parent directory and
// the database file exist, so a read-only open cannot fail on first start.
func prepareSQLitePath(dbPath string) (string, error) {
	path := dbPath
	if abs, err := filepath.Abs(dbPath); err == nil {
		path = abs
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to prepare database directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create database file: %w", err)
	}
	return path, file.Close()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

const (
	memoryPath = ":memory:"

	slowQueryThreshold = 100 * time.Millisecond
	slowBatchThreshold = 500 * time.Millisecond
)

// DB wraps the SQLite catalog database.
// Writes go through a single-connection pool so SQLite never sees
// concurrent writers; reads use a separate pool. In-memory databases share
// one connection for both, since every connection would otherwise open its
// own empty database.
type DB struct {
	writer *sql.DB
	reader *sql.DB
	path   string
}

// New opens (creating if needed) the catalog database at dbPath and
// initializes the schema. Use ":memory:" for an ephemeral database.
func New(ctx context.Context, dbPath string) (*DB, error) {
	if dbPath == memoryPath {
		conn, err := sql.Open("sqlite", memoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		return initialize(ctx, &DB{writer: conn, reader: conn, path: dbPath})
	}

	// Ensure directory exists
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + dbPath +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)" +
		"&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to open database reader: %w", err)
	}
	reader.SetMaxOpenConns(8)
	reader.SetMaxIdleConns(4)
	reader.SetConnMaxLifetime(time.Hour)

	return initialize(ctx, &DB{writer: writer, reader: reader, path: dbPath})
}

func initialize(ctx context.Context, db *DB) (*DB, error) {
	if err := db.writer.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := InitSchema(ctx, db.writer); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connections
func (db *DB) Close() error {
	var err error
	if db.reader != nil && db.reader != db.writer {
		err = db.reader.Close()
	}
	if db.writer != nil {
		if werr := db.writer.Close(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Ping verifies both connection pools are alive.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.writer.PingContext(ctx); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if err := db.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("ping reader: %w", err)
	}
	return nil
}

// withTx runs fn inside a write transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.writer.BeginTx(ctx, nil)
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
}

// warnSlow logs operations that exceed threshold.
func warnSlow(ctx context.Context, operation string, start time.Time, threshold time.Duration, args ...any) {
	duration := time.Since(start)
	if duration <= threshold {
		return
	}
	attrs := append([]any{"operation", operation, "duration_ms", duration.Milliseconds()}, args...)
	slog.WarnContext(ctx, "slow database operation", attrs...)
}

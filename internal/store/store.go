package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/streamcore/internal/miniblock"
)

//go:embed schema.sql
var schemaSQL string

// migrations run in order on databases whose user_version is below their
// index plus one. Never edit an entry once released; append instead.
var migrations = []string{
	// v1: snapshot lookups for LatestSnapshot and Trim
	`CREATE INDEX IF NOT EXISTS idx_miniblocks_snapshot
	 ON miniblocks(stream_id, num) WHERE is_snapshot = 1`,
}

// pragmas are applied on every open. SQLite allows a single writer, so the
// pool is capped at one connection and WAL keeps readers unblocked.
var pragmas = []string{
	"journal_mode = WAL",
	"synchronous = NORMAL",
	"busy_timeout = 5000",
	"foreign_keys = ON",
}

// Store is a miniblock.Store persisted in a SQLite file.
type Store struct {
	db *sql.DB
}

var _ miniblock.Store = (*Store)(nil)

// Open opens or creates the database at path, then brings its schema up to
// date. Opening an existing database is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func setup(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec("PRAGMA " + p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	version, err := pragma(db, "user_version")
	if err != nil {
		return err
	}
	var from int
	if _, err := fmt.Sscan(version, &from); err != nil {
		return fmt.Errorf("parse user_version %q: %w", version, err)
	}
	for v := from; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func pragma(db *sql.DB, name string) (string, error) {
	var value string
	if err := db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) verifyPragma(name, expected string) error {
	value, err := pragma(s.db, name)
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("%s = %q, want %q", name, value, expected)
	}
	return nil
}

// withTx runs fn in a transaction and commits if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

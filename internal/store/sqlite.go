package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// schema creates the engine tables. Timestamps compared in queries (job due
// dates and lock expiry) are stored as unix milliseconds.
var schema = []struct {
	table string
	ddl   string
}{
	{"deployments", `
CREATE TABLE IF NOT EXISTS deployments (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    source      TEXT NOT NULL,
    deployed_at DATETIME NOT NULL
)`},
	{"resources", `
CREATE TABLE IF NOT EXISTS resources (
    id            TEXT PRIMARY KEY,
    deployment_id TEXT NOT NULL,
    name          TEXT NOT NULL,
    checksum      TEXT NOT NULL,
    content       BLOB NOT NULL,
    UNIQUE (deployment_id, name)
)`},
	{"process_definitions", `
CREATE TABLE IF NOT EXISTS process_definitions (
    id            TEXT PRIMARY KEY,
    key           TEXT NOT NULL,
    name          TEXT NOT NULL,
    version       INTEGER NOT NULL,
    deployment_id TEXT NOT NULL,
    resource_name TEXT NOT NULL,
    checksum      TEXT NOT NULL,
    created_at    DATETIME NOT NULL,
    UNIQUE (key, version)
)`},
	{"process_instances", `
CREATE TABLE IF NOT EXISTS process_instances (
    id             TEXT PRIMARY KEY,
    definition_id  TEXT NOT NULL,
    definition_key TEXT NOT NULL,
    business_key   TEXT NOT NULL,
    activity_id    TEXT NOT NULL,
    state          TEXT NOT NULL,
    started_at     DATETIME NOT NULL,
    ended_at       DATETIME
)`},
	{"variables", `
CREATE TABLE IF NOT EXISTS variables (
    instance_id TEXT NOT NULL,
    name        TEXT NOT NULL,
    type        TEXT NOT NULL,
    value       TEXT NOT NULL,
    PRIMARY KEY (instance_id, name)
)`},
	{"tasks", `
CREATE TABLE IF NOT EXISTS tasks (
    id               TEXT PRIMARY KEY,
    instance_id      TEXT NOT NULL,
    definition_id    TEXT NOT NULL,
    activity_id      TEXT NOT NULL,
    name             TEXT NOT NULL,
    assignee         TEXT NOT NULL,
    candidate_groups TEXT NOT NULL,
    created_at       DATETIME NOT NULL
)`},
	{"jobs", `
CREATE TABLE IF NOT EXISTS jobs (
    id              TEXT PRIMARY KEY,
    instance_id     TEXT NOT NULL,
    activity_id     TEXT NOT NULL,
    type            TEXT NOT NULL,
    retries         INTEGER NOT NULL,
    lock_owner      TEXT NOT NULL,
    lock_expires_at INTEGER,
    exception       TEXT NOT NULL,
    due_at          INTEGER NOT NULL,
    created_at      DATETIME NOT NULL
)`},
	{"activity_instances", `
CREATE TABLE IF NOT EXISTS activity_instances (
    id            TEXT PRIMARY KEY,
    instance_id   TEXT NOT NULL,
    activity_id   TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    started_at    DATETIME NOT NULL,
    ended_at      DATETIME
)`},
	{"users", `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    first_name    TEXT NOT NULL,
    last_name     TEXT NOT NULL,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL
)`},
}

// Compile-time interface satisfaction checks.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Tx    = (*sqlTx)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlTx implements Tx on top of a querier.
type sqlTx struct {
	q querier
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	*sqlTx
	db         *sql.DB
	dropOnExit bool
}

// NewSQLiteStore opens the SQLite database at dbPath, creating or updating the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return Open(dbPath, SchemaUpdateTrue)
}

// Open opens the SQLite database at dbPath and applies the schema update mode:
// "true" creates missing tables, "false" only verifies that they exist, and
// "create-drop" creates them and drops them again on Close.
func Open(dbPath, schemaUpdate string) (*SQLiteStore, error) {
	switch schemaUpdate {
	case SchemaUpdateTrue, SchemaUpdateFalse, SchemaUpdateCreateDrop:
	default:
		return nil, fmt.Errorf("unknown schema update mode %q", schemaUpdate)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases shared across all callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if schemaUpdate == SchemaUpdateFalse {
		if err := verifySchema(db); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		for _, s := range schema {
			if _, err := db.Exec(s.ddl); err != nil {
				db.Close()
				return nil, fmt.Errorf("create %s table: %w", s.table, err)
			}
		}
	}

	return &SQLiteStore{
		sqlTx:      &sqlTx{q: db},
		db:         db,
		dropOnExit: schemaUpdate == SchemaUpdateCreateDrop,
	}, nil
}

func verifySchema(db *sql.DB) error {
	for _, s := range schema {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", s.table,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: table %s", ErrSchemaMissing, s.table)
		}
		if err != nil {
			return fmt.Errorf("check %s table: %w", s.table, err)
		}
	}
	return nil
}

// Close closes the underlying database connection, dropping the schema first
// in create-drop mode.
func (s *SQLiteStore) Close() error {
	if s.dropOnExit {
		for i := len(schema) - 1; i >= 0; i-- {
			if _, err := s.db.Exec("DROP TABLE IF EXISTS " + schema[i].table); err != nil {
				s.db.Close()
				return fmt.Errorf("drop %s table: %w", schema[i].table, err)
			}
		}
	}
	return s.db.Close()
}

// InTx runs fn inside one transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&sqlTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// checkAffected maps an update or delete that touched no rows to ErrNotFound.
func checkAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// page appends LIMIT/OFFSET clauses when a limit is set.
func page(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	if offset < 0 {
		offset = 0
	}
	return query + " LIMIT ? OFFSET ?", append(args, limit, offset)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

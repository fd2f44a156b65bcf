package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pavelanni/kwizkit/internal/model"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db     *sql.DB
	writes atomic.Int64
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps transactions and
	// pragmas on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Writes returns the number of write statements executed inside transactions
// since the store was opened.
func (s *Store) Writes() int64 {
	return s.writes.Load()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS managers (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT REFERENCES managers(id) ON DELETE SET NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id TEXT NOT NULL,
		text TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'short_answer',
		choices TEXT NOT NULL DEFAULT '[]',
		answer TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'medium',
		topic TEXT NOT NULL DEFAULT '',
		max_points INTEGER NOT NULL DEFAULT 10,
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (test_id) REFERENCES tests(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS table_schemas (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		columns TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		test_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (test_id) REFERENCES tests(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS table_managers (
		table_id TEXT NOT NULL,
		manager_id TEXT NOT NULL,
		PRIMARY KEY (table_id, manager_id),
		FOREIGN KEY (table_id) REFERENCES table_schemas(id) ON DELETE CASCADE,
		FOREIGN KEY (manager_id) REFERENCES managers(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL COLLATE NOCASE UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS table_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		table_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		UNIQUE (table_id, student_id),
		FOREIGN KEY (table_id) REFERENCES table_schemas(id) ON DELETE CASCADE,
		FOREIGN KEY (student_id) REFERENCES students(id) ON DELETE RESTRICT
	);

	CREATE INDEX IF NOT EXISTS idx_table_rows_student ON table_rows(student_id);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn inside a single transaction. Any error returned by fn rolls
// the transaction back. fn must only use the Tx it is given.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.TransactionError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, s: s}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return &model.TransactionError{Op: "commit", Err: err}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		if code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE") {
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func now() time.Time {
	return time.Now().UTC()
}

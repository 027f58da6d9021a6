// ABOUTME: SQLite implementation of the Store interface using database/sql
// ABOUTME: Serializes writers behind one mutex and retries once on lock contention

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/2389/warden/internal/sqlscript"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// busyTimeoutMS is how long a connection waits on a locked database before SQLITE_BUSY.
const busyTimeoutMS = 5000

// busyRetryDelay is the pause before the single retry after lock contention.
const busyRetryDelay = 50 * time.Millisecond

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	ro     *sql.DB // read-only handle for QueryReadOnly; same as db for ":memory:"
	logger *slog.Logger

	// SQLite allows a single writer; serialize ours so they queue here
	// instead of bouncing off SQLITE_BUSY.
	writeMu sync.Mutex
}

// NewSQLiteStore opens the store at path with the default pure-Go driver.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(path, DriverModernc)
}

// Open opens (creating if needed) the store at path using the named driver.
// The baseline Alerts and Messages tables are created if they don't exist.
// Parent directories are created if needed.
func Open(path, driver string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	db, err := OpenDB(path, driver)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if path == ":memory:" {
		// A second handle would see a different, empty database.
		s.ro = db
	} else {
		ro, err := openReadOnly(path, driver)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.ro = ro
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// OpenDB opens a raw handle with WAL, foreign keys and a busy timeout
// applied to every pooled connection.
func OpenDB(path, driver string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverModernc
	}

	memory := path == ":memory:"
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn, err := buildDSN(path, driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}

// openReadOnly opens a second handle on path that SQLite itself refuses to write through.
func openReadOnly(path, driver string) (*sql.DB, error) {
	if driver == "" {
		driver = DriverModernc
	}

	var dsn string
	switch driver {
	case DriverModernc:
		dsn = fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(%d)&_pragma=query_only(1)", path, busyTimeoutMS)
	case DriverCGO:
		dsn = fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d&_query_only=true", path, busyTimeoutMS)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening read-only database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to read-only database: %w", err)
	}
	return db, nil
}

// buildDSN encodes connection pragmas in the form each driver understands.
func buildDSN(path, driver string) (string, error) {
	switch driver {
	case DriverModernc:
		return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
			path, busyTimeoutMS), nil
	case DriverCGO:
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL",
			path, busyTimeoutMS), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// createSchema creates the baseline tables if they don't exist.
// Later schema changes go through the migrate package.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS Alerts (
			Phrase TEXT PRIMARY KEY,
			Emoji  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS Messages (
			MsgId   TEXT PRIMARY KEY,
			MsgText TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	var roErr error
	if s.ro != nil && s.ro != s.db {
		roErr = s.ro.Close()
	}
	return errors.Join(s.db.Close(), roErr)
}

// write runs fn inside a short transaction while holding the writer lock.
// A transaction that fails on lock contention is retried once.
func (s *SQLiteStore) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryBusy(ctx, func() error {
		return s.writeOnce(ctx, fn)
	})
}

func (s *SQLiteStore) writeOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// retryBusy calls fn and, if it failed on lock contention, calls it exactly once more.
func (s *SQLiteStore) retryBusy(ctx context.Context, fn func() error) error {
	err := fn()
	if !isBusy(err) {
		return err
	}

	s.logger.Warn("database busy, retrying once", "error", err)

	select {
	case <-time.After(busyRetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn()
}

// isBusy checks if the error is SQLite lock contention
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database table is locked")
}

// Exec runs a write statement against a plugin-owned table in its own transaction.
func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		return nil
	})
	return affected, err
}

// Query runs a read statement and materializes every row.
func (s *SQLiteStore) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	var out *Rows
	err := s.retryBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying: %w", err)
		}
		out, err = materialize(rows)
		return err
	})
	return out, err
}

// QueryReadOnly runs a single statement on the read-only handle, inside a
// transaction that is always rolled back.
func (s *SQLiteStore) QueryReadOnly(ctx context.Context, query string, args ...any) (*Rows, error) {
	stmts := sqlscript.Split(query)
	if len(stmts) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNotSingleStatement, len(stmts))
	}
	if sqlscript.IsTransactionControl(stmts[0]) {
		return nil, ErrTransactionStatement
	}

	var out *Rows
	err := s.retryBusy(ctx, func() error {
		tx, err := s.ro.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, stmts[0], args...)
		if err != nil {
			return fmt.Errorf("querying: %w", err)
		}
		out, err = materialize(rows)
		return err
	})
	return out, err
}

// materialize drains rows into memory and closes them.
func materialize(rows *sql.Rows) (*Rows, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	out := &Rows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, Row(values))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// notFound maps sql.ErrNoRows to ErrNotFound
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

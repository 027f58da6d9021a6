// ABOUTME: Ordered, transactional schema migrations for the warden database
// ABOUTME: Tracks the applied version in a single-row marker table

package migrate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/warden/internal/sqlscript"
)

// markerSchema holds exactly one row recording the highest applied version.
const markerSchema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		version    INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	)
`

// ErrOrdering is returned when a script set's versions are not strictly increasing.
var ErrOrdering = errors.New("migration versions must be strictly increasing")

// ErrTransactionControl rejects BEGIN, COMMIT, ROLLBACK and friends inside a
// migration. Each migration already runs in exactly one transaction.
var ErrTransactionControl = errors.New("transaction control statements are not allowed in migrations")

// ErrForeignKey is returned when a migration leaves foreign key violations behind.
var ErrForeignKey = errors.New("foreign key check failed")

// Step is one unit of work inside a migration.
type Step interface {
	// Statements expands the step into the SQL it executes, in order.
	Statements() []string
}

// SQL is a literal statement step.
type SQL string

// Statements implements Step.
func (s SQL) Statements() []string {
	return []string{string(s)}
}

// Migration is a named, versioned group of steps applied atomically.
// Version 0 marks an unversioned script that runs on every apply and never
// moves the marker; such scripts must be idempotent.
type Migration struct {
	Version int
	Name    string
	Steps   []Step
}

// Error describes a failed migration. The migration's transaction has
// already been rolled back when it is returned.
type Error struct {
	Version   int
	Name      string
	Statement string
	Err       error
}

func (e *Error) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("migration %d (%s): %v", e.Version, e.Name, e.Err)
	}
	return fmt.Sprintf("migration %d (%s) failed at %q: %v", e.Version, e.Name, e.Statement, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Engine applies migrations to a database handle.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine. A nil logger uses slog.Default().
func New(db *sql.DB, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:     db,
		logger: logger.With("component", "migrate"),
		now:    time.Now,
	}
}

// Version returns the highest applied version, or 0 for a fresh database.
func (e *Engine) Version(ctx context.Context) (int, error) {
	if _, err := e.db.ExecContext(ctx, markerSchema); err != nil {
		return 0, fmt.Errorf("creating version marker: %w", err)
	}
	return currentVersion(ctx, e.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryRower) (int, error) {
	var v int
	err := q.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version marker: %w", err)
	}
	return v, nil
}

// Validate checks that versioned migrations are strictly increasing.
// Unversioned (version 0) entries may appear anywhere.
func Validate(migrations []Migration) error {
	last := 0
	for _, m := range migrations {
		if m.Version < 0 {
			return fmt.Errorf("%w: negative version %d (%s)", ErrOrdering, m.Version, m.Name)
		}
		if m.Version == 0 {
			continue
		}
		if m.Version <= last {
			return fmt.Errorf("%w: %d (%s) follows %d", ErrOrdering, m.Version, m.Name, last)
		}
		last = m.Version
	}
	return nil
}

// checkStatements rejects transaction control anywhere in the set, so a
// script can never commit half of itself.
func checkStatements(migrations []Migration) error {
	for _, m := range migrations {
		for _, step := range m.Steps {
			for _, stmt := range step.Statements() {
				if sqlscript.IsTransactionControl(stmt) {
					return &Error{Version: m.Version, Name: m.Name, Statement: stmt, Err: ErrTransactionControl}
				}
			}
		}
	}
	return nil
}

// ApplyAll applies every migration newer than the current marker, in order,
// and returns how many ran. Each migration commits together with its marker
// update. The first failure stops the run and returns an *Error; migrations
// committed before it stay applied. Nothing runs if any statement in the
// set is transaction control.
func (e *Engine) ApplyAll(ctx context.Context, migrations []Migration) (int, error) {
	if err := Validate(migrations); err != nil {
		return 0, err
	}
	if err := checkStatements(migrations); err != nil {
		return 0, err
	}

	current, err := e.Version(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("applying migrations", "current_version", current, "available", len(migrations))

	applied := 0
	for _, m := range migrations {
		if m.Version != 0 && m.Version <= current {
			e.logger.Debug("skipping applied migration", "version", m.Version, "name", m.Name)
			continue
		}

		if err := e.apply(ctx, m); err != nil {
			e.logger.Error("migration failed", "version", m.Version, "name", m.Name, "error", err)
			return applied, err
		}
		applied++
		e.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}

	return applied, nil
}

// apply runs one migration inside a single transaction on a pinned
// connection. Foreign key enforcement is switched off for the duration so
// dropping a rebuilt table does not cascade into its children, and
// PRAGMA foreign_key_check runs before commit instead.
func (e *Engine) apply(ctx context.Context, m Migration) error {
	fail := func(stmt string, err error) error {
		return &Error{Version: m.Version, Name: m.Name, Statement: stmt, Err: err}
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fail("", fmt.Errorf("acquiring connection: %w", err))
	}
	defer conn.Close()

	var fkEnabled bool
	if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fkEnabled); err != nil {
		return fail("", fmt.Errorf("reading foreign_keys: %w", err))
	}
	if fkEnabled {
		if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
			return fail("", fmt.Errorf("disabling foreign keys: %w", err))
		}
		defer func() {
			if _, err := conn.ExecContext(context.WithoutCancel(ctx), `PRAGMA foreign_keys = ON`); err != nil {
				e.logger.Error("failed to restore foreign keys", "error", err)
				// A pooled connection must not go back without enforcement.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fail("", fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for _, step := range m.Steps {
		for _, stmt := range step.Statements() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fail(stmt, err)
			}
		}
	}

	if fkEnabled {
		if err := foreignKeyCheck(ctx, tx); err != nil {
			return fail("PRAGMA foreign_key_check", err)
		}
	}

	if m.Version != 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schema_version (id, version, applied_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET version = excluded.version, applied_at = excluded.applied_at
		`, m.Version, e.now().UTC().Format(time.RFC3339))
		if err != nil {
			return fail("", fmt.Errorf("updating version marker: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail("", fmt.Errorf("committing: %w", err))
	}
	return nil
}

// foreignKeyCheck reports the first violation PRAGMA foreign_key_check finds.
func foreignKeyCheck(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("checking foreign keys: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("reading foreign key violation: %w", err)
		}
		return fmt.Errorf("%w: row %d of %s references missing %s", ErrForeignKey, rowid.Int64, table, parent)
	}
	return rows.Err()
}

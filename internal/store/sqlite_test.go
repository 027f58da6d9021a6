// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers schema creation, persistence, the SQL escape hatch and busy retries

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// newTestStore creates a SQLite store backed by a temp file.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), "postgres")
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.UpsertAlert(ctx, "broken", "🔧"); err != nil {
		t.Fatalf("UpsertAlert failed: %v", err)
	}
	store.Close()

	store, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	alert, err := store.GetAlert(ctx, "broken")
	if err != nil {
		t.Fatalf("GetAlert after reopen failed: %v", err)
	}
	if alert.Emoji != "🔧" {
		t.Errorf("expected 🔧, got %q", alert.Emoji)
	}
}

func TestUpsertAlert_OverwritesAndLowercases(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertAlert(ctx, "Deploy Failed", "🚨"); err != nil {
		t.Fatalf("UpsertAlert failed: %v", err)
	}
	if err := store.UpsertAlert(ctx, "deploy failed", "🔥"); err != nil {
		t.Fatalf("second UpsertAlert failed: %v", err)
	}

	alerts, err := store.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Phrase != "deploy failed" {
		t.Errorf("expected lower-case phrase, got %q", alerts[0].Phrase)
	}
	if alerts[0].Emoji != "🔥" {
		t.Errorf("expected overwritten emoji 🔥, got %q", alerts[0].Emoji)
	}

	got, err := store.GetAlert(ctx, "DEPLOY FAILED")
	if err != nil {
		t.Fatalf("case-insensitive GetAlert failed: %v", err)
	}
	if got.Emoji != "🔥" {
		t.Errorf("expected 🔥, got %q", got.Emoji)
	}
}

func TestUpsertAlert_RejectsEmpty(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertAlert(ctx, "  ", "🔧"); err == nil {
		t.Error("expected error for empty phrase")
	}
	if err := store.UpsertAlert(ctx, "broken", ""); err == nil {
		t.Error("expected error for empty emoji")
	}
}

func TestDeleteAlert(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertAlert(ctx, "broken", "🔧"); err != nil {
		t.Fatalf("UpsertAlert failed: %v", err)
	}
	if err := store.DeleteAlert(ctx, "BROKEN"); err != nil {
		t.Fatalf("DeleteAlert failed: %v", err)
	}
	if _, err := store.GetAlert(ctx, "broken"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteAlert(ctx, "broken"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting missing alert, got %v", err)
	}
}

func TestCachedMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.GetCachedMessage(ctx, "rules"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.PutCachedMessage(ctx, &CachedMessage{ID: "rules", Text: "be nice"}); err != nil {
		t.Fatalf("PutCachedMessage failed: %v", err)
	}
	if err := store.PutCachedMessage(ctx, &CachedMessage{ID: "rules", Text: "be **very** nice"}); err != nil {
		t.Fatalf("replacing PutCachedMessage failed: %v", err)
	}
	if err := store.PutCachedMessage(ctx, &CachedMessage{ID: "faq", Text: "read the docs"}); err != nil {
		t.Fatalf("PutCachedMessage failed: %v", err)
	}

	msg, err := store.GetCachedMessage(ctx, "rules")
	if err != nil {
		t.Fatalf("GetCachedMessage failed: %v", err)
	}
	if msg.Text != "be **very** nice" {
		t.Errorf("expected replaced body, got %q", msg.Text)
	}

	msgs, err := store.ListCachedMessages(ctx)
	if err != nil {
		t.Fatalf("ListCachedMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "faq" || msgs[1].ID != "rules" {
		t.Errorf("unexpected listing: %+v", msgs)
	}

	if err := store.DeleteCachedMessage(ctx, "faq"); err != nil {
		t.Fatalf("DeleteCachedMessage failed: %v", err)
	}
	if err := store.DeleteCachedMessage(ctx, "faq"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEscapeHatch(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Exec(ctx, `CREATE TABLE Karma (Name TEXT PRIMARY KEY, Points INTEGER NOT NULL)`); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	n, err := store.Exec(ctx, `INSERT INTO Karma (Name, Points) VALUES (?, ?), (?, ?)`, "alice", 3, "bob", 5)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows affected, got %d", n)
	}

	rows, err := store.Query(ctx, `SELECT Name, Points FROM Karma ORDER BY Name`)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows.Columns) != 2 || rows.Columns[0] != "Name" {
		t.Errorf("unexpected columns: %v", rows.Columns)
	}
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	if fmt.Sprint(rows.Rows[1][0]) != "bob" || fmt.Sprint(rows.Rows[1][1]) != "5" {
		t.Errorf("unexpected row: %v", rows.Rows[1])
	}
}

func TestQueryReadOnly_RejectsWrites(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertAlert(ctx, "broken", "🔧"); err != nil {
		t.Fatalf("UpsertAlert failed: %v", err)
	}

	if _, err := store.QueryReadOnly(ctx, `DELETE FROM Alerts RETURNING Phrase`); err == nil {
		t.Error("expected a write to fail on the read-only handle")
	}

	if _, err := store.GetAlert(ctx, "broken"); err != nil {
		t.Errorf("alert should survive a read-only delete, got %v", err)
	}
}

func TestQueryReadOnly_RejectsStackedStatements(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertAlert(ctx, "broken", "🔧"); err != nil {
		t.Fatalf("UpsertAlert failed: %v", err)
	}

	tests := []struct {
		query string
		want  error
	}{
		{`SELECT 1; COMMIT; DELETE FROM Alerts; SELECT 2`, ErrNotSingleStatement},
		{`SELECT 1; DELETE FROM Alerts`, ErrNotSingleStatement},
		{`COMMIT`, ErrTransactionStatement},
		{`  `, ErrNotSingleStatement},
	}
	for _, tt := range tests {
		_, err := store.QueryReadOnly(ctx, tt.query)
		if !errors.Is(err, tt.want) {
			t.Errorf("QueryReadOnly(%q) error = %v, want %v", tt.query, err, tt.want)
		}
	}

	if _, err := store.GetAlert(ctx, "broken"); err != nil {
		t.Errorf("alert should survive, got %v", err)
	}

	// A lone trailing semicolon is still one statement.
	rows, err := store.QueryReadOnly(ctx, `SELECT Phrase FROM Alerts;`)
	if err != nil {
		t.Fatalf("QueryReadOnly failed: %v", err)
	}
	if len(rows.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows.Rows))
	}
}

func TestQueryReadOnly_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertAlert(ctx, "broken", "🔧"); err != nil {
		t.Fatalf("UpsertAlert failed: %v", err)
	}
	rows, err := store.QueryReadOnly(ctx, `SELECT Emoji FROM Alerts`)
	if err != nil {
		t.Fatalf("QueryReadOnly failed: %v", err)
	}
	if len(rows.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows.Rows))
	}
}

func TestConcurrentWrites(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- store.UpsertAlert(ctx, fmt.Sprintf("phrase-%d", i), "✅")
		}()
		go func() {
			defer wg.Done()
			errs <- store.PutCachedMessage(ctx, &CachedMessage{ID: fmt.Sprintf("msg-%d", i), Text: "x"})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write failed: %v", err)
		}
	}

	alerts, err := store.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 20 {
		t.Errorf("expected 20 alerts, got %d", len(alerts))
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{fmt.Errorf("exec: %w", errors.New("SQLITE_BUSY")), true},
		{errors.New("no such table: Foo"), false},
	}
	for _, tt := range tests {
		if got := isBusy(tt.err); got != tt.want {
			t.Errorf("isBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryBusy_RetriesOnce(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	calls := 0
	err := store.retryBusy(ctx, func() error {
		calls++
		if calls == 1 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}

	calls = 0
	err = store.retryBusy(ctx, func() error {
		calls++
		return errors.New("database is locked")
	})
	if !isBusy(err) {
		t.Errorf("expected busy error after second failure, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 calls, got %d", calls)
	}

	calls = 0
	err = store.retryBusy(ctx, func() error {
		calls++
		return errors.New("no such table: Foo")
	})
	if err == nil || calls != 1 {
		t.Errorf("non-busy error should not retry: err=%v calls=%d", err, calls)
	}
}

func TestReads_SucceedWhileWriterHoldsLock(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.UpsertAlert(ctx, "broken", "🔧"); err != nil {
		t.Fatalf("UpsertAlert failed: %v", err)
	}
	if err := store.PutCachedMessage(ctx, &CachedMessage{ID: "m1", Text: "hi"}); err != nil {
		t.Fatalf("PutCachedMessage failed: %v", err)
	}

	// An open write transaction holds the WAL write lock; readers must not block or fail.
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO Alerts (Phrase, Emoji) VALUES ('pending', 'x')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if _, err := store.GetAlert(ctx, "broken"); err != nil {
		t.Errorf("GetAlert failed: %v", err)
	}
	if _, err := store.GetCachedMessage(ctx, "m1"); err != nil {
		t.Errorf("GetCachedMessage failed: %v", err)
	}
	if msgs, err := store.ListCachedMessages(ctx); err != nil || len(msgs) != 1 {
		t.Errorf("ListCachedMessages = %d, %v", len(msgs), err)
	}
	if _, err := store.QueryReadOnly(ctx, `SELECT COUNT(*) FROM Alerts`); err != nil {
		t.Errorf("QueryReadOnly failed: %v", err)
	}
}

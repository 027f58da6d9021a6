// ABOUTME: Tests for the migration engine
// ABOUTME: Covers idempotence, shadow rewrites, rollback, ordering and transaction safety

package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "test.db"), store.DriverModernc)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func baseline() []Migration {
	return []Migration{
		{Version: 1, Name: "karma", Steps: []Step{
			SQL(`CREATE TABLE Karma (Name TEXT PRIMARY KEY, Points INTEGER NOT NULL)`),
		}},
		{Version: 2, Name: "seed", Steps: []Step{
			SQL(`INSERT INTO Karma (Name, Points) VALUES ('alice', 1), ('bob', 2), ('carol', 3)`),
		}},
	}
}

func TestApplyAll_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)

	n, err := engine.ApplyAll(ctx, baseline())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := engine.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	n, err = engine.ApplyAll(ctx, baseline())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run should apply nothing")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM Karma`).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestApplyAll_ShadowRewrite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)

	_, err := engine.ApplyAll(ctx, baseline())
	require.NoError(t, err)

	migrations := append(baseline(), Migration{
		Version: 3,
		Name:    "rename karma",
		Steps: []Step{Rewrite{
			Table:    "Karma",
			NewTable: "UserKarma",
			Schema:   "UserName TEXT PRIMARY KEY, Points INTEGER NOT NULL DEFAULT 0, Note TEXT",
			Columns:  []string{"UserName", "Points"},
			Select:   "SELECT Name, Points FROM Karma",
			Indexes:  []string{"CREATE INDEX idx_userkarma_points ON UserKarma (Points)"},
		}},
	})

	n, err := engine.ApplyAll(ctx, migrations)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, tableExists(t, db, "Karma"), "old table should be gone")
	assert.False(t, tableExists(t, db, "UserKarma__shadow"), "shadow table should be renamed")
	assert.True(t, tableExists(t, db, "UserKarma"))

	var count, total int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), SUM(Points) FROM UserKarma`).Scan(&count, &total))
	assert.Equal(t, 3, count)
	assert.Equal(t, 6, total)

	var idx int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_userkarma_points'`).Scan(&idx))
	assert.Equal(t, 1, idx)
}

func TestApplyAll_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)

	_, err := engine.ApplyAll(ctx, baseline())
	require.NoError(t, err)

	bad := `INSERT INTO Missing (x) VALUES (1)`
	migrations := append(baseline(), Migration{
		Version: 3,
		Name:    "broken",
		Steps: []Step{
			SQL(`CREATE TABLE Partial (id INTEGER)`),
			SQL(bad),
		},
	})

	n, err := engine.ApplyAll(ctx, migrations)
	require.Error(t, err)
	assert.Equal(t, 0, n)

	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, 3, merr.Version)
	assert.Equal(t, "broken", merr.Name)
	assert.Equal(t, bad, merr.Statement)

	assert.False(t, tableExists(t, db, "Partial"), "partial work must be rolled back")

	v, err := engine.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "marker must not move on failure")
}

func TestApplyAll_RejectsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)

	migrations := []Migration{
		{Version: 2, Name: "two", Steps: []Step{SQL(`CREATE TABLE Two (id INTEGER)`)}},
		{Version: 1, Name: "one", Steps: []Step{SQL(`CREATE TABLE One (id INTEGER)`)}},
	}

	_, err := engine.ApplyAll(ctx, migrations)
	require.ErrorIs(t, err, ErrOrdering)
	assert.False(t, tableExists(t, db, "Two"), "nothing may run when ordering is invalid")
}

func TestApplyAll_UnversionedRunsEveryTime(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)

	migrations := append(baseline(), Migration{
		Name:  "bump",
		Steps: []Step{SQL(`UPDATE Karma SET Points = Points + 1 WHERE Name = 'alice'`)},
	})

	_, err := engine.ApplyAll(ctx, migrations)
	require.NoError(t, err)
	n, err := engine.ApplyAll(ctx, migrations)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var points int
	require.NoError(t, db.QueryRow(`SELECT Points FROM Karma WHERE Name = 'alice'`).Scan(&points))
	assert.Equal(t, 3, points)

	v, err := engine.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "unversioned scripts never move the marker")
}

func TestRewrite_Statements(t *testing.T) {
	stmts := Rewrite{Table: "Alerts", Schema: "Phrase TEXT PRIMARY KEY, Emoji TEXT NOT NULL"}.Statements()
	assert.Equal(t, []string{
		`DROP TABLE IF EXISTS "Alerts__shadow"`,
		`CREATE TABLE "Alerts__shadow" (Phrase TEXT PRIMARY KEY, Emoji TEXT NOT NULL)`,
		`INSERT INTO "Alerts__shadow" SELECT * FROM "Alerts"`,
		`DROP TABLE "Alerts"`,
		`ALTER TABLE "Alerts__shadow" RENAME TO "Alerts"`,
	}, stmts)
}

func TestApplyAll_RejectsEmbeddedCommit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)

	path := filepath.Join(t.TempDir(), "0001_fix.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE half (x); COMMIT; CREATE TABLE bogus ("), 0644))
	set, err := Load(path)
	require.NoError(t, err)

	n, err := engine.ApplyAll(ctx, set)
	require.ErrorIs(t, err, ErrTransactionControl)
	assert.Equal(t, 0, n)

	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "COMMIT", merr.Statement)
	assert.False(t, tableExists(t, db, "half"), "nothing may run when a script controls its own transaction")
}

func TestApplyAll_SelfWrappedScript(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)

	path := filepath.Join(t.TempDir(), "0001_ok.sql")
	require.NoError(t, os.WriteFile(path, []byte("BEGIN TRANSACTION;\nCREATE TABLE ok (x);\nCOMMIT;\n"), 0644))
	set, err := Load(path)
	require.NoError(t, err)

	n, err := engine.ApplyAll(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, tableExists(t, db, "ok"))
}

func parentChild(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`
		CREATE TABLE parent (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE child (
			id        INTEGER PRIMARY KEY,
			parent_id INTEGER NOT NULL REFERENCES parent(id) ON DELETE CASCADE
		);
		INSERT INTO parent (id, name) VALUES (1, 'a'), (2, 'b'), (3, 'c');
		INSERT INTO child (id, parent_id) VALUES (10, 1), (20, 2), (30, 3);
	`)
	require.NoError(t, err)
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestApplyAll_RewriteKeepsChildRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)
	parentChild(t, db)

	n, err := engine.ApplyAll(ctx, []Migration{{
		Version: 1,
		Name:    "parent not null",
		Steps: []Step{Rewrite{
			Table:  "parent",
			Schema: "id INTEGER PRIMARY KEY, name TEXT NOT NULL DEFAULT ''",
		}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 3, countRows(t, db, "parent"))
	assert.Equal(t, 3, countRows(t, db, "child"), "dropping the old parent must not cascade")

	// Enforcement is back on for pooled connections.
	_, err = db.Exec(`INSERT INTO child (id, parent_id) VALUES (40, 99)`)
	assert.Error(t, err)
	_, err = db.Exec(`DELETE FROM parent WHERE id = 1`)
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, db, "child"))
}

func TestApplyAll_RewriteOrphaningChildrenFails(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	engine := New(db, nil)
	parentChild(t, db)

	_, err := engine.ApplyAll(ctx, []Migration{{
		Version: 1,
		Name:    "drop a parent",
		Steps: []Step{Rewrite{
			Table:  "parent",
			Schema: "id INTEGER PRIMARY KEY, name TEXT",
			Select: "SELECT id, name FROM parent WHERE id <> 2",
		}},
	}})
	require.ErrorIs(t, err, ErrForeignKey)

	assert.Equal(t, 3, countRows(t, db, "parent"), "rewrite must roll back")
	assert.Equal(t, 3, countRows(t, db, "child"))
	assert.False(t, tableExists(t, db, "parent__shadow"))
}

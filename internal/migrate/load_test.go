// ABOUTME: Tests for script-set loading
// ABOUTME: Covers TOML sets, SQL directories, single files and self-wrapped scripts

package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.toml")
	writeFile(t, path, `
[[migration]]
version = 1
name = "karma"

  [[migration.step]]
  sql = """
  CREATE TABLE Karma (Name TEXT PRIMARY KEY, Points INTEGER);
  CREATE INDEX idx_karma_points ON Karma (Points);
  """

[[migration]]
version = 2
name = "rename"

  [[migration.step]]
  [migration.step.rewrite]
  table = "Karma"
  new_table = "UserKarma"
  schema = "UserName TEXT PRIMARY KEY, Points INTEGER"
  columns = ["UserName", "Points"]
  select = "SELECT Name, Points FROM Karma"
`)

	migrations, err := Load(path)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Len(t, migrations[0].Steps, 2)

	rw, ok := migrations[1].Steps[0].(Rewrite)
	require.True(t, ok)
	assert.Equal(t, "UserKarma", rw.NewTable)
	assert.Equal(t, []string{"UserName", "Points"}, rw.Columns)
}

func TestLoad_TOMLRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.toml")
	writeFile(t, path, `
[[migration]]
version = 1
nmae = "typo"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "0002_seed.sql"), "INSERT INTO Karma VALUES ('a', 1);")
	writeFile(t, filepath.Join(dir, "0001_karma.sql"), "CREATE TABLE Karma (Name TEXT, Points INTEGER);")
	writeFile(t, filepath.Join(dir, "cleanup.sql"), "DELETE FROM Karma WHERE Points < 0;")
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")

	migrations, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "karma", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 0, migrations[2].Version)
	assert.Equal(t, "cleanup", migrations[2].Name)
}

func TestLoad_SingleUnversionedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixup.sql")
	writeFile(t, path, "UPDATE Alerts SET Emoji = '🔧' WHERE Phrase = 'broken';")

	migrations, err := Load(path)
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, 0, migrations[0].Version)
}

func TestLoad_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.json")
	writeFile(t, path, "{}")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_StripsScriptTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0001_wrapped.sql")
	writeFile(t, path, "BEGIN TRANSACTION;\nCREATE TABLE ok (x);\nCOMMIT;\n")

	set, err := Load(path)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, []Step{SQL("CREATE TABLE ok (x)")}, set[0].Steps)
}

func TestLoad_KeepsEmbeddedCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0001_fix.sql")
	writeFile(t, path, "CREATE TABLE half (x); COMMIT; CREATE TABLE other (x);")

	set, err := Load(path)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Len(t, set[0].Steps, 3, "only a wrapping BEGIN/COMMIT pair is removed")
}

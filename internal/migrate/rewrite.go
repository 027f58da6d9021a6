// ABOUTME: Shadow-table rewrite step for schema changes SQLite cannot ALTER in place
// ABOUTME: Builds a shadow table, copies rows, drops the original and renames the shadow

package migrate

import (
	"fmt"
	"strings"
)

// Rewrite rebuilds Table with a new definition.
//
// Schema is the column list of the new table (the part between the
// parentheses of CREATE TABLE). Rows are copied with Select when set,
// otherwise with the listed Columns, otherwise with every column of the
// old table. NewTable renames the result; empty keeps Table's name.
// Indexes are full CREATE INDEX statements run after the rename.
type Rewrite struct {
	Table    string
	NewTable string
	Schema   string
	Columns  []string
	Select   string
	Indexes  []string
}

func (r Rewrite) target() string {
	if r.NewTable != "" {
		return r.NewTable
	}
	return r.Table
}

func (r Rewrite) shadow() string {
	return r.target() + "__shadow"
}

// Statements implements Step.
func (r Rewrite) Statements() []string {
	target := r.target()
	shadow := r.shadow()

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(shadow)),
		fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(shadow), strings.TrimSpace(r.Schema)),
		r.copyStatement(shadow),
		fmt.Sprintf("DROP TABLE %s", quoteIdent(r.Table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(shadow), quoteIdent(target)),
	}
	stmts = append(stmts, r.Indexes...)
	return stmts
}

func (r Rewrite) copyStatement(shadow string) string {
	if r.Select != "" {
		if len(r.Columns) > 0 {
			return fmt.Sprintf("INSERT INTO %s (%s) %s", quoteIdent(shadow), quoteList(r.Columns), r.Select)
		}
		return fmt.Sprintf("INSERT INTO %s %s", quoteIdent(shadow), r.Select)
	}
	if len(r.Columns) > 0 {
		cols := quoteList(r.Columns)
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quoteIdent(shadow), cols, cols, quoteIdent(r.Table))
	}
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", quoteIdent(shadow), quoteIdent(r.Table))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// ABOUTME: sql plugin running read-only queries against the bot database
// ABOUTME: Statements run in a transaction that is always rolled back

package builtins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/store"
)

// maxSQLRows caps how many rows are echoed into the chat.
const maxSQLRows = 50

// SQL exposes the escape hatch to administrators.
type SQL struct {
	store store.SQLStore
}

// NewSQL creates the sql plugin.
func NewSQL(s store.SQLStore) *SQL {
	return &SQL{store: s}
}

// Descriptor implements plugins.Plugin.
func (q *SQL) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:        "sql",
		Syntax:      "sql <sql_script>",
		Description: "Access the internal database of the bot read-only.",
		Privilege:   plugins.PrivilegeAdmin,
	}
}

// Execute implements plugins.Plugin.
func (q *SQL) Execute(ctx context.Context, inv *plugins.Invocation) (plugins.Result, error) {
	if q.store == nil {
		return plugins.Result{}, errors.New("sql: no store configured")
	}
	if inv.ArgText == "" {
		return usage(q.Descriptor()), nil
	}

	rows, err := q.store.QueryReadOnly(ctx, inv.ArgText)
	if err != nil {
		return plugins.Failure(err.Error(), err), nil
	}
	return plugins.Reply(formatRows(rows)), nil
}

func formatRows(rows *store.Rows) string {
	var b strings.Builder
	b.WriteString("```text\n")
	b.WriteString(strings.Join(rows.Columns, " | "))
	for i, row := range rows.Rows {
		if i == maxSQLRows {
			fmt.Fprintf(&b, "\n... %d more rows", len(rows.Rows)-maxSQLRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				cells[j] = "NULL"
			} else {
				cells[j] = fmt.Sprint(v)
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, " | "))
	}
	b.WriteString("\n```")
	return b.String()
}

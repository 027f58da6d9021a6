// ABOUTME: Splits SQLite script text into statements and classifies them
// ABOUTME: Shared by the migration loader and the store's read-only query path

package sqlscript

import (
	"strings"
)

// Split splits SQL text on top-level semicolons. Quoted strings,
// identifiers and comments are respected, and CREATE TRIGGER bodies stay
// whole until the END that closes their BEGIN. Empty statements are dropped.
func Split(text string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				i = len(text)
			} else {
				i += end
				cur.WriteByte('\n')
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += end + 3
			}
			cur.WriteByte(' ')
		case c == '\'' || c == '"' || c == '`' || c == '[':
			end := closingQuote(text, i)
			cur.WriteString(text[i:end])
			i = end - 1
		case c == ';':
			if openTrigger(cur.String()) {
				cur.WriteByte(c)
				continue
			}
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// closingQuote returns the index just past the quoted run starting at start.
// Doubled quote characters are escapes; [ident] closes on ].
func closingQuote(text string, start int) int {
	q := text[start]
	if q == '[' {
		if end := strings.IndexByte(text[start:], ']'); end >= 0 {
			return start + end + 1
		}
		return len(text)
	}
	for i := start + 1; i < len(text); i++ {
		if text[i] != q {
			continue
		}
		if i+1 < len(text) && text[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(text)
}

// Keywords returns the upper-cased bare words of stmt, skipping quoted
// strings and identifiers.
func Keywords(stmt string) []string {
	var (
		words []string
		word  strings.Builder
	)
	emit := func() {
		if word.Len() > 0 {
			words = append(words, strings.ToUpper(word.String()))
			word.Reset()
		}
	}

	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			emit()
			i = closingQuote(stmt, i) - 1
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9':
			word.WriteByte(c)
		default:
			emit()
		}
	}
	emit()
	return words
}

// openTrigger reports whether stmt is a CREATE TRIGGER whose BEGIN has not
// yet been balanced by END. CASE ... END pairs inside the body are counted.
func openTrigger(stmt string) bool {
	words := Keywords(stmt)
	if !isCreateTrigger(words) {
		return false
	}

	depth, begun := 0, false
	for _, w := range words {
		switch w {
		case "BEGIN":
			depth++
			begun = true
		case "CASE":
			if begun {
				depth++
			}
		case "END":
			if begun {
				depth--
			}
		}
	}
	return !begun || depth > 0
}

func isCreateTrigger(words []string) bool {
	if len(words) < 2 || words[0] != "CREATE" {
		return false
	}
	if words[1] == "TEMP" || words[1] == "TEMPORARY" {
		return len(words) > 2 && words[2] == "TRIGGER"
	}
	return words[1] == "TRIGGER"
}

// IsTransactionControl reports whether stmt begins, ends or nests a
// transaction (BEGIN, COMMIT, END, ROLLBACK, SAVEPOINT, RELEASE).
func IsTransactionControl(stmt string) bool {
	words := Keywords(stmt)
	if len(words) == 0 {
		return false
	}
	switch words[0] {
	case "BEGIN", "COMMIT", "END", "ROLLBACK", "SAVEPOINT", "RELEASE":
		return true
	}
	return false
}

// StripTransaction drops a leading BEGIN and a trailing COMMIT or END from
// a script written to run as one transaction on its own. Other statements
// are returned unchanged, including any transaction control in between.
func StripTransaction(stmts []string) []string {
	if len(stmts) > 0 && isBegin(stmts[0]) {
		stmts = stmts[1:]
	}
	if n := len(stmts); n > 0 && isCommit(stmts[n-1]) {
		stmts = stmts[:n-1]
	}
	return stmts
}

func isBegin(stmt string) bool {
	words := Keywords(stmt)
	if len(words) == 0 || words[0] != "BEGIN" {
		return false
	}
	for _, w := range words[1:] {
		switch w {
		case "DEFERRED", "IMMEDIATE", "EXCLUSIVE", "TRANSACTION":
		default:
			return false
		}
	}
	return true
}

func isCommit(stmt string) bool {
	words := Keywords(stmt)
	if len(words) == 0 || (words[0] != "COMMIT" && words[0] != "END") {
		return false
	}
	return len(words) == 1 || (len(words) == 2 && words[1] == "TRANSACTION")
}

// Package filter compiles a structured filter list (value.Filter) plus a
// schema and dialect into a WHERE fragment, built in the same
// SQL-string-building style used for query construction elsewhere in the
// module: an explicit per-operator switch feeding a short-lived
// strarena.Builder rather than accumulating a []string just to join it once.
package filter

import (
	"fmt"
	"strings"

	"github.com/lace-db/lace/escaper"
	"github.com/lace-db/lace/strarena"
	"github.com/lace-db/lace/value"
)

// Compile turns filters into a WHERE fragment (without the leading "WHERE "
// keyword) against schema under dialect. Returns ("", false) when every
// filter was skipped.
func Compile(filters []value.Filter, schema value.TableSchema, dialect escaper.Dialect) (string, bool) {
	b := strarena.NewBuilder()
	n := 0
	for _, f := range filters {
		frag, ok := compileOne(f, schema, dialect)
		if !ok {
			continue
		}
		if n > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(frag)
		n++
	}
	if n == 0 || b.Failed() {
		return "", false
	}
	return b.String(), true
}

func compileOne(f value.Filter, schema value.TableSchema, dialect escaper.Dialect) (string, bool) {
	if f.Operator == value.OpRAW {
		if strings.TrimSpace(f.Value) == "" {
			return "", false
		}
		return "(" + f.Value + ")", true
	}

	if f.Operator.RequiresValue() && strings.TrimSpace(f.Value) == "" {
		return "", false
	}

	if f.ColumnIndex < 0 || f.ColumnIndex >= schema.ColumnCount() {
		return "", false
	}

	col := escaper.Identifier(dialect, schema.Columns[f.ColumnIndex].Name)

	switch f.Operator {
	case value.OpEQ:
		return col + " = " + escaper.EscapeLiteral(f.Value), true
	case value.OpNE:
		return col + " <> " + escaper.EscapeLiteral(f.Value), true
	case value.OpGT:
		return col + " > " + escaper.EscapeLiteral(f.Value), true
	case value.OpGE:
		return col + " >= " + escaper.EscapeLiteral(f.Value), true
	case value.OpLT:
		return col + " < " + escaper.EscapeLiteral(f.Value), true
	case value.OpLE:
		return col + " <= " + escaper.EscapeLiteral(f.Value), true
	case value.OpBETWEEN:
		if strings.TrimSpace(f.Value2) == "" {
			return "", false
		}
		return col + " BETWEEN " + escaper.EscapeLiteral(f.Value) + " AND " + escaper.EscapeLiteral(f.Value2), true
	case value.OpIN:
		items, ok := parseInList(f.Value)
		if !ok {
			return col + " IN (NULL)", true
		}
		quoted := make([]string, len(items))
		for i, it := range items {
			quoted[i] = escaper.EscapeLiteral(it)
		}
		return col + " IN (" + strings.Join(quoted, ", ") + ")", true
	case value.OpCONTAINS:
		return col + " LIKE " + escaper.EscapeLiteral("%"+f.Value+"%"), true
	case value.OpREGEX:
		return regexFragment(dialect, col, f.Value), true
	case value.OpIsEmpty:
		return col + " = ''", true
	case value.OpIsNotEmpty:
		return col + " <> ''", true
	case value.OpIsNull:
		return col + " IS NULL", true
	case value.OpIsNotNull:
		return col + " IS NOT NULL", true
	default:
		return "", false
	}
}

func regexFragment(dialect escaper.Dialect, col, pattern string) string {
	switch dialect {
	case escaper.DialectMySQL:
		return fmt.Sprintf("%s REGEXP %s", col, escaper.EscapeLiteral(pattern))
	case escaper.DialectPostgres:
		return fmt.Sprintf("%s ~ %s", col, escaper.EscapeLiteral(pattern))
	default: // SQLite fallback, per §4.8
		return fmt.Sprintf("%s GLOB %s", col, escaper.EscapeLiteral("*"+pattern+"*"))
	}
}

// parseInList parses an IN-list value, handling quoted strings, numerics,
// and escaped commas (a backslash immediately before a comma escapes it
// rather than ending the item). Returns ok=false on a malformed list (e.g.
// an unterminated quote), in which case the caller emits "IN (NULL)".
func parseInList(s string) ([]string, bool) {
	var items []string
	cur := strarena.NewBuilder()
	inQuote := false
	var quoteChar byte
	escaped := false

	flush := func() {
		items = append(items, strings.TrimSpace(cur.String()))
		cur.Reset()
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case inQuote:
			if c == quoteChar {
				inQuote = false
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			inQuote = true
			quoteChar = c
		case c == ',':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped || inQuote {
		return nil, false
	}
	flush()

	// Drop a single trailing empty item produced by a trailing comma, but
	// a genuinely empty list (all-whitespace input) is still malformed.
	if n := len(items); n > 1 && items[n-1] == "" {
		items = items[:n-1]
	}
	if len(items) == 1 && items[0] == "" {
		return nil, false
	}
	return items, true
}

// Package escaper implements dialect-aware identifier and value quoting,
// following the same per-dialect quoting split used for identifier
// normalization (PostgreSQL/MySQL/SQLite) and schema-qualified name
// splitting elsewhere in the module.
package escaper

import (
	"strconv"
	"strings"
)

// Dialect selects which quoting convention to apply.
type Dialect uint8

const (
	DialectPostgres Dialect = iota
	DialectMySQL
	DialectSQLite
)

// EscapeIdentifierDquote wraps s in double quotes, doubling any embedded
// double quote: escape_dquote("a\"b") -> `"a""b"`.
func EscapeIdentifierDquote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// UnquoteIdentifierDquote reverses EscapeIdentifierDquote.
func UnquoteIdentifierDquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.ReplaceAll(s, `""`, `"`)
}

// EscapeIdentifierBacktick wraps s in backticks, doubling any embedded
// backtick: escape_backtick("a`b") -> "`a``b`".
func EscapeIdentifierBacktick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// UnquoteIdentifierBacktick reverses EscapeIdentifierBacktick.
func UnquoteIdentifierBacktick(s string) string {
	s = strings.TrimPrefix(s, "`")
	s = strings.TrimSuffix(s, "`")
	return strings.ReplaceAll(s, "``", "`")
}

// Identifier quotes name for the given dialect (SQLite uses double-quote
// quoting, the same as PostgreSQL, per ANSI SQL; MySQL/MariaDB use
// backticks).
func Identifier(dialect Dialect, name string) string {
	switch dialect {
	case DialectMySQL:
		return EscapeIdentifierBacktick(name)
	default:
		return EscapeIdentifierDquote(name)
	}
}

// QualifiedTable escapes a possibly schema-qualified table name. For
// PostgreSQL, the table escaper splits on the first "." and quotes both
// halves independently before rejoining — so a schema name that itself
// contains a literal "." is split at that dot, while any later "." stays
// inside the quoted table half — and a name with no "." is treated as belonging to the "public" schema, the same
// default PostgreSQL itself applies to an unqualified reference.
func QualifiedTable(dialect Dialect, qualifiedName string) string {
	if dialect == DialectPostgres {
		schema, table := "public", qualifiedName
		if s, t, ok := strings.Cut(qualifiedName, "."); ok {
			schema, table = s, t
		}
		return Identifier(dialect, schema) + "." + Identifier(dialect, table)
	}
	return Identifier(dialect, qualifiedName)
}

// EscapeLiteral single-quote-doubles a value for inline emission in filter
// text (§4.8): embedded "'" become "''". This is only ever used for the
// filter compiler's RHS construction — bound parameters are used everywhere
// else per §4.7's "values always travel as bound parameters" rule.
func EscapeLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// PlaceholderStyle selects how build_pk_where (and other multi-parameter
// builders) render bound-parameter placeholders.
type PlaceholderStyle uint8

const (
	// PlaceholderQuestion renders "?" regardless of position (MySQL,
	// SQLite via database/sql's driver-level rewriting).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders "$1", "$2", ... (PostgreSQL).
	PlaceholderDollar
)

// NextPlaceholder renders the placeholder for the 1-based parameter index
// startIndex under style ("$startIndex" for PlaceholderDollar, "?" otherwise).
func NextPlaceholder(style PlaceholderStyle, startIndex int) string {
	if style == PlaceholderDollar {
		return "$" + strconv.Itoa(startIndex)
	}
	return "?"
}

// BuildPKWhere composes "col1 = ? AND col2 = ?" (or "$1,$2..." for
// PostgreSQL) for the given primary-key columns, starting placeholder
// numbering at startIndex (1-based). Returns the WHERE fragment and the next
// unused placeholder index.
func BuildPKWhere(dialect Dialect, style PlaceholderStyle, cols []string, startIndex int) (string, int) {
	var sb strings.Builder
	idx := startIndex
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(Identifier(dialect, col))
		sb.WriteString(" = ")
		sb.WriteString(NextPlaceholder(style, idx))
		idx++
	}
	return sb.String(), idx
}

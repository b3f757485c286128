package filter

import (
	"testing"

	"github.com/lace-db/lace/escaper"
	"github.com/lace-db/lace/value"
)

func usersSchema() value.TableSchema {
	return value.TableSchema{
		Columns: []value.Column{
			{Name: "id", LogicalType: value.LogicalInt},
			{Name: "name", LogicalType: value.LogicalText},
			{Name: "age", LogicalType: value.LogicalInt},
		},
	}
}

func TestCompileContainsAndGE(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{
		{ColumnIndex: 1, Operator: value.OpCONTAINS, Value: "oe"},
		{ColumnIndex: 2, Operator: value.OpGE, Value: "21"},
	}
	where, ok := Compile(filters, schema, escaper.DialectPostgres)
	if !ok {
		t.Fatal("expected a WHERE fragment")
	}
	want := `"name" LIKE '%oe%' AND "age" >= '21'`
	if where != want {
		t.Fatalf("where = %q, want %q", where, want)
	}
}

func TestCompileSkipsEmptyValueFilters(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{
		{ColumnIndex: 0, Operator: value.OpEQ, Value: ""},
	}
	_, ok := Compile(filters, schema, escaper.DialectPostgres)
	if ok {
		t.Fatal("expected all filters skipped")
	}
}

func TestCompileSkipsOutOfRangeColumn(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{
		{ColumnIndex: 99, Operator: value.OpEQ, Value: "x"},
	}
	_, ok := Compile(filters, schema, escaper.DialectPostgres)
	if ok {
		t.Fatal("expected out-of-range column filter to be skipped")
	}
}

func TestCompileRawVerbatim(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{
		{ColumnIndex: value.RawSentinel, Operator: value.OpRAW, Value: "id > 10 OR id < 0"},
	}
	where, ok := Compile(filters, schema, escaper.DialectPostgres)
	if !ok {
		t.Fatal("expected raw filter to compile")
	}
	if want := "(id > 10 OR id < 0)"; where != want {
		t.Fatalf("where = %q, want %q", where, want)
	}
}

func TestCompileNullOperators(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{{ColumnIndex: 1, Operator: value.OpIsNull}}
	where, ok := Compile(filters, schema, escaper.DialectMySQL)
	if !ok || where != "`name` IS NULL" {
		t.Fatalf("where = %q, ok=%v", where, ok)
	}
}

func TestCompileRegexPerDialect(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{{ColumnIndex: 1, Operator: value.OpREGEX, Value: "^a"}}

	if where, _ := Compile(filters, schema, escaper.DialectMySQL); where != "`name` REGEXP '^a'" {
		t.Errorf("mysql regex = %q", where)
	}
	if where, _ := Compile(filters, schema, escaper.DialectPostgres); where != `"name" ~ '^a'` {
		t.Errorf("postgres regex = %q", where)
	}
	if where, _ := Compile(filters, schema, escaper.DialectSQLite); where != `"name" GLOB '*^a*'` {
		t.Errorf("sqlite regex = %q", where)
	}
}

func TestCompileInListParsesQuotedAndEscapedCommas(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{{ColumnIndex: 1, Operator: value.OpIN, Value: `'Smith, Jr', "O'Brien", Plain`}}
	where, ok := Compile(filters, schema, escaper.DialectPostgres)
	if !ok {
		t.Fatal("expected IN list to compile")
	}
	want := `"name" IN ('Smith, Jr', 'O''Brien', 'Plain')`
	if where != want {
		t.Fatalf("where = %q, want %q", where, want)
	}
}

func TestCompileInListMalformedFallsBackToNull(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{{ColumnIndex: 1, Operator: value.OpIN, Value: `'unterminated`}}
	where, ok := Compile(filters, schema, escaper.DialectPostgres)
	if !ok || where != `"name" IN (NULL)` {
		t.Fatalf("where = %q, ok=%v", where, ok)
	}
}

func TestCompileAllSkippedReturnsFalse(t *testing.T) {
	schema := usersSchema()
	filters := []value.Filter{
		{ColumnIndex: 0, Operator: value.OpEQ, Value: ""},
		{ColumnIndex: 99, Operator: value.OpEQ, Value: "x"},
	}
	if _, ok := Compile(filters, schema, escaper.DialectPostgres); ok {
		t.Fatal("expected Compile to report no fragment")
	}
}

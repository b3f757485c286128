package sqlite

import (
	"context"
	"testing"

	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/value"
)

func openMemConn(t *testing.T) *Conn {
	t.Helper()
	cs := connstr.ConnString{Driver: connstr.DriverSQLite, Database: ":memory:"}
	conn, err := (Driver{}).Connect(context.Background(), cs)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Disconnect() })
	return conn.(*Conn)
}

func TestLogicalTypeFromNative(t *testing.T) {
	cases := map[string]value.LogicalType{
		"INTEGER":     value.LogicalInt,
		"VARCHAR(32)": value.LogicalText,
		"REAL":        value.LogicalFloat,
		"NUMERIC":     value.LogicalFloat,
		"BOOLEAN":     value.LogicalBool,
		"BLOB":        value.LogicalBlob,
		"DATE":        value.LogicalDate,
		"TIMESTAMP":   value.LogicalTimestamp,
		"DATETIME":    value.LogicalTimestamp,
		"":            value.LogicalText,
	}
	for native, want := range cases {
		if got := logicalTypeFromNative(native); got != want {
			t.Errorf("logicalTypeFromNative(%q) = %v, want %v", native, got, want)
		}
	}
}

func TestListTablesAndSchema(t *testing.T) {
	ctx := context.Background()
	conn := openMemConn(t)

	if _, err := conn.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tables, err := conn.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(tables) != 1 || tables[0] != "users" {
		t.Fatalf("ListTables = %v", tables)
	}

	schema, err := conn.GetTableSchema(ctx, "users")
	if err != nil {
		t.Fatalf("GetTableSchema: %v", err)
	}
	if schema.ColumnCount() != 3 {
		t.Fatalf("expected 3 columns, got %d", schema.ColumnCount())
	}
	if idx := schema.ColumnIndex("id"); idx != 0 || !schema.Columns[idx].PrimaryKey {
		t.Fatalf("id column should be primary key at index 0, got index %d", idx)
	}
	if idx := schema.ColumnIndex("name"); idx != 1 || schema.Columns[idx].Nullable {
		t.Fatalf("name column should be non-nullable")
	}
}

func TestGetTableSchemaMissingTable(t *testing.T) {
	conn := openMemConn(t)
	if _, err := conn.GetTableSchema(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestInsertQueryUpdateDeleteRoundtrip(t *testing.T) {
	ctx := context.Background()
	conn := openMemConn(t)

	if _, err := conn.Exec(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	id, hasPK, err := conn.InsertRow(ctx, "users", []string{"name"}, []value.Value{value.NewText("Ada")})
	if err != nil || !hasPK {
		t.Fatalf("InsertRow: %v hasPK=%v", err, hasPK)
	}

	rs, err := conn.Query(ctx, "SELECT id, name FROM users")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rs.Rows) != 1 || rs.Rows[0][1].Text != "Ada" {
		t.Fatalf("unexpected rows: %+v", rs.Rows)
	}

	if err := conn.UpdateCell(ctx, "users", []string{"id"}, []value.Value{id}, "name", value.NewText("Grace")); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}
	rs, _ = conn.Query(ctx, "SELECT name FROM users WHERE id = ?", id.Int)
	if rs.Rows[0][0].Text != "Grace" {
		t.Fatalf("update did not take effect: %+v", rs.Rows)
	}

	if err := conn.DeleteRow(ctx, "users", []string{"id"}, []value.Value{id}); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	rs, _ = conn.Query(ctx, "SELECT * FROM users")
	if len(rs.Rows) != 0 {
		t.Fatalf("expected row deleted, got %+v", rs.Rows)
	}
}

func TestQueryPageOrdering(t *testing.T) {
	ctx := context.Background()
	conn := openMemConn(t)
	conn.Exec(ctx, `CREATE TABLE t (n INTEGER)`)
	for i := 0; i < 5; i++ {
		conn.Exec(ctx, "INSERT INTO t (n) VALUES (?)", i)
	}

	rs, err := conn.QueryPage(ctx, "t", 1, 2, "n", true)
	if err != nil {
		t.Fatalf("QueryPage: %v", err)
	}
	if len(rs.Rows) != 2 || rs.Rows[0][0].Int != 3 || rs.Rows[1][0].Int != 2 {
		t.Fatalf("unexpected page: %+v", rs.Rows)
	}
}

func TestQueryCapsRowsAndSetsHasMore(t *testing.T) {
	ctx := context.Background()
	conn := openMemConn(t)
	conn.Exec(ctx, `CREATE TABLE t (n INTEGER)`)
	for i := 0; i < 5; i++ {
		conn.Exec(ctx, "INSERT INTO t (n) VALUES (?)", i)
	}

	conn.SetMaxResultRows(2)
	rs, err := conn.Query(ctx, "SELECT n FROM t")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected cap at 2 rows, got %d", len(rs.Rows))
	}
	if !rs.HasMore {
		t.Fatal("expected HasMore=true once the cap truncates the result")
	}
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	conn := openMemConn(t)
	conn.Exec(ctx, `CREATE TABLE t (n INTEGER)`)

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	conn.Exec(ctx, "INSERT INTO t (n) VALUES (1)")
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	rs, _ := conn.Query(ctx, "SELECT * FROM t")
	if len(rs.Rows) != 0 {
		t.Fatalf("expected rollback to discard insert, got %+v", rs.Rows)
	}
}

func TestEstimateRowCountUnavailable(t *testing.T) {
	conn := openMemConn(t)
	if _, ok := conn.EstimateRowCount(context.Background(), "users"); ok {
		t.Fatal("sqlite should never report a row count estimate")
	}
}

func TestPrepareCancel(t *testing.T) {
	conn := openMemConn(t)
	handle, ok := conn.PrepareCancel(context.Background())
	if !ok {
		t.Fatal("expected a cancel handle")
	}
	defer handle.Release()
	if err := handle.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/value"
)

func TestLogicalTypeFromNative(t *testing.T) {
	cases := map[string]value.LogicalType{
		"integer":                      value.LogicalInt,
		"bigint":                       value.LogicalInt,
		"character varying":            value.LogicalText,
		"double precision":             value.LogicalFloat,
		"numeric":                      value.LogicalFloat,
		"boolean":                      value.LogicalBool,
		"bytea":                        value.LogicalBlob,
		"date":                         value.LogicalTimestamp,
		"timestamp without time zone":  value.LogicalTimestamp,
		"time without time zone":       value.LogicalTimestamp,
	}
	for native, want := range cases {
		if got := logicalTypeFromNative(native); got != want {
			t.Errorf("logicalTypeFromNative(%q) = %v, want %v", native, got, want)
		}
	}
}

func TestSplitQualified(t *testing.T) {
	if s, tbl := splitQualified("public.users"); s != "public" || tbl != "users" {
		t.Fatalf("got %q.%q", s, tbl)
	}
	if s, tbl := splitQualified("users"); s != "public" || tbl != "users" {
		t.Fatalf("unqualified name should default to public schema, got %q.%q", s, tbl)
	}
}

func TestBuildKeywordDSNEscapesQuotesAndBackslashes(t *testing.T) {
	cs := connstr.ConnString{
		Driver: connstr.DriverPostgres, Host: "db", Database: "app",
		HasUser: true, User: "ada", HasPassword: true, Password: `a'b\c`,
	}
	dsn := buildKeywordDSN(cs)
	want := `host='db' dbname='app' user='ada' password='a\'b\\c'`
	if dsn != want {
		t.Fatalf("dsn = %q, want %q", dsn, want)
	}
}

func TestQueryScansRowsViaSqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ada").AddRow(int64(2), nil)
	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(rows)

	conn := &Conn{db: db, maxResultRows: value.DefaultMaxResultRows}
	rs, err := conn.Query(context.Background(), "SELECT id, name FROM users")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rs.Rows))
	}
	if rs.Rows[1][1].IsNull == false {
		t.Fatalf("expected second row's name to be null")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEstimateRowCountTreatsNeverAnalysedAsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT c.reltuples").WillReturnRows(sqlmock.NewRows([]string{"reltuples"}).AddRow(float64(-1)))

	conn := &Conn{db: db}
	if _, ok := conn.EstimateRowCount(context.Background(), "public.users"); ok {
		t.Fatal("reltuples = -1 should report unavailable")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFromDriverValueHexBlob(t *testing.T) {
	v := fromDriverValue([]byte(`\x48656c6c6f`), value.LogicalBlob)
	if v.Kind != value.KindBlob || string(v.Blob) != "Hello" {
		t.Fatalf("got %+v", v)
	}
}

func TestFromDriverValueMalformedHexBlobStoredRaw(t *testing.T) {
	v := fromDriverValue([]byte(`\xZZ`), value.LogicalBlob)
	if v.Kind != value.KindBlob {
		t.Fatalf("expected blob kind even for malformed hex, got %+v", v)
	}
}

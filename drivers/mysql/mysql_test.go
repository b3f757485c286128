package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	driver "github.com/go-sql-driver/mysql"

	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/errkind"
	"github.com/lace-db/lace/value"
)

func TestLogicalTypeFromNative(t *testing.T) {
	cases := map[string]value.LogicalType{
		"int":       value.LogicalInt,
		"bigint":    value.LogicalInt,
		"varchar":   value.LogicalText,
		"double":    value.LogicalFloat,
		"decimal":   value.LogicalFloat,
		"tinyint":   value.LogicalBool,
		"blob":      value.LogicalBlob,
		"date":      value.LogicalDate,
		"datetime":  value.LogicalTimestamp,
		"timestamp": value.LogicalTimestamp,
	}
	for native, want := range cases {
		if got := logicalTypeFromNative(native); got != want {
			t.Errorf("logicalTypeFromNative(%q) = %v, want %v", native, got, want)
		}
	}
}

func TestBuildDSNDefaultsPortAndEnablesParseTime(t *testing.T) {
	cs := connstr.ConnString{Driver: connstr.DriverMySQL, Host: "db", Database: "app", HasUser: true, User: "root"}
	dsn := buildDSN(cs)
	if want := "root@tcp(db:3306)/app?parseTime=true"; dsn != want {
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
	if !rs.Rows[1][1].IsNull {
		t.Fatalf("expected second row's name to be null")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestQueryCapsRowsAndSetsHasMore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3))
	mock.ExpectQuery("SELECT id FROM users").WillReturnRows(rows)

	conn := &Conn{db: db, maxResultRows: 2}
	rs, err := conn.Query(context.Background(), "SELECT id FROM users")
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

func TestEstimateRowCountUnavailableWhenNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_ROWS").WillReturnRows(sqlmock.NewRows([]string{"TABLE_ROWS"}).AddRow(nil))

	conn := &Conn{db: db, database: "app"}
	if _, ok := conn.EstimateRowCount(context.Background(), "users"); ok {
		t.Fatal("expected unavailable for NULL TABLE_ROWS")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClassifyQueryErrorDuplicateKey(t *testing.T) {
	err := classifyQueryError(&driver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if !errkind.OfKind(err, errkind.DataConstraintViolation) {
		t.Fatalf("expected DataConstraintViolation, got %v", err)
	}
}

func TestClassifyQueryErrorSyntax(t *testing.T) {
	err := classifyQueryError(&driver.MySQLError{Number: 1064, Message: "syntax error"})
	if !errkind.OfKind(err, errkind.QuerySyntax) {
		t.Fatalf("expected QuerySyntax, got %v", err)
	}
}

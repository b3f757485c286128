// Package mysql implements the MySQL/MariaDB adapter: mysql.Config/FormatDSN
// for DSN building and lower_case_table_names detection, generalized from a
// DDL-dump-only Database interface to the full drv.Driver/drv.Conn
// capability set.
//
// Uses github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	driver "github.com/go-sql-driver/mysql"

	"github.com/lace-db/lace/connstr"
	lacedrv "github.com/lace-db/lace/drv"
	"github.com/lace-db/lace/errkind"
	"github.com/lace-db/lace/escaper"
	"github.com/lace-db/lace/value"
)

func init() {
	lacedrv.Register("mysql", Driver{})
}

// Driver implements drv.Driver for MySQL and MariaDB, treated as a single
// "mariadb" alias resolved by connstr.
type Driver struct{}

func (Driver) Name() string { return "mysql" }

func (Driver) Connect(ctx context.Context, cs connstr.ConnString) (lacedrv.Conn, error) {
	if cs.Driver != connstr.DriverMySQL {
		return nil, errkind.New(errkind.ConnectionFailed, "mysql", fmt.Errorf("wrong driver %q", cs.Driver))
	}
	db, err := sql.Open("mysql", buildDSN(cs))
	if err != nil {
		return nil, errkind.New(errkind.ConnectionFailed, "mysql", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classifyConnectError(err)
	}
	lowerCaseTableNames := queryLowerCaseTableNames(ctx, db)
	slog.Debug("mysql connected", "host", cs.Host, "database", cs.Database, "lower_case_table_names", lowerCaseTableNames)
	return &Conn{db: db, database: cs.Database, lowerCaseTableNames: lowerCaseTableNames, maxResultRows: value.DefaultMaxResultRows}, nil
}

// buildDSN uses mysql.Config/FormatDSN rather than string concatenation, so
// every DSN field is escaped by the driver's own formatter.
func buildDSN(cs connstr.ConnString) string {
	c := driver.NewConfig()
	if cs.HasUser {
		c.User = cs.User
	}
	if cs.HasPassword {
		c.Passwd = cs.Password
	}
	c.DBName = cs.Database
	c.Net = "tcp"
	port := cs.Port
	if !cs.HasPort {
		port = 3306
	}
	c.Addr = fmt.Sprintf("%s:%d", cs.Host, port)
	c.ParseTime = true
	if tlsMode, ok := cs.Options.Get("sslmode"); ok && tlsMode != "disable" {
		c.TLSConfig = tlsMode
	}
	return c.FormatDSN()
}

func classifyConnectError(err error) error {
	if mysqlErr, ok := err.(*driver.MySQLError); ok && mysqlErr.Number == 1045 {
		return errkind.New(errkind.ConnectionAuthFailed, "mysql", err)
	}
	return errkind.New(errkind.ConnectionFailed, "mysql", err)
}

// queryLowerCaseTableNames reads the server's lower_case_table_names
// setting: on macOS/Windows servers table names are matched
// case-insensitively, which matters when a qualified name the caller
// supplies doesn't match the catalog's stored case exactly.
func queryLowerCaseTableNames(ctx context.Context, db *sql.DB) int {
	var varName, val string
	if err := db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'lower_case_table_names'").Scan(&varName, &val); err != nil {
		return 0
	}
	switch val {
	case "1":
		return 1
	case "2":
		return 2
	default:
		return 0
	}
}

// Conn implements drv.Conn for one MySQL/MariaDB connection.
type Conn struct {
	db                  *sql.DB
	tx                  *sql.Tx
	status              atomic.Int32
	database            string
	lowerCaseTableNames int
	maxResultRows       int64
}

// SetMaxResultRows changes the row cap Query/QueryPage enforce from now on.
func (c *Conn) SetMaxResultRows(n int64) {
	if n > 0 {
		c.maxResultRows = n
	}
}

func (c *Conn) Disconnect() error { return c.db.Close() }

func (c *Conn) Ping(ctx context.Context) bool {
	if err := c.db.PingContext(ctx); err != nil {
		c.status.Store(int32(lacedrv.StatusError))
		return false
	}
	c.status.Store(int32(lacedrv.StatusConnected))
	return true
}

func (c *Conn) Status() lacedrv.Status { return lacedrv.Status(c.status.Load()) }

func (c *Conn) execer() execer {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`, c.database)
	if err != nil {
		return nil, errkind.New(errkind.QueryFailed, "mysql", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errkind.New(errkind.QueryFailed, "mysql", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (c *Conn) GetTableSchema(ctx context.Context, qualifiedName string) (value.TableSchema, error) {
	out := value.TableSchema{QualifiedName: qualifiedName}

	rows, err := c.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA, CHARACTER_MAXIMUM_LENGTH, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, c.database, qualifiedName)
	if err != nil {
		return out, errkind.New(errkind.DataTableNotFound, "mysql", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, dataType, nullable, extra, key string
			dflt                                  sql.NullString
			maxLen                                sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &nullable, &dflt, &extra, &maxLen, &key); err != nil {
			return out, errkind.New(errkind.QueryFailed, "mysql", err)
		}
		col := value.Column{
			Name:          name,
			DriverType:    dataType,
			LogicalType:   logicalTypeFromNative(dataType),
			Nullable:      nullable == "YES",
			PrimaryKey:    key == "PRI",
			AutoIncrement: strings.Contains(extra, "auto_increment"),
		}
		if dflt.Valid {
			col.HasDefault = true
			col.DefaultExpr = dflt.String
		}
		if maxLen.Valid {
			col.HasMaxLength = true
			col.MaxLength = int(maxLen.Int64)
		}
		out.Columns = append(out.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return out, errkind.New(errkind.QueryFailed, "mysql", err)
	}
	if len(out.Columns) == 0 {
		return out, errkind.New(errkind.DataTableNotFound, "mysql", fmt.Errorf("table %q not found", qualifiedName))
	}
	return out, nil
}

// logicalTypeFromNative maps INFORMATION_SCHEMA.COLUMNS' DATA_TYPE to a
// LogicalType. tinyint(1) is MySQL's conventional boolean encoding, but
// DATA_TYPE carries no display width, so every tinyint column (of any width)
// maps to BOOL ahead of the general int match.
func logicalTypeFromNative(native string) value.LogicalType {
	n := strings.ToLower(native)
	switch {
	case n == "date":
		return value.LogicalDate
	case strings.Contains(n, "timestamp"), strings.Contains(n, "datetime"), strings.Contains(n, "time"):
		return value.LogicalTimestamp
	case n == "tinyint":
		return value.LogicalBool
	case strings.Contains(n, "int"):
		return value.LogicalInt
	case strings.Contains(n, "float"), strings.Contains(n, "double"), strings.Contains(n, "decimal"), strings.Contains(n, "numeric"):
		return value.LogicalFloat
	case n == "bool", n == "boolean":
		return value.LogicalBool
	case strings.Contains(n, "blob"), strings.Contains(n, "binary"):
		return value.LogicalBlob
	default:
		return value.LogicalText
	}
}

func (c *Conn) Query(ctx context.Context, q string, args ...any) (value.ResultSet, error) {
	rows, err := c.execer().QueryContext(ctx, q, args...)
	if err != nil {
		return value.ResultSet{}, classifyQueryError(err)
	}
	defer rows.Close()
	return scanRows(rows, c.maxResultRows)
}

func classifyQueryError(err error) error {
	if mysqlErr, ok := err.(*driver.MySQLError); ok {
		switch mysqlErr.Number {
		case 1062, 1451, 1452: // duplicate key, FK violations
			return errkind.New(errkind.DataConstraintViolation, "mysql", err)
		case 1064:
			return errkind.New(errkind.QuerySyntax, "mysql", err)
		}
	}
	if err == context.Canceled {
		return errkind.New(errkind.QueryCancelled, "mysql", err)
	}
	return errkind.New(errkind.QueryFailed, "mysql", err)
}

func (c *Conn) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := c.execer().ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classifyQueryError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errkind.New(errkind.QueryFailed, "mysql", err)
	}
	return n, nil
}

func (c *Conn) QueryPage(ctx context.Context, table string, offset, limit int64, orderBy string, desc bool) (value.ResultSet, error) {
	q := fmt.Sprintf("SELECT * FROM %s", escaper.Identifier(escaper.DialectMySQL, table))
	if orderBy != "" {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		q += fmt.Sprintf(" ORDER BY %s %s", escaper.Identifier(escaper.DialectMySQL, orderBy), dir)
	}
	q += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	return c.Query(ctx, q)
}

func (c *Conn) UpdateCell(ctx context.Context, table string, pkCols []string, pkVals []value.Value, col string, newVal value.Value) error {
	where, args := buildPKWhereArgs(pkCols, pkVals, 1)
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s",
		escaper.Identifier(escaper.DialectMySQL, table), escaper.Identifier(escaper.DialectMySQL, col), where)
	args = append([]any{toDriverArg(newVal)}, args...)
	if _, err := c.execer().ExecContext(ctx, q, args...); err != nil {
		return classifyQueryError(err)
	}
	return nil
}

func (c *Conn) InsertRow(ctx context.Context, table string, colNames []string, colValues []value.Value) (value.Value, bool, error) {
	quoted := make([]string, len(colNames))
	placeholders := make([]string, len(colNames))
	args := make([]any, len(colValues))
	for i, n := range colNames {
		quoted[i] = escaper.Identifier(escaper.DialectMySQL, n)
		placeholders[i] = "?"
		args[i] = toDriverArg(colValues[i])
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		escaper.Identifier(escaper.DialectMySQL, table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	res, err := c.execer().ExecContext(ctx, q, args...)
	if err != nil {
		return value.Value{}, false, classifyQueryError(err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		return value.Value{}, false, nil
	}
	return value.NewInt(id), true, nil
}

func (c *Conn) DeleteRow(ctx context.Context, table string, pkCols []string, pkVals []value.Value) error {
	where, args := buildPKWhereArgs(pkCols, pkVals, 1)
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", escaper.Identifier(escaper.DialectMySQL, table), where)
	if _, err := c.execer().ExecContext(ctx, q, args...); err != nil {
		return classifyQueryError(err)
	}
	return nil
}

func (c *Conn) Begin(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errkind.New(errkind.TransactionFailed, "mysql", err)
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return errkind.New(errkind.TransactionFailed, "mysql", err)
	}
	return nil
}

func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		return errkind.New(errkind.TransactionFailed, "mysql", err)
	}
	return nil
}

// PrepareCancel has no protocol-level cancel token of its own in
// go-sql-driver/mysql's public API (unlike lib/pq, it doesn't expose a
// dedicated CancelRequest). The returned handle reserves its own *sql.Conn
// from the pool and Cancel closes that connection. Statements issued through
// Query, Exec and QueryPage run on other pool connections (or the open
// transaction), so Cancel does not interrupt one already running; it runs
// to completion.
func (c *Conn) PrepareCancel(ctx context.Context) (lacedrv.CancelHandle, bool) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, false
	}
	return &killHandle{conn: conn}, true
}

type killHandle struct {
	conn *sql.Conn
}

func (h *killHandle) Cancel() error {
	return h.conn.Close()
}

func (h *killHandle) Release() {
	h.conn.Close()
}

// EstimateRowCount reads INFORMATION_SCHEMA.TABLES.TABLE_ROWS, an
// InnoDB statistics estimate refreshed on ANALYZE TABLE.
func (c *Conn) EstimateRowCount(ctx context.Context, table string) (int64, bool) {
	var rowsEst sql.NullInt64
	err := c.db.QueryRowContext(ctx, `
		SELECT TABLE_ROWS FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	`, c.database, table).Scan(&rowsEst)
	if err != nil || !rowsEst.Valid {
		return -1, false
	}
	return rowsEst.Int64, true
}

func scanRows(rows *sql.Rows, maxRows int64) (value.ResultSet, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return value.ResultSet{}, errkind.New(errkind.QueryFailed, "mysql", err)
	}
	cols := make([]value.Column, len(colTypes))
	for i, ct := range colTypes {
		cols[i] = value.Column{Name: ct.Name(), DriverType: ct.DatabaseTypeName(), LogicalType: logicalTypeFromNative(ct.DatabaseTypeName())}
	}

	rs := value.NewEmptyResultSet(cols)
	rs.RowsAffected = -1

	for rows.Next() {
		if int64(len(rs.Rows)) >= maxRows {
			rs.HasMore = true
			break
		}
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return rs, errkind.New(errkind.QueryFailed, "mysql", err)
		}
		row := make(value.Row, len(cols))
		for i, v := range raw {
			row[i] = fromDriverValue(v, cols[i].LogicalType)
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}

func fromDriverValue(v any, logical value.LogicalType) value.Value {
	if v == nil {
		return value.NewNull()
	}
	switch t := v.(type) {
	case int64:
		if logical == value.LogicalBool {
			return value.NewBool(t != 0)
		}
		return value.NewInt(t)
	case float64:
		return value.NewFloat(t)
	case []byte:
		if logical == value.LogicalBlob {
			return value.NewBlob(t)
		}
		return value.NewText(string(t))
	case string:
		return value.NewText(t)
	case bool:
		return value.NewBool(t)
	default:
		return value.NewText(fmt.Sprintf("%v", t))
	}
}

func toDriverArg(v value.Value) any {
	if v.IsNull {
		return nil
	}
	switch v.Kind {
	case value.KindInt:
		return v.Int
	case value.KindFloat:
		return v.Flt
	case value.KindBool:
		return v.Bool
	case value.KindBlob:
		return v.Blob
	case value.KindDate, value.KindTimestamp:
		return v.Time
	default:
		return v.Text
	}
}

func buildPKWhereArgs(cols []string, vals []value.Value, start int) (string, []any) {
	where, _ := escaper.BuildPKWhere(escaper.DialectMySQL, escaper.PlaceholderQuestion, cols, start)
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = toDriverArg(v)
	}
	return where, args
}

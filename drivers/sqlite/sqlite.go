// Package sqlite implements the embedded-engine adapter: sqlite_master
// table listing and PRAGMA table_info/index_list/foreign_key_list
// introspection, generalized from a DDL-dump-only Database interface to the
// full drv.Driver/drv.Conn read/write/page/cancel capability set.
//
// Uses modernc.org/sqlite (pure Go, no cgo): no C toolchain requirement for
// a client end users install directly.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/drv"
	"github.com/lace-db/lace/errkind"
	"github.com/lace-db/lace/escaper"
	"github.com/lace-db/lace/value"
)

func init() {
	drv.Register("sqlite", Driver{})
}

// Driver implements drv.Driver for SQLite.
type Driver struct{}

func (Driver) Name() string { return "sqlite" }

func (Driver) Connect(ctx context.Context, cs connstr.ConnString) (drv.Conn, error) {
	if cs.Driver != connstr.DriverSQLite {
		return nil, errkind.New(errkind.ConnectionFailed, "sqlite", fmt.Errorf("wrong driver %q", cs.Driver))
	}
	db, err := sql.Open("sqlite", cs.Database)
	if err != nil {
		return nil, errkind.New(errkind.ConnectionFailed, "sqlite", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errkind.New(errkind.ConnectionFailed, "sqlite", err)
	}
	slog.Debug("sqlite connected", "path", cs.Database)
	return &Conn{db: db, maxResultRows: value.DefaultMaxResultRows}, nil
}

// Conn implements drv.Conn for a single SQLite database file.
type Conn struct {
	db            *sql.DB
	tx            *sql.Tx
	status        atomic.Int32 // drv.Status
	maxResultRows int64
}

// SetMaxResultRows changes the row cap Query/QueryPage enforce from now on.
func (c *Conn) SetMaxResultRows(n int64) {
	if n > 0 {
		c.maxResultRows = n
	}
}

func (c *Conn) Disconnect() error {
	return c.db.Close()
}

func (c *Conn) Ping(ctx context.Context) bool {
	if err := c.db.PingContext(ctx); err != nil {
		c.status.Store(int32(drv.StatusError))
		// SQLite is an embedded engine; "reconnect" means re-opening the
		// file handle, which sql.DB already does transparently on the next
		// query. We surface failure now but don't force-close the pool.
		return false
	}
	c.status.Store(int32(drv.StatusConnected))
	return true
}

func (c *Conn) Status() drv.Status {
	return drv.Status(c.status.Load())
}

func (c *Conn) execer() execer {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Conn) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT tbl_name FROM sqlite_master
		WHERE type = 'table' AND tbl_name NOT LIKE 'sqlite_%'
		ORDER BY tbl_name
	`)
	if err != nil {
		return nil, errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errkind.New(errkind.QueryFailed, "sqlite", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (c *Conn) GetTableSchema(ctx context.Context, qualifiedName string) (value.TableSchema, error) {
	schema := value.TableSchema{QualifiedName: qualifiedName}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", escaper.Identifier(escaper.DialectSQLite, qualifiedName)))
	if err != nil {
		return schema, errkind.New(errkind.DataTableNotFound, "sqlite", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return schema, errkind.New(errkind.QueryFailed, "sqlite", err)
		}
		col := value.Column{
			Name:        name,
			DriverType:  ctype,
			LogicalType: logicalTypeFromNative(ctype),
			Nullable:    notnull == 0,
			PrimaryKey:  pk > 0,
		}
		if dflt.Valid {
			col.HasDefault = true
			col.DefaultExpr = dflt.String
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return schema, errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	if len(schema.Columns) == 0 {
		return schema, errkind.New(errkind.DataTableNotFound, "sqlite", fmt.Errorf("table %q not found", qualifiedName))
	}

	if idxRows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", escaper.Identifier(escaper.DialectSQLite, qualifiedName))); err == nil {
		defer idxRows.Close()
		for idxRows.Next() {
			var seq int
			var name, origin string
			var unique, partial int
			if err := idxRows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
				continue
			}
			schema.Indexes = append(schema.Indexes, value.Index{Name: name, Unique: unique != 0})
		}
	}

	if fkRows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", escaper.Identifier(escaper.DialectSQLite, qualifiedName))); err == nil {
		defer fkRows.Close()
		for fkRows.Next() {
			var id, seq int
			var table, from, to string
			var onUpdate, onDelete, match string
			if err := fkRows.Scan(&id, &seq, &table, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				continue
			}
			schema.ForeignKeys = append(schema.ForeignKeys, value.ForeignKey{
				Column:           from,
				ReferencedTable:  table,
				ReferencedColumn: to,
			})
		}
	}

	return schema, nil
}

// logicalTypeFromNative maps a SQLite declared type to a LogicalType by
// substring: INT*->INT, FLOAT|DOUBLE|REAL|NUMERIC|DECIMAL->FLOAT,
// BOOL*->BOOL, BLOB|BINARY->BLOB, DATE (exact)->DATE,
// TIMESTAMP|DATETIME->TIMESTAMP, else TEXT.
func logicalTypeFromNative(native string) value.LogicalType {
	u := strings.ToUpper(native)
	switch {
	case u == "DATE":
		return value.LogicalDate
	case strings.Contains(u, "TIMESTAMP"), strings.Contains(u, "DATETIME"):
		return value.LogicalTimestamp
	case strings.Contains(u, "INT"):
		return value.LogicalInt
	case strings.Contains(u, "FLOAT"), strings.Contains(u, "DOUBLE"), strings.Contains(u, "REAL"),
		strings.Contains(u, "NUMERIC"), strings.Contains(u, "DECIMAL"):
		return value.LogicalFloat
	case strings.Contains(u, "BOOL"):
		return value.LogicalBool
	case strings.Contains(u, "BLOB"), strings.Contains(u, "BINARY"):
		return value.LogicalBlob
	default:
		return value.LogicalText
	}
}

func (c *Conn) Query(ctx context.Context, q string, args ...any) (value.ResultSet, error) {
	rows, err := c.execer().QueryContext(ctx, q, args...)
	if err != nil {
		return value.ResultSet{}, errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	defer rows.Close()
	return scanRows(rows, c.maxResultRows)
}

func (c *Conn) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := c.execer().ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	return n, nil
}

func (c *Conn) QueryPage(ctx context.Context, table string, offset, limit int64, orderBy string, desc bool) (value.ResultSet, error) {
	q := fmt.Sprintf("SELECT * FROM %s", escaper.Identifier(escaper.DialectSQLite, table))
	if orderBy != "" {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		q += fmt.Sprintf(" ORDER BY %s %s", escaper.Identifier(escaper.DialectSQLite, orderBy), dir)
	}
	q += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	return c.Query(ctx, q)
}

func (c *Conn) UpdateCell(ctx context.Context, table string, pkCols []string, pkVals []value.Value, col string, newVal value.Value) error {
	where, args := buildPKWhereArgs(escaper.DialectSQLite, escaper.PlaceholderQuestion, pkCols, pkVals, 1)
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s",
		escaper.Identifier(escaper.DialectSQLite, table), escaper.Identifier(escaper.DialectSQLite, col), where)
	args = append([]any{toDriverArg(newVal)}, args...)
	_, err := c.execer().ExecContext(ctx, q, args...)
	if err != nil {
		return errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	return nil
}

func (c *Conn) InsertRow(ctx context.Context, table string, colNames []string, colValues []value.Value) (value.Value, bool, error) {
	quoted := make([]string, len(colNames))
	placeholders := make([]string, len(colNames))
	args := make([]any, len(colValues))
	for i, n := range colNames {
		quoted[i] = escaper.Identifier(escaper.DialectSQLite, n)
		placeholders[i] = "?"
		args[i] = toDriverArg(colValues[i])
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		escaper.Identifier(escaper.DialectSQLite, table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	res, err := c.execer().ExecContext(ctx, q, args...)
	if err != nil {
		return value.Value{}, false, errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return value.Value{}, false, nil
	}
	return value.NewInt(id), true, nil
}

func (c *Conn) DeleteRow(ctx context.Context, table string, pkCols []string, pkVals []value.Value) error {
	where, args := buildPKWhereArgs(escaper.DialectSQLite, escaper.PlaceholderQuestion, pkCols, pkVals, 1)
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", escaper.Identifier(escaper.DialectSQLite, table), where)
	_, err := c.execer().ExecContext(ctx, q, args...)
	if err != nil {
		return errkind.New(errkind.QueryFailed, "sqlite", err)
	}
	return nil
}

func (c *Conn) Begin(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errkind.New(errkind.TransactionFailed, "sqlite", err)
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
		return errkind.New(errkind.TransactionFailed, "sqlite", err)
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
		return errkind.New(errkind.TransactionFailed, "sqlite", err)
	}
	return nil
}

// PrepareCancel returns a handle holding the cancel func of a child context
// derived from ctx. No statement on this Conn runs under that child
// context, so Cancel does not interrupt a statement already running; it
// runs to completion. modernc.org/sqlite does honour cancellation of the
// context passed to Query, Exec and QueryPage themselves.
func (c *Conn) PrepareCancel(ctx context.Context) (drv.CancelHandle, bool) {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &softInterruptHandle{cancel: cancel, ctx: cancelCtx}, true
}

type softInterruptHandle struct {
	cancel context.CancelFunc
	ctx    context.Context
}

func (h *softInterruptHandle) Cancel() error {
	h.cancel()
	return nil
}

func (h *softInterruptHandle) Release() {
	h.cancel()
}

// EstimateRowCount always returns (-1, false): SQLite has no cheap
// statistics-based estimate.
func (c *Conn) EstimateRowCount(ctx context.Context, table string) (int64, bool) {
	return -1, false
}

func scanRows(rows *sql.Rows, maxRows int64) (value.ResultSet, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return value.ResultSet{}, errkind.New(errkind.QueryFailed, "sqlite", err)
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
			return rs, errkind.New(errkind.QueryFailed, "sqlite", err)
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

func buildPKWhereArgs(dialect escaper.Dialect, style escaper.PlaceholderStyle, cols []string, vals []value.Value, start int) (string, []any) {
	where, _ := escaper.BuildPKWhere(dialect, style, cols, start)
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = toDriverArg(v)
	}
	return where, args
}

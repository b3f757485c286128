// Package drv defines the driver capability set: the fixed interface every
// backend (SQLite, PostgreSQL, MySQL/MariaDB) implements so the rest of the
// module never branches on which wire protocol is in play. Named "drv"
// rather than "driver" to avoid colliding with the stdlib database/sql/driver
// package that backends still register themselves with underneath.
//
// Grounded on database/sql's own driver-registration idiom and each
// backend's own NewDatabase(config) (Database, error) constructor shape,
// generalized from a DDL-dump-only capability set to the full
// read/write/page/cancel set a table-browsing client needs.
package drv

import (
	"context"

	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/value"
)

// Status is a connection's liveness as last observed.
type Status uint8

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusError
)

// CancelHandle is an opaque, driver-specific token obtained before executing
// a statement that permits another goroutine to request its termination.
// context.CancelFunc fills this role directly for drivers backed by
// database/sql's context-aware Exec/Query variants; PostgreSQL additionally
// wraps a protocol-level cancel token.
type CancelHandle interface {
	// Cancel requests termination of the in-flight statement this handle
	// was obtained for. Idempotent: a second call is a harmless no-op.
	Cancel() error
	// Release frees any resource the handle holds, whether or not Cancel
	// was ever called.
	Release()
}

// Driver is the capability set every backend implements.
// Every method may fail with a driver-attributed error (see errkind); none
// may panic.
type Driver interface {
	// Connect opens a new connection described by cs. The returned Conn is
	// single-threaded: callers must not use it concurrently from two
	// goroutines.
	Connect(ctx context.Context, cs connstr.ConnString) (Conn, error)

	// Name identifies this driver ("sqlite", "postgres", "mysql") for
	// error attribution and registry lookup.
	Name() string
}

// Conn is a single open connection.
type Conn interface {
	Disconnect() error

	// Ping attempts a lightweight liveness check, transparently retrying a
	// silent reconnect on failure before reporting down.
	Ping(ctx context.Context) bool

	Status() Status

	ListTables(ctx context.Context) ([]string, error)
	GetTableSchema(ctx context.Context, qualifiedName string) (value.TableSchema, error)

	// Query runs a SELECT or a DDL statement that returns no rows.
	Query(ctx context.Context, sql string, args ...any) (value.ResultSet, error)
	// Exec runs an INSERT/UPDATE/DELETE and reports rows affected.
	Exec(ctx context.Context, sql string, args ...any) (rowsAffected int64, err error)

	QueryPage(ctx context.Context, table string, offset, limit int64, orderBy string, desc bool) (value.ResultSet, error)

	UpdateCell(ctx context.Context, table string, pkCols []string, pkVals []value.Value, col string, newVal value.Value) error
	InsertRow(ctx context.Context, table string, colNames []string, colValues []value.Value) (insertedPK value.Value, hasPK bool, err error)
	DeleteRow(ctx context.Context, table string, pkCols []string, pkVals []value.Value) error

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// PrepareCancel obtains a cancel handle for the next blocking call made
	// on this Conn, or (nil, false) if the backend has nothing cheaper than
	// context cancellation to offer.
	PrepareCancel(ctx context.Context) (CancelHandle, bool)

	// EstimateRowCount returns the backend's statistics-based row count
	// estimate for table, or (-1, false) when unavailable.
	EstimateRowCount(ctx context.Context, table string) (int64, bool)

	// SetMaxResultRows changes the row cap Query/QueryPage enforce on this
	// connection from now on (value.DefaultMaxResultRows until called). A
	// non-positive n is ignored.
	SetMaxResultRows(n int64)
}

// registry is the process-init registration table backends add themselves
// to, mirroring database/sql.Register.
var registry = map[string]Driver{}

// Register adds a Driver under name. Intended to be called from backend
// package init() functions (drivers/sqlite, drivers/postgres,
// drivers/mysql), the same shape as database/sql.Register.
func Register(name string, d Driver) {
	registry[name] = d
}

// Lookup returns the Driver registered under name, or (nil, false).
func Lookup(name string) (Driver, bool) {
	d, ok := registry[name]
	return d, ok
}

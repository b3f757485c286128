// Package errkind gives errors across the driver surface a concrete, typed
// taxonomy so callers can errors.Is/errors.As instead of string-matching
// driver messages. Every driver wraps its underlying error with New, which
// attributes a Kind and the driver name and keeps the original error
// reachable through Unwrap, across several error surfaces (connection,
// query, data, transaction, client) rather than just one.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one leaf of the error taxonomy.
type Kind string

const (
	// Protocol errors (JSON-RPC surface only; see rpcshape).
	ProtocolParseError     Kind = "protocol.parse_error"
	ProtocolInvalidRequest Kind = "protocol.invalid_request"
	ProtocolMethodNotFound Kind = "protocol.method_not_found"
	ProtocolInvalidParams  Kind = "protocol.invalid_params"

	// Connection errors.
	ConnectionFailed       Kind = "connection.failed"
	ConnectionAuthRequired Kind = "connection.auth_required"
	ConnectionAuthFailed   Kind = "connection.auth_failed"
	ConnectionLost         Kind = "connection.lost"
	ConnectionClosed       Kind = "connection.closed"
	ConnectionInvalidID    Kind = "connection.invalid_id"

	// Query errors.
	QueryFailed    Kind = "query.failed"
	QueryCancelled Kind = "query.cancelled"
	QueryTimedOut  Kind = "query.timed_out"
	QuerySyntax    Kind = "query.syntax"

	// Data errors.
	DataTableNotFound       Kind = "data.table_not_found"
	DataColumnNotFound      Kind = "data.column_not_found"
	DataRowNotFound         Kind = "data.row_not_found"
	DataConstraintViolation Kind = "data.constraint_violation"
	DataTypeMismatch        Kind = "data.type_mismatch"

	// Transaction errors.
	TransactionFailed   Kind = "transaction.failed"
	TransactionDeadlock Kind = "transaction.deadlock"

	// Client/infra errors.
	ClientPipeError          Kind = "client.pipe_error"
	ClientRequestTimedOut    Kind = "client.request_timed_out"
	ClientOutOfMemory        Kind = "client.out_of_memory"
	ClientTooManyConnections Kind = "client.too_many_connections"
	ClientResultTooLarge     Kind = "client.result_too_large"
)

// Error attributes a Kind and a driver/component name to an underlying
// error, the way each driver adapter wraps a raw driver error with a
// human-readable message before it reaches the caller — never a raw pointer
// to backend memory, and in Go's case, never a bare unattributed error.
type Error struct {
	Kind   Kind
	Driver string // "sqlite", "postgres", "mysql", or "" if not driver-specific
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Driver != "" {
		return fmt.Sprintf("%s: %s: %s", e.Driver, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, errkind.Kind) style matching via a sentinel
// wrapper: errors.Is(err, errkind.New(Kind, "", nil)) compares Kind only.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds an Error attributing kind/driver/message to err.
func New(kind Kind, driver string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Driver: driver, Msg: msg, Err: err}
}

// Wrap is New but for call sites that already have a formatted message and
// just want to attach a Kind/driver, the way
// database/mysql/database.go's style of fmt.Errorf("...: %w", err) does,
// extended with taxonomy.
func Wrap(kind Kind, driver, msg string, err error) *Error {
	return &Error{Kind: kind, Driver: driver, Msg: msg, Err: err}
}

// Sentinel returns a zero-payload *Error of the given Kind, suitable as the
// `target` argument to errors.Is.
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// OfKind reports whether err (or anything it wraps) is an *Error of kind.
func OfKind(err error, kind Kind) bool {
	return errors.Is(err, Sentinel(kind))
}

// Package history implements the per-connection query history log: an
// append-only record of every statement run against a connection, capped at
// a configurable size with oldest-entry eviction, optionally persisted to
// disk.
//
// A small mutex-guarded struct, JSON for the durable form, errors wrapped
// with fmt.Errorf, in keeping with the rest of this module's ambient style.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EntryType classifies a logged statement by its leading keyword.
type EntryType uint8

const (
	TypeQuery EntryType = iota
	TypeSelect
	TypeUpdate
	TypeDelete
	TypeInsert
	TypeDDL
)

func (t EntryType) String() string {
	switch t {
	case TypeSelect:
		return "SELECT"
	case TypeUpdate:
		return "UPDATE"
	case TypeDelete:
		return "DELETE"
	case TypeInsert:
		return "INSERT"
	case TypeDDL:
		return "DDL"
	default:
		return "QUERY"
	}
}

// ddlKeywords are the leading keywords classified as schema-changing.
var ddlKeywords = map[string]bool{
	"CREATE":   true,
	"ALTER":    true,
	"DROP":     true,
	"TRUNCATE": true,
	"RENAME":   true,
}

// ClassifyType detects an EntryType from sql's leading keyword,
// case-insensitively; anything not recognized as SELECT/INSERT/UPDATE/
// DELETE/DDL falls back to TypeQuery.
func ClassifyType(sql string) EntryType {
	word := leadingWord(sql)
	switch word {
	case "SELECT":
		return TypeSelect
	case "INSERT":
		return TypeInsert
	case "UPDATE":
		return TypeUpdate
	case "DELETE":
		return TypeDelete
	}
	if ddlKeywords[word] {
		return TypeDDL
	}
	return TypeQuery
}

func leadingWord(sql string) string {
	s := strings.TrimSpace(sql)
	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

// Entry is one logged statement.
type Entry struct {
	SQL       string    `json:"sql"`
	Timestamp time.Time `json:"timestamp"`
	Type      EntryType `json:"type"`
}

// MarshalJSON emits Type by name rather than its numeric value, so a
// history file on disk reads as the {QUERY,SELECT,...} vocabulary rather
// than opaque integers.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias struct {
		SQL       string    `json:"sql"`
		Timestamp time.Time `json:"timestamp"`
		Type      string    `json:"type"`
	}
	return json.Marshal(alias{SQL: e.SQL, Timestamp: e.Timestamp, Type: e.Type.String()})
}

// UnmarshalJSON reverses MarshalJSON, tolerating an unrecognized type name
// by falling back to TypeQuery rather than failing the whole entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var alias struct {
		SQL       string    `json:"sql"`
		Timestamp time.Time `json:"timestamp"`
		Type      string    `json:"type"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	e.SQL = alias.SQL
	e.Timestamp = alias.Timestamp
	switch strings.ToUpper(alias.Type) {
	case "SELECT":
		e.Type = TypeSelect
	case "UPDATE":
		e.Type = TypeUpdate
	case "DELETE":
		e.Type = TypeDelete
	case "INSERT":
		e.Type = TypeInsert
	case "DDL":
		e.Type = TypeDDL
	default:
		e.Type = TypeQuery
	}
	return nil
}

// DefaultLimit is a connection's history size cap absent an override.
const DefaultLimit = 500

// Log is one connection's history: a capped, append-only ring kept in
// entry order, oldest first.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewLog returns an empty log capped at limit entries, or DefaultLimit if
// limit <= 0.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{limit: limit}
}

// Append records sql at timestamp ts, evicting the oldest entry first if
// the log is already at its limit.
func (l *Log) Append(sql string, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{SQL: sql, Timestamp: ts, Type: ClassifyType(sql)})
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = l.entries[over:]
	}
}

// Entries returns a copy of the log's current contents, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of entries currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// SetLimit changes the cap, immediately evicting from the front if the log
// is already over the new limit.
func (l *Log) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = l.entries[over:]
	}
}

// FilePath returns the persistent-mode path for connID under dataDir:
// <data_dir>/history/<connection_id>.json.
func FilePath(dataDir, connID string) string {
	return filepath.Join(dataDir, "history", connID+".json")
}

// Save writes the log to its persistent-mode file, creating the history
// directory and setting mode 0600.
func (l *Log) Save(dataDir, connID string) error {
	path := FilePath(dataDir, connID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("history: create directory: %w", err)
	}
	data, err := json.MarshalIndent(l.Entries(), "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Load reads a log previously written by Save, or returns an empty log if
// none exists yet.
func Load(dataDir, connID string, limit int) (*Log, error) {
	path := FilePath(dataDir, connID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLog(limit), nil
		}
		return nil, fmt.Errorf("history: read: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("history: parse: %w", err)
	}
	l := NewLog(limit)
	l.entries = entries
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = l.entries[over:]
	}
	return l, nil
}

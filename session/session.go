// Package session persists and restores the workspace/tab tree: a JSON
// file tolerant of missing or mistyped fields, referencing connections by
// UUID rather than by raw connection string so a session file never
// carries a password.
//
// Field-by-field default substitution rather than whole-document rejection
// on a single bad value, and JSON via encoding/json for every on-disk
// document this module owns.
package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lace-db/lace/value"
)

// MaxFileSize caps how much of a session file Load will read; a file
// beyond this is treated as corrupt rather than parsed.
const MaxFileSize = 10 << 20 // 10 MiB

// FileVersion is written to every session file Save produces and accepted
// (but not required to match) by Load, which tolerates older or missing
// version fields.
const FileVersion = 1

// Settings is the subset of UI preference state carried in the session
// file alongside the workspace tree.
type Settings struct {
	HeaderVisible bool `json:"header_visible"`
	StatusVisible bool `json:"status_visible"`
	PageSize      int  `json:"page_size"`

	// RestoreCursorPosition gates whether Save persists each tab's
	// cursor/scroll position and inner-panel cursors (query_cursor,
	// query_scroll_line, query_scroll_col): when false those fields are
	// written as zero regardless of the live tab's state. Panel visibility
	// flags in TabDoc.UI are never gated by this and always persist.
	RestoreCursorPosition bool `json:"restore_cursor_position,omitempty"`
}

// SortDoc is the on-disk form of a value.SortEntry: the column is stored by
// name, not index, so a schema change between save and restore can be
// detected and the entry dropped rather than silently pointing at the wrong
// column.
type SortDoc struct {
	Column    string `json:"column"`
	Direction int    `json:"direction"`
}

// FilterDoc is the on-disk form of a value.Filter, column stored by name.
type FilterDoc struct {
	Column   string `json:"column"`
	Operator int    `json:"operator"`
	Value    string `json:"value"`
	Value2   string `json:"value2,omitempty"`
}

// TabUIDoc is the on-disk form of a workspace.TabUI.
type TabUIDoc struct {
	SidebarVisible bool `json:"sidebar_visible,omitempty"`
	DetailVisible  bool `json:"detail_visible,omitempty"`
	Focus          int  `json:"focus,omitempty"`
}

// TabDoc is the on-disk form of a workspace.Tab. Type selects which of the
// remaining fields are meaningful, mirroring workspace.Kind.
type TabDoc struct {
	Type         string      `json:"type"`
	ConnectionID string      `json:"connection_id"`
	TableName    string      `json:"table_name,omitempty"`
	CursorRow    int64       `json:"cursor_row"`
	CursorCol    int         `json:"cursor_col"`
	ScrollRow    int64       `json:"scroll_row"`
	ScrollCol    int         `json:"scroll_col"`
	Sort         []SortDoc   `json:"sort,omitempty"`
	Filters      []FilterDoc `json:"filters,omitempty"`

	QueryText       string `json:"query_text,omitempty"`
	QueryCursor     int    `json:"query_cursor,omitempty"`
	QueryScrollLine int    `json:"query_scroll_line,omitempty"`
	QueryScrollCol  int    `json:"query_scroll_col,omitempty"`

	ConnString string `json:"conn_string,omitempty"`

	UI TabUIDoc `json:"ui,omitempty"`
}

// Tab type discriminators, matching workspace.Kind's three variants.
const (
	TabTypeConnection = "CONNECTION"
	TabTypeTable      = "TABLE"
	TabTypeQuery      = "QUERY"
)

// WorkspaceDoc is the on-disk form of a workspace.Workspace.
type WorkspaceDoc struct {
	Name       string   `json:"name"`
	CurrentTab int      `json:"current_tab"`
	Tabs       []TabDoc `json:"tabs"`
}

// File is the full on-disk session document.
type File struct {
	Version          int            `json:"version"`
	Settings         Settings       `json:"settings"`
	Workspaces       []WorkspaceDoc `json:"workspaces"`
	CurrentWorkspace int            `json:"current_workspace"`
}

// sortDirectionOf/filterOperatorOf convert the on-disk int back to the
// value package's enums; both are simple range clamps rather than a map, as
// the wire and in-memory orderings are defined to match.
func sortDirectionOf(n int) value.SortDirection {
	if n == int(value.SortDesc) {
		return value.SortDesc
	}
	return value.SortAsc
}

func filterOperatorOf(n int) value.Operator {
	if n < 0 || n > int(value.OpRAW) {
		return value.OpEQ
	}
	return value.Operator(n)
}

// withCursorsStripped returns a copy of f with every tab's cursor/scroll
// position and inner-panel cursors zeroed, leaving UI visibility flags,
// sort/filter entries, and everything else untouched. Used by Save when
// Settings.RestoreCursorPosition is false, so the caller's own in-memory
// model is never mutated by saving it.
func withCursorsStripped(f File) File {
	out := f
	out.Workspaces = make([]WorkspaceDoc, len(f.Workspaces))
	for wi, ws := range f.Workspaces {
		ws.Tabs = append([]TabDoc(nil), ws.Tabs...)
		for ti := range ws.Tabs {
			ws.Tabs[ti].CursorRow = 0
			ws.Tabs[ti].CursorCol = 0
			ws.Tabs[ti].ScrollRow = 0
			ws.Tabs[ti].ScrollCol = 0
			ws.Tabs[ti].QueryCursor = 0
			ws.Tabs[ti].QueryScrollLine = 0
			ws.Tabs[ti].QueryScrollCol = 0
		}
		out.Workspaces[wi] = ws
	}
	return out
}

// Save writes f to path atomically (write to a sibling temp file, then
// rename) with mode 0600, since the file may embed query text a user
// considers sensitive even though it never holds a password. anyActive
// reports whether at least one connection is currently open; a session
// with nothing live to save is removed rather than written, so a stale
// file is never mistaken for a usable one.
func Save(path string, f File, anyActive bool) error {
	if !anyActive {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("session: remove stale file: %w", err)
		}
		return nil
	}

	f.Version = FileVersion
	if !f.Settings.RestoreCursorPosition {
		f = withCursorsStripped(f)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("session: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("session: rename into place: %w", err)
	}
	return nil
}

// Load reads and tolerantly parses the session file at path. A missing file
// returns a zero File and no error: absence means "nothing to restore", not
// corruption. A file larger than MaxFileSize is rejected outright; anything
// smaller that fails to parse as a JSON object at all is also rejected, but
// individual malformed fields within an otherwise valid document are
// replaced with their zero value rather than failing the whole load.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("session: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return File{}, fmt.Errorf("session: stat: %w", err)
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("session: file exceeds %d bytes", MaxFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return File{}, fmt.Errorf("session: read: %w", err)
	}

	return parseTolerant(data)
}

// parseTolerant decodes the top-level and per-workspace fields one by one,
// so a corrupt value there (a string where a number was expected) degrades
// only that field to its zero value instead of discarding the whole
// session. Each tab is decoded as a whole: a tab with any mistyped field is
// dropped, and its siblings still load. An unknown tab type is kept here.
func parseTolerant(data []byte) (File, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("session: not a JSON object: %w", err)
	}

	var out File
	if v, ok := raw["version"]; ok {
		_ = json.Unmarshal(v, &out.Version)
	}
	if v, ok := raw["settings"]; ok {
		_ = json.Unmarshal(v, &out.Settings)
	}
	if v, ok := raw["current_workspace"]; ok {
		_ = json.Unmarshal(v, &out.CurrentWorkspace)
	}
	if v, ok := raw["workspaces"]; ok {
		var rawWorkspaces []json.RawMessage
		if err := json.Unmarshal(v, &rawWorkspaces); err == nil {
			for _, rw := range rawWorkspaces {
				out.Workspaces = append(out.Workspaces, parseWorkspaceDoc(rw))
			}
		}
	}
	return out, nil
}

func parseWorkspaceDoc(data json.RawMessage) WorkspaceDoc {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return WorkspaceDoc{}
	}
	var w WorkspaceDoc
	if v, ok := raw["name"]; ok {
		_ = json.Unmarshal(v, &w.Name)
	}
	if v, ok := raw["current_tab"]; ok {
		_ = json.Unmarshal(v, &w.CurrentTab)
	}
	if v, ok := raw["tabs"]; ok {
		var rawTabs []json.RawMessage
		if err := json.Unmarshal(v, &rawTabs); err == nil {
			for _, rt := range rawTabs {
				var t TabDoc
				if err := json.Unmarshal(rt, &t); err == nil {
					w.Tabs = append(w.Tabs, t)
				}
				// A tab that doesn't even parse as the TabDoc shape is
				// dropped; its siblings still restore.
			}
		}
	}
	return w
}

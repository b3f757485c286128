// Package workspace holds the user-visible tab/workspace tree: table tabs,
// query tabs, and connection tabs, grouped into workspaces with
// cursor/scroll/filter/sort state. It never touches a driver directly — a
// Tab's connection is an index into whatever registry the caller
// maintains, so tabs hold a connection index rather than a pointer:
// connections can outlive, and be shared by, multiple tabs.
//
// A Tab never outlives the Workspace that holds it, and neither a Tab nor
// its Workspace owns the Connection it references.
package workspace

import (
	"github.com/lace-db/lace/paging"
	"github.com/lace-db/lace/value"
)

// MaxWorkspaces bounds the number of concurrently open workspaces by
// default (16), configurable by the caller via Model.MaxWorkspaces.
const MaxWorkspaces = 16

// Kind discriminates a Tab's active variant.
type Kind uint8

const (
	KindConnection Kind = iota
	KindTable
	KindQuery
)

// PanelFocus selects which UI panel currently holds keyboard focus within a
// tab.
type PanelFocus uint8

const (
	FocusGrid PanelFocus = iota
	FocusSidebar
	FocusQueryEditor
)

// TabUI holds a tab's panel chrome state, independent of the data it
// displays: which auxiliary panels are visible and which has focus. A tab
// missing this state (freshly created, or restored from an older session
// file) defaults to both auxiliary panels hidden and the grid focused, the
// zero value.
type TabUI struct {
	SidebarVisible bool
	DetailVisible  bool
	Focus          PanelFocus
}

// Tab is a discriminated union over {Connection, Table, Query}. Only the
// fields relevant to Kind are meaningful; the rest sit at their zero value.
type Tab struct {
	Kind         Kind
	ConnectionID int

	// Table tab fields.
	TableName     string
	Schema        value.TableSchema
	HasSchema     bool
	Filters       []value.Filter
	SortEntries   []value.SortEntry
	Window        paging.Window
	ScrollRow     int64
	CursorCol     int
	ScrollCol     int
	ColumnWidths  []int
	TableError    string
	HasTableError bool

	// Query tab fields.
	QueryText       string
	QueryCursor     int
	QueryScrollLine int
	QueryScrollCol  int
	QueryResults    value.ResultSet
	HasQueryResults bool
	QueryError      string
	HasQueryError   bool
	Affected        int64
	SourceTable     string
	HasSourceTable  bool

	// Connection tab fields.
	ConnString string

	// UI applies to every tab kind.
	UI TabUI
}

// Workspace is an ordered collection of tabs sharing a tab strip.
type Workspace struct {
	Name       string
	Tabs       []*Tab
	CurrentTab int
}

// Model is the whole application's workspace tree.
type Model struct {
	Workspaces       []*Workspace
	CurrentWorkspace int
	MaxWorkspaces    int
}

// NewModel returns an empty model with MaxWorkspaces defaulted.
func NewModel() *Model {
	return &Model{MaxWorkspaces: MaxWorkspaces}
}

func (m *Model) current() *Workspace {
	if m.CurrentWorkspace < 0 || m.CurrentWorkspace >= len(m.Workspaces) {
		return nil
	}
	return m.Workspaces[m.CurrentWorkspace]
}

// NewWorkspace appends a workspace named name and switches to it, or does
// nothing and returns false once MaxWorkspaces is reached.
func (m *Model) NewWorkspace(name string) (*Workspace, bool) {
	max := m.MaxWorkspaces
	if max <= 0 {
		max = MaxWorkspaces
	}
	if len(m.Workspaces) >= max {
		return nil, false
	}
	ws := &Workspace{Name: name}
	m.Workspaces = append(m.Workspaces, ws)
	m.CurrentWorkspace = len(m.Workspaces) - 1
	return ws, true
}

// CloseWorkspace removes the workspace at idx, shifting the array and
// reclamping CurrentWorkspace.
func (m *Model) CloseWorkspace(idx int) {
	if idx < 0 || idx >= len(m.Workspaces) {
		return
	}
	m.Workspaces = append(m.Workspaces[:idx], m.Workspaces[idx+1:]...)
	m.reclampWorkspace()
}

func (m *Model) reclampWorkspace() {
	if len(m.Workspaces) == 0 {
		m.CurrentWorkspace = 0
		return
	}
	if m.CurrentWorkspace >= len(m.Workspaces) {
		m.CurrentWorkspace = len(m.Workspaces) - 1
	}
	if m.CurrentWorkspace < 0 {
		m.CurrentWorkspace = 0
	}
}

// CreateTableTab appends a table tab to the current workspace bound to
// connIdx under the resolved table name, and switches to it. tableIdx is
// not stored; the tab identifies its table by name only.
func (m *Model) CreateTableTab(connIdx, tableIdx int, name string) *Tab {
	ws := m.current()
	if ws == nil {
		return nil
	}
	t := &Tab{Kind: KindTable, ConnectionID: connIdx, TableName: name}
	ws.Tabs = append(ws.Tabs, t)
	ws.CurrentTab = len(ws.Tabs) - 1
	return t
}

// CreateQueryTab appends an empty query tab bound to connIdx.
func (m *Model) CreateQueryTab(connIdx int) *Tab {
	ws := m.current()
	if ws == nil {
		return nil
	}
	t := &Tab{Kind: KindQuery, ConnectionID: connIdx}
	ws.Tabs = append(ws.Tabs, t)
	ws.CurrentTab = len(ws.Tabs) - 1
	return t
}

// CreateConnectionTab appends a connection-management tab (the redacted
// connstr is kept for display; credentials never round-trip through it).
func (m *Model) CreateConnectionTab(connIdx int, connstr string) *Tab {
	ws := m.current()
	if ws == nil {
		return nil
	}
	t := &Tab{Kind: KindConnection, ConnectionID: connIdx, ConnString: connstr}
	ws.Tabs = append(ws.Tabs, t)
	ws.CurrentTab = len(ws.Tabs) - 1
	return t
}

// CloseTab removes the tab at idx from the current workspace and reclamps
// CurrentTab.
func (m *Model) CloseTab(idx int) {
	ws := m.current()
	if ws == nil || idx < 0 || idx >= len(ws.Tabs) {
		return
	}
	ws.Tabs = append(ws.Tabs[:idx], ws.Tabs[idx+1:]...)
	if len(ws.Tabs) == 0 {
		ws.CurrentTab = 0
		return
	}
	if ws.CurrentTab >= len(ws.Tabs) {
		ws.CurrentTab = len(ws.Tabs) - 1
	}
}

// SwitchTab sets the current workspace's active tab to idx, clamped to the
// valid range.
func (m *Model) SwitchTab(idx int) {
	ws := m.current()
	if ws == nil || len(ws.Tabs) == 0 {
		return
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(ws.Tabs) {
		idx = len(ws.Tabs) - 1
	}
	ws.CurrentTab = idx
}

// SetTableError marks a table tab as unable to render: a tab whose
// connection was destroyed or whose table vanished shows only the error,
// never stale data.
func (t *Tab) SetTableError(msg string) {
	t.HasTableError = true
	t.TableError = msg
	t.Window = paging.Window{}
	t.HasSchema = false
}

// MoveCursor shifts the table tab's cursor by (rowD, colD), clamping to the
// loaded window and schema column count, and scrolls just enough to keep
// the cursor visible within visibleRows.
func (t *Tab) MoveCursor(rowD, colD int64, visibleRows int64) {
	maxRow := t.Window.LoadedCount() - 1
	t.Window.CursorRow = clampRow(t.Window.CursorRow+rowD, maxRow)

	maxCol := int64(0)
	if t.HasSchema {
		maxCol = int64(t.Schema.ColumnCount()) - 1
	}
	t.CursorCol = int(clampRow(int64(t.CursorCol)+colD, maxCol))

	t.adjustScroll(visibleRows)
}

// adjustScroll keeps ScrollRow (an offset into the loaded window, same
// units as CursorRow) such that CursorRow stays within [ScrollRow,
// ScrollRow+visibleRows).
func (t *Tab) adjustScroll(visibleRows int64) {
	if visibleRows <= 0 {
		return
	}
	if t.Window.CursorRow < t.ScrollRow {
		t.ScrollRow = t.Window.CursorRow
	} else if t.Window.CursorRow >= t.ScrollRow+visibleRows {
		t.ScrollRow = t.Window.CursorRow - visibleRows + 1
	}
}

func clampRow(v, max int64) int64 {
	if max < 0 {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// PageUp moves the cursor up by visibleRows rows.
func (t *Tab) PageUp(visibleRows int64) { t.MoveCursor(-visibleRows, 0, visibleRows) }

// PageDown moves the cursor down by visibleRows rows.
func (t *Tab) PageDown(visibleRows int64) { t.MoveCursor(visibleRows, 0, visibleRows) }

// Home moves the cursor to the first loaded row.
func (t *Tab) Home(visibleRows int64) {
	t.Window.CursorRow = 0
	t.adjustScroll(visibleRows)
}

// End moves the cursor to the last loaded row.
func (t *Tab) End(visibleRows int64) {
	t.Window.CursorRow = clampRow(t.Window.LoadedCount()-1, t.Window.LoadedCount()-1)
	t.adjustScroll(visibleRows)
}

// ColumnFirst moves the cursor to the first column.
func (t *Tab) ColumnFirst() { t.CursorCol = 0 }

// ColumnLast moves the cursor to the last column.
func (t *Tab) ColumnLast() {
	if t.HasSchema {
		t.CursorCol = t.Schema.ColumnCount() - 1
	}
}

package workspace

import (
	"testing"

	"github.com/lace-db/lace/value"
)

func TestCreateTabsSwitchesCurrent(t *testing.T) {
	m := NewModel()
	m.NewWorkspace("main")

	m.CreateTableTab(0, 2, "users")
	if ws := m.current(); ws.CurrentTab != 0 {
		t.Fatalf("CurrentTab = %d, want 0", ws.CurrentTab)
	}
	m.CreateQueryTab(0)
	if ws := m.current(); ws.CurrentTab != 1 || len(ws.Tabs) != 2 {
		t.Fatalf("expected 2 tabs, current=1, got %d tabs current=%d", len(ws.Tabs), ws.CurrentTab)
	}
}

func TestCloseTabReclamps(t *testing.T) {
	m := NewModel()
	m.NewWorkspace("main")
	m.CreateTableTab(0, 0, "a")
	m.CreateTableTab(0, 1, "b")
	m.CreateTableTab(0, 2, "c")
	m.SwitchTab(2)

	m.CloseTab(2)
	ws := m.current()
	if len(ws.Tabs) != 2 {
		t.Fatalf("expected 2 tabs after close, got %d", len(ws.Tabs))
	}
	if ws.CurrentTab != 1 {
		t.Fatalf("CurrentTab = %d, want 1 (reclamped)", ws.CurrentTab)
	}
}

func TestSwitchTabClamps(t *testing.T) {
	m := NewModel()
	m.NewWorkspace("main")
	m.CreateTableTab(0, 0, "a")
	m.CreateTableTab(0, 1, "b")

	m.SwitchTab(99)
	if ws := m.current(); ws.CurrentTab != 1 {
		t.Fatalf("CurrentTab = %d, want clamped to 1", ws.CurrentTab)
	}
	m.SwitchTab(-5)
	if ws := m.current(); ws.CurrentTab != 0 {
		t.Fatalf("CurrentTab = %d, want clamped to 0", ws.CurrentTab)
	}
}

func TestCloseWorkspaceReclamps(t *testing.T) {
	m := NewModel()
	m.NewWorkspace("a")
	m.NewWorkspace("b")
	m.NewWorkspace("c")
	m.CurrentWorkspace = 2

	m.CloseWorkspace(2)
	if len(m.Workspaces) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(m.Workspaces))
	}
	if m.CurrentWorkspace != 1 {
		t.Fatalf("CurrentWorkspace = %d, want 1", m.CurrentWorkspace)
	}
}

func TestNewWorkspaceRespectsCap(t *testing.T) {
	m := NewModel()
	m.MaxWorkspaces = 2
	if _, ok := m.NewWorkspace("a"); !ok {
		t.Fatal("expected first workspace to succeed")
	}
	if _, ok := m.NewWorkspace("b"); !ok {
		t.Fatal("expected second workspace to succeed")
	}
	if _, ok := m.NewWorkspace("c"); ok {
		t.Fatal("expected third workspace to be rejected at cap")
	}
}

func tabWithSchema(cols int) *Tab {
	schema := value.TableSchema{}
	for i := 0; i < cols; i++ {
		schema.Columns = append(schema.Columns, value.Column{Name: "c"})
	}
	t := &Tab{Kind: KindTable, Schema: schema, HasSchema: true}
	t.Window.Rows = make([]value.Row, 20)
	return t
}

func TestMoveCursorClampsToLoadedCountAndColumns(t *testing.T) {
	tab := tabWithSchema(3)

	tab.MoveCursor(100, 0, 5)
	if tab.Window.CursorRow != 19 {
		t.Fatalf("CursorRow = %d, want clamped to 19", tab.Window.CursorRow)
	}

	tab.MoveCursor(0, 100, 5)
	if tab.CursorCol != 2 {
		t.Fatalf("CursorCol = %d, want clamped to 2", tab.CursorCol)
	}

	tab.MoveCursor(-1000, -1000, 5)
	if tab.Window.CursorRow != 0 || tab.CursorCol != 0 {
		t.Fatalf("expected clamp to 0,0 got %d,%d", tab.Window.CursorRow, tab.CursorCol)
	}
}

func TestMoveCursorAdjustsScrollToKeepCursorVisible(t *testing.T) {
	tab := tabWithSchema(1)

	tab.MoveCursor(8, 0, 5) // cursor row 8, visibleRows 5
	if tab.ScrollRow != 4 {
		t.Fatalf("ScrollRow = %d, want 4 (8 - 5 + 1)", tab.ScrollRow)
	}

	tab.MoveCursor(-6, 0, 5) // cursor row 2
	if tab.ScrollRow != 2 {
		t.Fatalf("ScrollRow = %d, want 2 (cursor scrolled above view)", tab.ScrollRow)
	}
}

func TestHomeEndColumnFirstLast(t *testing.T) {
	tab := tabWithSchema(4)
	tab.Window.CursorRow = 10
	tab.CursorCol = 2

	tab.Home(5)
	if tab.Window.CursorRow != 0 {
		t.Fatalf("Home: CursorRow = %d, want 0", tab.Window.CursorRow)
	}

	tab.End(5)
	if tab.Window.CursorRow != 19 {
		t.Fatalf("End: CursorRow = %d, want 19", tab.Window.CursorRow)
	}

	tab.ColumnFirst()
	if tab.CursorCol != 0 {
		t.Fatalf("ColumnFirst: CursorCol = %d, want 0", tab.CursorCol)
	}
	tab.ColumnLast()
	if tab.CursorCol != 3 {
		t.Fatalf("ColumnLast: CursorCol = %d, want 3", tab.CursorCol)
	}
}

func TestSetTableErrorClearsData(t *testing.T) {
	tab := tabWithSchema(2)
	tab.SetTableError("connection lost")
	if !tab.HasTableError || tab.TableError != "connection lost" {
		t.Fatal("expected table error set")
	}
	if tab.Window.LoadedCount() != 0 || tab.HasSchema {
		t.Fatal("expected data and schema cleared on table error")
	}
}

package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lace-db/lace/connstr"
	"github.com/lace-db/lace/drv"
	"github.com/lace-db/lace/escaper"
	"github.com/lace-db/lace/filter"
	"github.com/lace-db/lace/paging"
	"github.com/lace-db/lace/value"
	"github.com/lace-db/lace/workspace"
)

// maxConcurrentReconnects caps how many tabs reconnect at once, the same
// fan-out-with-a-ceiling shape as an errgroup.Group with SetLimit.
const maxConcurrentReconnects = 8

// Connect opens a connection for cs, or returns an error the restore
// algorithm will surface per-tab without aborting the rest of the restore.
type Connect func(ctx context.Context, cs connstr.ConnString) (drv.Conn, error)

// AuthPrompt is invoked when Connect fails in a way the caller judges to be
// an authentication failure; it returns an updated ConnString to retry with,
// or ok=false if the user cancelled the prompt.
type AuthPrompt func(cs connstr.ConnString, cause error) (updated connstr.ConnString, ok bool)

// IsAuthFailure classifies a Connect error as worth retrying via AuthPrompt
// rather than failing the tab outright. The caller supplies this since only
// it knows which errkind values its drivers attribute auth failures to.
type IsAuthFailure func(err error) bool

// OpenConnection is one entry in the pool Restore builds: a single Conn may
// back more than one tab. Tabs with identical connection strings match the
// same pool entry, deduplicated by the redacted connstr rather than the
// saved UUID, since two UUIDs can point at credentials that resolve to the
// same target.
type OpenConnection struct {
	ID   string
	Conn drv.Conn
}

// Result is what Restore returns: a populated workspace.Model whose tabs'
// ConnectionID fields index into Connections, plus any per-tab failures.
// Restore reports no overall error: a restore in which nothing came back
// shows as a Model with no workspaces. Individual tab failures are
// reported in TabErrors, not fatal.
type Result struct {
	Model       *workspace.Model
	Connections []OpenConnection
	TabErrors   []error
}

// dialectOf maps a connstr.Driver to the escaper dialect used to build the
// row-count query issued during recentring.
func dialectOf(d connstr.Driver) escaper.Dialect {
	switch d {
	case connstr.DriverPostgres:
		return escaper.DialectPostgres
	case connstr.DriverMySQL:
		return escaper.DialectMySQL
	default:
		return escaper.DialectSQLite
	}
}

// connCounter adapts a drv.Conn into paging.RowCounter/paging.PageLoader by
// issuing COUNT(*) and the conn's own QueryPage, since drv.Conn exposes
// EstimateRowCount directly but leaves exact counting to a SQL string the
// same way every driver's own internals build one. paging stays
// driver-agnostic; this is the seam that keeps it that way.
type connCounter struct {
	conn    drv.Conn
	dialect escaper.Dialect
}

func (c connCounter) EstimateRowCount(ctx context.Context, table string) (int64, bool) {
	return c.conn.EstimateRowCount(ctx, table)
}

func (c connCounter) CountRows(ctx context.Context, table, where string, _ []any) (int64, error) {
	sql := "SELECT COUNT(*) FROM " + escaper.QualifiedTable(c.dialect, table)
	if where != "" {
		sql += " WHERE " + where
	}
	rs, err := c.conn.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
		return 0, fmt.Errorf("session: COUNT(*) returned no rows")
	}
	return rs.Rows[0][0].Int, nil
}

func (c connCounter) LoadPage(ctx context.Context, table, where string, _ []any, orderBy string, desc bool, offset, limit int64) ([]value.Row, error) {
	// The driver's QueryPage doesn't take a WHERE fragment; filtered paging
	// is layered on by issuing the equivalent SELECT directly when a filter
	// is active.
	if where == "" {
		rs, err := c.conn.QueryPage(ctx, table, offset, limit, orderBy, desc)
		if err != nil {
			return nil, err
		}
		return rs.Rows, nil
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	sql := "SELECT * FROM " + escaper.QualifiedTable(c.dialect, table) + " WHERE " + where
	if orderBy != "" {
		sql += " ORDER BY " + escaper.Identifier(c.dialect, orderBy) + " " + dir
	}
	sql += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	rs, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return rs.Rows, nil
}

// Restore rebuilds a workspace.Model from f, reconnecting every distinct
// connection concurrently. savedConns resolves a
// session file's connection_id to the ConnString to dial; a tab whose
// connection_id is absent from savedConns fails that tab only.
func Restore(ctx context.Context, f File, savedConns map[string]connstr.ConnString, connect Connect, isAuthFailure IsAuthFailure, promptAuth AuthPrompt) Result {
	model := workspace.NewModel()
	var connections []OpenConnection
	connIndexByKey := map[string]int{} // keyed by redacted connstr, not UUID
	var mu sync.Mutex
	var tabErrors []error

	resolve := func(ctx context.Context, connID string) (int, drv.Conn, connstr.Driver, error) {
		cs, ok := savedConns[connID]
		if !ok {
			return -1, nil, "", fmt.Errorf("session: unknown connection %s", connID)
		}
		key := connstr.Build(cs, false)

		mu.Lock()
		if idx, ok := connIndexByKey[key]; ok {
			conn := connections[idx].Conn
			mu.Unlock()
			return idx, conn, cs.Driver, nil
		}
		mu.Unlock()

		conn, err := connect(ctx, cs)
		if err != nil && isAuthFailure != nil && isAuthFailure(err) && promptAuth != nil {
			updated, ok := promptAuth(cs, err)
			if ok {
				conn, err = connect(ctx, updated)
			}
		}
		if err != nil {
			return -1, nil, "", fmt.Errorf("session: reconnect %s: %w", connID, err)
		}

		mu.Lock()
		defer mu.Unlock()
		if idx, ok := connIndexByKey[key]; ok {
			conn.Disconnect()
			return idx, connections[idx].Conn, cs.Driver, nil
		}
		idx := len(connections)
		connections = append(connections, OpenConnection{ID: connID, Conn: conn})
		connIndexByKey[key] = idx
		return idx, conn, cs.Driver, nil
	}

	for _, wsDoc := range f.Workspaces {
		ws, ok := model.NewWorkspace(wsDoc.Name)
		if !ok {
			break
		}

		restored := make([]*workspace.Tab, len(wsDoc.Tabs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentReconnects)

		for i, tabDoc := range wsDoc.Tabs {
			i, tabDoc := i, tabDoc
			g.Go(func() error {
				tab, err := restoreTab(gctx, tabDoc, resolve)
				if err != nil {
					mu.Lock()
					tabErrors = append(tabErrors, err)
					mu.Unlock()
					return nil // one tab's failure never aborts its siblings
				}
				restored[i] = tab
				return nil
			})
		}
		// errgroup's Go-func never returns a non-nil error above, so Wait
		// only ever reports ctx cancellation.
		_ = g.Wait()

		for _, tab := range restored {
			if tab != nil {
				ws.Tabs = append(ws.Tabs, tab)
			}
		}
		if len(ws.Tabs) == 0 {
			model.CloseWorkspace(len(model.Workspaces) - 1)
			continue
		}
		ws.CurrentTab = clampInt(wsDoc.CurrentTab, len(ws.Tabs)-1)
	}
	model.CurrentWorkspace = clampInt(f.CurrentWorkspace, len(model.Workspaces)-1)

	return Result{Model: model, Connections: connections, TabErrors: tabErrors}
}

func clampInt(v, max int) int {
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

// restoreTab rebuilds one tab, reconnecting its owning connection and, for
// table tabs, resolving filter/sort column names against the live schema
// and recentring the cursor.
func restoreTab(ctx context.Context, doc TabDoc, resolve func(context.Context, string) (int, drv.Conn, connstr.Driver, error)) (*workspace.Tab, error) {
	connIdx, conn, driver, err := resolve(ctx, doc.ConnectionID)
	if err != nil {
		return nil, err
	}

	var t *workspace.Tab
	switch doc.Type {
	case TabTypeConnection:
		t = &workspace.Tab{Kind: workspace.KindConnection, ConnectionID: connIdx, ConnString: doc.ConnString}

	case TabTypeQuery:
		t = &workspace.Tab{
			Kind:            workspace.KindQuery,
			ConnectionID:    connIdx,
			QueryText:       doc.QueryText,
			QueryCursor:     doc.QueryCursor,
			QueryScrollLine: doc.QueryScrollLine,
			QueryScrollCol:  doc.QueryScrollCol,
		}

	case TabTypeTable:
		t, err = restoreTableTab(ctx, doc, connIdx, conn, dialectOf(driver))
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("session: unknown tab type %q", doc.Type)
	}

	t.UI = uiFromDoc(doc.UI)
	return t, nil
}

// uiFromDoc converts a TabUIDoc into the live workspace.TabUI it restores
// into, clamping an out-of-range stored focus value to the grid rather than
// letting it produce an unrecognised workspace.PanelFocus.
func uiFromDoc(doc TabUIDoc) workspace.TabUI {
	focus := workspace.FocusGrid
	if doc.Focus == int(workspace.FocusSidebar) || doc.Focus == int(workspace.FocusQueryEditor) {
		focus = workspace.PanelFocus(doc.Focus)
	}
	return workspace.TabUI{
		SidebarVisible: doc.SidebarVisible,
		DetailVisible:  doc.DetailVisible,
		Focus:          focus,
	}
}

// restoreTableTab finishes restoring a table tab once its connection is
// live: it fetches the current schema, resolves filter/sort columns by
// name (dropping any that no longer exist), counts rows, and recentres the
// window on the saved cursor.
func restoreTableTab(ctx context.Context, doc TabDoc, connIdx int, conn drv.Conn, dialect escaper.Dialect) (*workspace.Tab, error) {
	schema, err := conn.GetTableSchema(ctx, doc.TableName)
	if err != nil {
		t := &workspace.Tab{Kind: workspace.KindTable, ConnectionID: connIdx, TableName: doc.TableName}
		t.SetTableError(err.Error())
		return t, nil
	}

	t := &workspace.Tab{
		Kind:         workspace.KindTable,
		ConnectionID: connIdx,
		TableName:    doc.TableName,
		Schema:       schema,
		HasSchema:    true,
		CursorCol:    clampInt(doc.CursorCol, schema.ColumnCount()-1),
		ScrollCol:    doc.ScrollCol,
	}

	for _, sd := range doc.Sort {
		idx := schema.ColumnIndex(sd.Column)
		if idx < 0 {
			continue // column renamed or dropped since save: entry silently skipped
		}
		t.SortEntries = append(t.SortEntries, value.SortEntry{ColumnIndex: idx, Direction: sortDirectionOf(sd.Direction)})
	}
	for _, fd := range doc.Filters {
		idx := schema.ColumnIndex(fd.Column)
		if idx < 0 {
			continue
		}
		t.Filters = append(t.Filters, value.Filter{
			ColumnIndex: idx,
			Operator:    filterOperatorOf(fd.Operator),
			Value:       fd.Value,
			Value2:      fd.Value2,
		})
	}

	where, _ := filter.Compile(t.Filters, schema, dialect)
	counter := connCounter{conn: conn, dialect: dialect}
	orderBy := ""
	desc := false
	if len(t.SortEntries) > 0 {
		orderBy = schema.Columns[t.SortEntries[0].ColumnIndex].Name
		desc = t.SortEntries[0].Direction == value.SortDesc
	}

	window := paging.NewWindow(paging.DefaultPageSize)
	if err := window.Open(ctx, counter, counter, doc.TableName, where, nil, orderBy, desc, doc.CursorRow); err != nil {
		t.SetTableError(err.Error())
		return t, nil
	}
	t.Window = *window
	t.ScrollRow = clampScrollRow(doc.ScrollRow, window.LoadedCount())
	return t, nil
}

func clampScrollRow(v, loadedCount int64) int64 {
	if v < 0 {
		return 0
	}
	if loadedCount > 0 && v >= loadedCount {
		return loadedCount - 1
	}
	return v
}

// Package paging implements the offset/limit window manager: the sliding
// view a table tab keeps into a (possibly huge) result set, recentred on
// the cursor and trimmed so memory never grows unbounded.
//
// Never trust a single cheap estimate: a driver's reltuples-style estimate
// is only ever a starting point, promoted to an exact COUNT(*) below
// ExactCountThreshold so every driver's estimate feeds through one policy
// identically.
package paging

import (
	"context"

	"github.com/lace-db/lace/value"
)

// DefaultPageSize is the window's row count absent an explicit override.
const DefaultPageSize = 500

// ExactCountThreshold is the estimate ceiling below which an
// EstimateRowCount result is promoted to an exact COUNT(*).
const ExactCountThreshold = 1_000_000

// RowCounter is the subset of a driver connection paging needs to size a
// window: a cheap (possibly stale) estimate, and an always-exact filtered
// count.
type RowCounter interface {
	EstimateRowCount(ctx context.Context, table string) (int64, bool)
	CountRows(ctx context.Context, table, where string, args []any) (int64, error)
}

// PageLoader fetches one page of rows.
type PageLoader interface {
	LoadPage(ctx context.Context, table, where string, args []any, orderBy string, desc bool, offset, limit int64) ([]value.Row, error)
}

// Window is one table tab's loaded slice of a result set.
type Window struct {
	PageSize int64

	LoadedOffset        int64
	Rows                []value.Row
	TotalRows           int64 // filtered total, always exact
	UnfilteredTotal     int64 // whole-table count, possibly approximate
	RowCountApproximate bool

	// CursorRow is relative to LoadedOffset, clamped to [0, LoadedCount()).
	CursorRow int64
}

// NewWindow returns an empty window with the given page size, or
// DefaultPageSize if pageSize <= 0.
func NewWindow(pageSize int64) *Window {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Window{PageSize: pageSize}
}

// LoadedCount is the number of rows currently held.
func (w *Window) LoadedCount() int64 { return int64(len(w.Rows)) }

// AbsCursor converts the window's relative cursor back to an absolute row
// index, the form session persistence and restore operate on.
func (w *Window) AbsCursor() int64 { return w.LoadedOffset + w.CursorRow }

// Open runs the window-open sequence: estimate, promote-if-small, exact
// filtered count, centred page load, absolute-to-relative cursor
// conversion.
func (w *Window) Open(ctx context.Context, counter RowCounter, loader PageLoader, table, where string, args []any, orderBy string, desc bool, absCursor int64) error {
	unfiltered, ok := counter.EstimateRowCount(ctx, table)
	switch {
	case ok && unfiltered >= 0 && unfiltered < ExactCountThreshold:
		exact, err := counter.CountRows(ctx, table, "", nil)
		if err != nil {
			return err
		}
		unfiltered = exact
		w.RowCountApproximate = false
	case ok && unfiltered >= 0:
		w.RowCountApproximate = true
	default:
		exact, err := counter.CountRows(ctx, table, "", nil)
		if err != nil {
			return err
		}
		unfiltered = exact
		w.RowCountApproximate = false
	}
	w.UnfilteredTotal = unfiltered

	total, err := counter.CountRows(ctx, table, where, args)
	if err != nil {
		return err
	}
	w.TotalRows = total

	loadOffset := absCursor - w.PageSize/2
	if loadOffset < 0 {
		loadOffset = 0
	}
	if maxOffset := total - w.PageSize; maxOffset >= 0 && loadOffset > maxOffset {
		loadOffset = maxOffset
	}
	if loadOffset < 0 {
		loadOffset = 0
	}

	rows, err := loader.LoadPage(ctx, table, where, args, orderBy, desc, loadOffset, w.PageSize)
	if err != nil {
		return err
	}
	w.LoadedOffset = loadOffset
	w.Rows = rows

	w.CursorRow = clamp(absCursor-loadOffset, 0, maxInt64(w.LoadedCount()-1, 0))
	return nil
}

// CheckDataEdge reports whether the cursor is within threshold rows of
// either end of the loaded window while more data exists beyond it: -1 for
// the backward edge, +1 for the forward edge, 0 otherwise.
func (w *Window) CheckDataEdge(threshold int64) int {
	if w.CursorRow < threshold && w.LoadedOffset > 0 {
		return -1
	}
	if (w.LoadedCount()-w.CursorRow) < threshold && w.LoadedOffset+w.LoadedCount() < w.TotalRows {
		return 1
	}
	return 0
}

// HasMoreForward reports whether rows exist beyond the loaded window's tail.
func (w *Window) HasMoreForward() bool {
	return w.LoadedOffset+w.LoadedCount() < w.TotalRows
}

// HasMoreBackward reports whether rows exist before the loaded window's head.
func (w *Window) HasMoreBackward() bool {
	return w.LoadedOffset > 0
}

// Trim drops the half of the loaded window furthest from the cursor once the
// window exceeds 2×PageSize, adjusting LoadedOffset/CursorRow to match.
func (w *Window) Trim() {
	limit := 2 * w.PageSize
	if w.LoadedCount() <= limit {
		return
	}
	keep := w.PageSize
	// Keep the half of the window the cursor sits in.
	if w.CursorRow < w.LoadedCount()/2 {
		// Cursor is in the front half: keep [0, keep).
		w.Rows = w.Rows[:keep]
	} else {
		// Cursor is in the back half: keep the tail, shifting the offset
		// forward by however many leading rows were dropped.
		dropped := w.LoadedCount() - keep
		w.Rows = w.Rows[dropped:]
		w.LoadedOffset += dropped
		w.CursorRow -= dropped
	}
	w.CursorRow = clamp(w.CursorRow, 0, maxInt64(w.LoadedCount()-1, 0))
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

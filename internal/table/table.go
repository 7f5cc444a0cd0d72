// Package table builds the view model consumed by the shared table
// template partial. Pages describe their columns once and feed rows either
// in controlled mode (server-paginated data, caller-owned totals) or
// uncontrolled mode (full in-memory slice paginated here).
package table

import (
	"fmt"
	"html/template"
	"strconv"
)

// Row is one schemaless table row. Typed records are adapted to rows by
// their page handlers so unknown remote columns still render.
type Row map[string]any

// Column describes one column: a row key with optional header/css classes
// and an optional custom renderer. Without a renderer the cell falls back
// to the raw row value under Key.
type Column struct {
	Key       string
	Header    string
	Class     string
	CellClass string
	Render    func(Row) template.HTML
}

// Config is the per-page table description.
type Config struct {
	Columns []Column
	// KeyField names the row field used as the stable row key. When empty,
	// "id" is tried before falling back to the row index.
	KeyField string
	// KeyFunc overrides KeyField when set.
	KeyFunc func(row Row, index int) string
	// PerPage is the uncontrolled page size. Zero means 10.
	PerPage      int
	EmptyMessage string
}

// Cell is one rendered cell.
type Cell struct {
	Value template.HTML
	Class string
}

// RenderedRow is one row keyed for stable identity across rerenders.
type RenderedRow struct {
	Key   string
	Cells []Cell
}

// Model is the template-facing result.
type Model struct {
	Columns      []Column
	Rows         []RenderedRow
	Page         int
	TotalPages   int
	TotalRecords int
	Loading      bool
	EmptyMessage string
}

// Empty reports whether the empty-state message should show.
func (m Model) Empty() bool { return !m.Loading && len(m.Rows) == 0 }

// HasPrev reports whether a previous page exists.
func (m Model) HasPrev() bool { return m.Page > 1 }

// HasNext reports whether a next page exists.
func (m Model) HasNext() bool { return m.Page < m.TotalPages }

func (c Config) perPage() int {
	if c.PerPage > 0 {
		return c.PerPage
	}
	return 10
}

func (c Config) rowKey(row Row, index int) string {
	if c.KeyFunc != nil {
		return c.KeyFunc(row, index)
	}
	field := c.KeyField
	if field == "" {
		field = "id"
	}
	if v, ok := row[field]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return strconv.Itoa(index)
}

func (c Config) renderRows(rows []Row, offset int) []RenderedRow {
	out := make([]RenderedRow, 0, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(c.Columns))
		for j, col := range c.Columns {
			var value template.HTML
			if col.Render != nil {
				value = col.Render(row)
			} else if v, ok := row[col.Key]; ok && v != nil {
				value = template.HTML(template.HTMLEscapeString(fmt.Sprintf("%v", v)))
			}
			cells[j] = Cell{Value: value, Class: col.CellClass}
		}
		out = append(out, RenderedRow{Key: c.rowKey(row, offset+i), Cells: cells})
	}
	return out
}

// Controlled builds a model that trusts the caller's already-paginated
// slice and server-owned totals. While loading, rows are suppressed but the
// last known totals stay visible.
func (c Config) Controlled(rows []Row, page, totalPages, totalRecords int, loading bool) Model {
	m := Model{
		Columns:      c.Columns,
		Page:         page,
		TotalPages:   totalPages,
		TotalRecords: totalRecords,
		Loading:      loading,
		EmptyMessage: c.EmptyMessage,
	}
	if !loading {
		m.Rows = c.renderRows(rows, (page-1)*c.perPage())
	}
	return m
}

// Uncontrolled paginates the full slice locally. A requested page outside
// the valid range resets to page 1 rather than rendering an empty window.
func (c Config) Uncontrolled(rows []Row, requestedPage int) Model {
	per := c.perPage()
	totalPages := (len(rows) + per - 1) / per
	page := requestedPage
	if page < 1 || page > totalPages {
		page = 1
	}
	start := (page - 1) * per
	end := start + per
	if start > len(rows) {
		start, end = 0, 0
	} else if end > len(rows) {
		end = len(rows)
	}
	return Model{
		Columns:      c.Columns,
		Rows:         c.renderRows(rows[start:end], start),
		Page:         page,
		TotalPages:   totalPages,
		TotalRecords: len(rows),
		EmptyMessage: c.EmptyMessage,
	}
}

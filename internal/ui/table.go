package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mcao2/readwise-ankify/internal/journal"
	"github.com/mcao2/readwise-ankify/internal/synth"
)

// Column is a fixed-width table column. A zero width takes the space the
// other columns leave.
type Column struct {
	Title string
	Width int
}

// Table renders rows with fixed columns, truncating cells to fit
type Table struct {
	styles  Styles
	columns []Column
	rows    [][]string
}

// NewTable creates a table fitted to width
func NewTable(width int, columns ...Column) *Table {
	cols := make([]Column, len(columns))
	copy(cols, columns)

	// each cell has Padding(0,1)
	fixed := 2 * len(cols)
	flex := -1
	for i, c := range cols {
		if c.Width == 0 && flex < 0 {
			flex = i
			continue
		}
		fixed += c.Width
	}
	if flex >= 0 {
		cols[flex].Width = max(width-fixed-1, 20)
	}

	return &Table{styles: DefaultStyles(), columns: cols}
}

// AddRow appends a row; missing cells render empty
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) renderCell(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	style := lipgloss.NewStyle().Width(width).MaxWidth(width).Inline(true)
	return t.styles.Cell.Render(style.Render(runewidth.Truncate(value, width, "…")))
}

// View renders the header and every row
func (t *Table) View() string {
	header := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		style := lipgloss.NewStyle().Width(col.Width).MaxWidth(col.Width).Inline(true)
		cell := style.Render(runewidth.Truncate(col.Title, col.Width, "…"))
		header = append(header, t.styles.Header.Render(t.styles.Cell.Render(cell)))
	}

	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}
	for _, row := range t.rows {
		cells := make([]string, 0, len(t.columns))
		for i, col := range t.columns {
			var v string
			if i < len(row) {
				v = row[i]
			}
			cells = append(cells, t.renderCell(v, col.Width))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(lines, "\n")
}

// ItemsTable lists items the way they will be written
func ItemsTable(items []synth.Item, width int) *Table {
	t := NewTable(width,
		Column{Title: "Kind", Width: 10},
		Column{Title: "Source ID", Width: 24},
		Column{Title: "Title", Width: 20},
		Column{Title: "Content"},
	)
	for _, it := range items {
		ref := it.Reference()
		id := ref.ID
		if id == "" {
			id = "(none)"
		}
		t.AddRow(string(it.Kind()), id, ref.Title, ItemSummary(it))
	}
	return t
}

// ItemSummary is a one-line description of an item
func ItemSummary(it synth.Item) string {
	switch v := it.(type) {
	case synth.Flashcard:
		if v.Answer == "" {
			return v.Question
		}
		return v.Question + " → " + v.Answer
	case synth.Definition:
		if v.Definition == "" {
			return v.Word
		}
		return v.Word + ": " + v.Definition
	case synth.Highlight:
		return v.Passage
	case synth.Todo:
		return "TODO " + v.Description
	case synth.Note:
		if v.Note == "" {
			return v.Passage
		}
		return v.Note
	}
	return ""
}

// HistoryTable lists journal runs, newest first
func HistoryTable(runs []journal.Run, width int) *Table {
	t := NewTable(width,
		Column{Title: "Started", Width: 16},
		Column{Title: "Mode", Width: 28},
		Column{Title: "Status", Width: 9},
		Column{Title: "Items", Width: 5},
		Column{Title: "C/U/F", Width: 11},
		Column{Title: "Detail"},
	)
	for _, r := range runs {
		mode := r.Mode
		if r.DryRun {
			mode += " (dry)"
		}
		detail := r.Snapshot
		if r.Error != "" {
			detail = r.Error
		}
		t.AddRow(
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			mode,
			r.Status,
			fmt.Sprintf("%d", r.Items),
			fmt.Sprintf("%d/%d/%d", r.Created, r.Updated, r.Failed),
			detail,
		)
	}
	return t
}

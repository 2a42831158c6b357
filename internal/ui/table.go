package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tripsync/internal/itinerary"
)

type column struct {
	title string
	width int
	cell  func(op itinerary.Operation, now time.Time) string
}

// columns returns the table layout for the current width. The last column
// takes whatever is left.
func (m Model) columns() []column {
	cols := []column{
		{title: "#", width: 4},
		{title: "KIND", width: 8, cell: func(op itinerary.Operation, _ time.Time) string { return string(op.Kind) }},
		{title: "TARGET", width: 28, cell: func(op itinerary.Operation, _ time.Time) string {
			if op.ResourceID == "" {
				return string(op.Resource)
			}
			return string(op.Resource) + "/" + op.ResourceID
		}},
		{title: "TRIES", width: 6, cell: func(op itinerary.Operation, _ time.Time) string { return fmt.Sprint(op.Attempts) }},
		{title: "AGE", width: 7, cell: func(op itinerary.Operation, now time.Time) string {
			if op.EnqueuedAt.IsZero() {
				return "-"
			}
			return humanizeDuration(now.Sub(op.EnqueuedAt))
		}},
	}
	if m.width >= LayoutWideWidth {
		cols = append(cols, column{title: "PAYLOAD", width: 40, cell: func(op itinerary.Operation, _ time.Time) string {
			return oneLine(string(op.Payload))
		}})
	}
	cols = append(cols, column{title: "LAST ERROR", cell: func(op itinerary.Operation, _ time.Time) string {
		return oneLine(op.LastError)
	}})
	return cols
}

// renderTable renders the operations of the current view.
func (m Model) renderTable() string {
	styles := m.theme.Styles()
	ops := m.visibleOps()

	if len(ops) == 0 {
		msg := "Queue is empty. Everything is synced."
		if m.currentView == ViewAbandoned {
			msg = "No abandoned operations."
		}
		return lipgloss.NewStyle().Padding(1, 2).Render(styles.MutedText.Render(msg))
	}

	cols := m.columns()
	used := 0
	for _, c := range cols[:len(cols)-1] {
		used += c.width + 1
	}
	rest := m.width - used - 2
	if rest < 10 {
		rest = 10
	}
	cols[len(cols)-1].width = rest

	var b strings.Builder
	header := make([]string, 0, len(cols))
	for _, c := range cols {
		header = append(header, pad(c.title, c.width))
	}
	b.WriteString(" " + styles.Column.Render(strings.Join(header, " ")))
	b.WriteString("\n")

	now := time.Now()
	for i, op := range m.windowed(ops) {
		row := i + m.windowStart(len(ops))
		cells := make([]string, 0, len(cols))
		for ci, c := range cols {
			var value string
			if ci == 0 {
				value = fmt.Sprint(row + 1)
			} else {
				value = c.cell(op, now)
			}
			cells = append(cells, pad(value, c.width))
		}
		line := " " + strings.Join(cells, " ")
		if row == m.selectedRow {
			line = styles.Selected.Render(line)
		} else if op.Attempts > 0 {
			line = styles.WarningText.Render(line)
		} else {
			line = styles.Text.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// tableRows is how many rows fit under the header and command bar.
func (m Model) tableRows() int {
	rows := m.height - 3
	if rows < 1 {
		return 1
	}
	return rows
}

func (m Model) windowStart(total int) int {
	rows := m.tableRows()
	if total <= rows || m.selectedRow < rows {
		return 0
	}
	start := m.selectedRow - rows + 1
	if start > total-rows {
		start = total - rows
	}
	return start
}

func (m Model) windowed(ops []itinerary.Operation) []itinerary.Operation {
	start := m.windowStart(len(ops))
	end := start + m.tableRows()
	if end > len(ops) {
		end = len(ops)
	}
	return ops[start:end]
}

func pad(value string, width int) string {
	value = truncate(value, width)
	if n := lipgloss.Width(value); n < width {
		return value + strings.Repeat(" ", width-n)
	}
	return value
}

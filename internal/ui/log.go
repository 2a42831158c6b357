package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tripsync/internal/logtail"
)

// renderLog shows the newest log entries that fit on screen.
func (m Model) renderLog() string {
	styles := m.theme.Styles()

	if m.logErr != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render(styles.DangerText.Render("Log unavailable: " + m.logErr.Error()))
	}
	if len(m.logEntries) == 0 {
		return lipgloss.NewStyle().Padding(1, 2).Render(styles.MutedText.Render("No log output yet (" + m.logPath + ")."))
	}

	entries := m.logEntries
	if rows := m.tableRows(); len(entries) > rows {
		entries = entries[len(entries)-rows:]
	}

	width := m.width - 2
	if width < 20 {
		width = 20
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(" ")
		b.WriteString(renderLogEntry(styles, e, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderLogEntry(styles Styles, e logtail.Entry, width int) string {
	if e.Level == "" {
		return styles.Text.Render(truncate(oneLine(e.Message), width))
	}

	level := pad(e.Level, 5)
	var levelStyle lipgloss.Style
	switch e.Level {
	case "ERROR", "DPANIC", "PANIC", "FATAL":
		levelStyle = styles.DangerText
	case "WARN":
		levelStyle = styles.WarningText
	case "DEBUG":
		levelStyle = styles.FaintText
	default:
		levelStyle = styles.SuccessText
	}

	head := e.Time + " " + level + " " + strings.TrimPrefix(e.Logger, "tripsync.") + " "
	rest := e.Message
	if e.Fields != "" {
		rest += " " + e.Fields
	}
	rest = truncate(oneLine(rest), max(width-lipgloss.Width(head), 10))

	return styles.FaintText.Render(e.Time) + " " +
		levelStyle.Render(level) + " " +
		styles.AccentText.Render(strings.TrimPrefix(e.Logger, "tripsync.")) + " " +
		styles.Text.Render(rest)
}

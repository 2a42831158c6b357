package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

// renderHeader renders the status bar: reachability, breaker, queue counts,
// last drain and refresh time.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	snap := m.snapshot

	conn := "unknown"
	switch {
	case snap.IsOffline():
		conn = "offline"
	case snap.Probed && snap.Online:
		conn = "online"
	}

	parts := []string{
		styles.Logo.Render("tripsync"),
		styles.KindStyle(conn).Render(strings.ToUpper(conn)),
	}
	if snap.BreakerState != "" && snap.BreakerState != "closed" {
		parts = append(parts, styles.WarningText.Render("breaker "+snap.BreakerState))
	}

	parts = append(parts,
		styles.MutedText.Render("Pending:")+" "+styles.Text.Render(fmt.Sprint(snap.Stats.Pending)),
		styles.MutedText.Render("Failing:")+" "+countStyle(styles, snap.Stats.Failing, styles.WarningText).Render(fmt.Sprint(snap.Stats.Failing)),
		styles.MutedText.Render("Abandoned:")+" "+countStyle(styles, snap.Stats.Abandoned, styles.DangerText).Render(fmt.Sprint(snap.Stats.Abandoned)),
	)

	if d := snap.LastDrain; d != nil {
		ago := humanizeDuration(time.Since(d.At))
		if d.Err != nil {
			parts = append(parts, styles.DangerText.Render("drain failed "+ago))
		} else {
			parts = append(parts, styles.MutedText.Render(fmt.Sprintf("drain %d/%d %s",
				d.Result.Applied, d.Result.Attempted, ago)))
		}
	}

	if !m.lastUpdated.IsZero() {
		parts = append(parts, styles.FaintText.Render(m.lastUpdated.Format("15:04:05")))
	}

	if snap.LastError != nil && m.width >= LayoutCompactWidth {
		parts = append(parts, styles.DangerText.Render(truncate(oneLine(snap.LastError.Error()), 60)))
	}

	return styles.Header.Width(m.width).Render(strings.Join(filterStrings(parts), "  "))
}

func countStyle(styles Styles, n int, hot lipgloss.Style) lipgloss.Style {
	if n == 0 {
		return styles.MutedText
	}
	return hot
}

// renderCommandBar shows the view tabs, key hints and the last action result.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()

	tab := func(label string, v View) string {
		if m.currentView == v {
			return styles.Selected.Render(" " + label + " ")
		}
		return styles.MutedText.Render(" " + label + " ")
	}

	h := help.New()
	h.ShortSeparator = "  "
	h.Styles.ShortKey = styles.AccentText
	h.Styles.ShortDesc = styles.MutedText

	tabs := tab("Pending", ViewPending) + tab("Abandoned", ViewAbandoned)
	if m.logPath != "" {
		tabs += tab("Log", ViewLog)
	}
	parts := []string{tabs, h.ShortHelpView(m.keys.ShortHelp())}
	if m.flash != "" {
		style := styles.DangerText
		if m.flashOK {
			style = styles.SuccessText
		}
		parts = append(parts, style.Render(truncate(m.flash, 60)))
	}
	return styles.Footer.Width(m.width).Render(strings.Join(parts, "  "))
}

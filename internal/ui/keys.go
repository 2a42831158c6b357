package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the monitor.
type keyMap struct {
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding

	ViewPending   key.Binding
	ViewAbandoned key.Binding
	ViewLog       key.Binding

	SyncNow key.Binding
	Requeue key.Binding

	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "Switch view"),
		),
		ViewPending: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "Pending queue"),
		),
		ViewAbandoned: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Abandoned"),
		),
		ViewLog: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Log"),
		),
		SyncNow: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Sync now"),
		),
		Requeue: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Requeue selected"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
	}
}

// ShortHelp returns key bindings for the command bar.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ViewPending, k.ViewAbandoned, k.ViewLog, k.SyncNow, k.Requeue, k.Help, k.Quit}
}

// FullHelp returns key bindings grouped for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ViewPending, k.ViewAbandoned, k.ViewLog},
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.SyncNow, k.Requeue},
		{k.CycleTheme, k.Help, k.Quit},
	}
}

package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/tripsync/internal/itinerary"
	"github.com/five82/tripsync/internal/logtail"
	"github.com/five82/tripsync/internal/state"
	"github.com/five82/tripsync/internal/syncqueue"
)

// View represents the current active view.
type View int

const (
	ViewPending View = iota
	ViewAbandoned
	ViewLog
)

// logTailLines bounds how much of the log file the Log view reads.
const logTailLines = 500

// Syncer runs queue actions on behalf of the monitor. *app.App satisfies it.
type Syncer interface {
	Drain(ctx context.Context) (syncqueue.DrainResult, error)
	Requeue(ctx context.Context, id string) error
}

// Options configures the UI.
type Options struct {
	Context   context.Context
	Store     *state.Store
	Syncer    Syncer
	PollTick  time.Duration
	ThemeName string
	// LogPath enables the Log view, tailing this file.
	LogPath string
	// OnThemeChange is called with the new theme name after the user cycles
	// themes. It runs off the UI goroutine.
	OnThemeChange func(name string)
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx      context.Context
	store    *state.Store
	syncer   Syncer
	keys     keyMap
	pollTick time.Duration
	logPath  string
	onTheme  func(string)

	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	snapshot    state.Snapshot
	lastUpdated time.Time
	selectedRow int

	logEntries []logtail.Entry
	logErr     error

	busy    bool
	flash   string
	flashOK bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}
	return Model{
		ctx:         ctx,
		store:       opts.Store,
		syncer:      opts.Syncer,
		keys:        DefaultKeyMap(),
		pollTick:    pollTick,
		logPath:     opts.LogPath,
		onTheme:     opts.OnThemeChange,
		theme:       GetTheme(opts.ThemeName),
		currentView: ViewPending,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case tickMsg:
		var cmds []tea.Cmd
		if m.store != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.store))
		}
		if m.currentView == ViewLog {
			cmds = append(cmds, m.readLog())
		}
		cmds = append(cmds, tickCmd(m.pollTick))
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = time.Now()
		m.clampSelection()
		return m, nil

	case logMsg:
		m.logEntries = msg.entries
		m.logErr = msg.err
		return m, nil

	case drainDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setFlash("Sync failed: "+msg.err.Error(), false)
		} else {
			m.setFlash(fmt.Sprintf("Sync: %d applied, %d failed, %d remaining",
				msg.res.Applied, msg.res.Failed, msg.res.Remaining), msg.res.Failed == 0)
		}
		return m, m.fetchSnapshot()

	case requeueDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setFlash("Requeue failed: "+msg.err.Error(), false)
		} else {
			m.setFlash("Requeued "+msg.id, true)
		}
		return m, m.fetchSnapshot()
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	if m.currentView == ViewLog {
		b.WriteString(m.renderLog())
	} else {
		b.WriteString(m.renderTable())
	}
	return b.String()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.onTheme != nil {
			name, notify := m.theme.Name, m.onTheme
			return m, func() tea.Msg {
				notify(name)
				return nil
			}
		}
	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.nextView())
	case key.Matches(msg, m.keys.ViewPending):
		return m.switchView(ViewPending)
	case key.Matches(msg, m.keys.ViewAbandoned):
		return m.switchView(ViewAbandoned)
	case key.Matches(msg, m.keys.ViewLog):
		if m.logPath != "" {
			return m.switchView(ViewLog)
		}
	case key.Matches(msg, m.keys.SyncNow):
		return m.startDrain()
	case key.Matches(msg, m.keys.Requeue):
		return m.startRequeue()
	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = len(m.visibleOps()) - 1
		m.clampSelection()
	}
	return m, nil
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	if m.currentView != v {
		m.currentView = v
		m.selectedRow = 0
	}
	if v == ViewLog {
		return m, m.readLog()
	}
	return m, nil
}

func (m Model) nextView() View {
	switch m.currentView {
	case ViewPending:
		return ViewAbandoned
	case ViewAbandoned:
		if m.logPath != "" {
			return ViewLog
		}
	}
	return ViewPending
}

func (m Model) readLog() tea.Cmd {
	if m.logPath == "" {
		return nil
	}
	path := m.logPath
	return func() tea.Msg {
		entries, err := logtail.ReadEntries(path, logTailLines)
		return logMsg{entries: entries, err: err}
	}
}

func (m Model) startDrain() (tea.Model, tea.Cmd) {
	if m.syncer == nil || m.busy {
		return m, nil
	}
	m.busy = true
	m.setFlash("Syncing...", true)
	ctx, syncer := m.ctx, m.syncer
	return m, func() tea.Msg {
		res, err := syncer.Drain(ctx)
		return drainDoneMsg{res: res, err: err}
	}
}

func (m Model) startRequeue() (tea.Model, tea.Cmd) {
	if m.syncer == nil || m.busy || m.currentView != ViewAbandoned {
		return m, nil
	}
	op, ok := m.selectedOp()
	if !ok {
		return m, nil
	}
	m.busy = true
	ctx, syncer := m.ctx, m.syncer
	return m, func() tea.Msg {
		return requeueDoneMsg{id: op.ID, err: syncer.Requeue(ctx, op.ID)}
	}
}

func (m *Model) setFlash(text string, ok bool) {
	m.flash = text
	m.flashOK = ok
}

// visibleOps returns the operations listed by the current view.
func (m Model) visibleOps() []itinerary.Operation {
	switch m.currentView {
	case ViewAbandoned:
		return m.snapshot.Abandoned
	case ViewLog:
		return nil
	}
	return m.snapshot.Pending
}

func (m Model) selectedOp() (itinerary.Operation, bool) {
	ops := m.visibleOps()
	if m.selectedRow < 0 || m.selectedRow >= len(ops) {
		return itinerary.Operation{}, false
	}
	return ops[m.selectedRow], true
}

func (m *Model) moveSelection(delta int) {
	m.selectedRow += delta
	m.clampSelection()
}

func (m *Model) clampSelection() {
	n := len(m.visibleOps())
	if m.selectedRow >= n {
		m.selectedRow = n - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

func (m Model) fetchSnapshot() tea.Cmd {
	if m.store == nil {
		return nil
	}
	return fetchSnapshotCmd(m.store)
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type drainDoneMsg struct {
	res syncqueue.DrainResult
	err error
}

type requeueDoneMsg struct {
	id  string
	err error
}

type logMsg struct {
	entries []logtail.Entry
	err     error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or the
// context is cancelled.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if err != nil && m.ctx.Err() != nil {
		return nil
	}
	return err
}

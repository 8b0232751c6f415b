// Package tui is the live terminal view behind `clinicsync watch`.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/events"
	engine "clinicsync/internal/sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxLogLines = 200

// probeEvery is how often the header's online indicator is refreshed
var probeEvery = 15 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	chatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
)

// Options wires the view to the engine
type Options struct {
	// Sync runs one full pass when the user presses s
	Sync func(context.Context) engine.SyncReport
	// Online probes connectivity for the header
	Online func(context.Context) bool
	// Events is the bus subscription to display
	Events <-chan events.Event
	// User is shown in the header when a session is open
	User string
}

type eventMsg events.Event
type eventsClosedMsg struct{}
type syncDoneMsg engine.SyncReport
type onlineMsg bool
type probeTickMsg struct{}

// watchModel is the bubbletea model for the watch view
type watchModel struct {
	opts     Options
	spinner  spinner.Model
	online   bool
	probed   bool
	syncing  bool
	last     *engine.SyncReport
	lines    []string
	quitting bool
	width    int
	height   int
}

func newModel(opts Options) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return watchModel{
		opts:    opts,
		spinner: sp,
		width:   80,
		height:  24,
	}
}

// Run starts the watch view and blocks until the user quits
func Run(opts Options) error {
	_, err := tea.NewProgram(newModel(opts), tea.WithAltScreen()).Run()
	return err
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitEvent(), m.probe())
}

func (m watchModel) waitEvent() tea.Cmd {
	if m.opts.Events == nil {
		return nil
	}
	ch := m.opts.Events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m watchModel) probe() tea.Cmd {
	if m.opts.Online == nil {
		return nil
	}
	online := m.opts.Online
	return func() tea.Msg {
		return onlineMsg(online(context.Background()))
	}
}

func (m watchModel) runSync() tea.Cmd {
	if m.opts.Sync == nil {
		return nil
	}
	run := m.opts.Sync
	return func() tea.Msg {
		return syncDoneMsg(run(context.Background()))
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "s":
			if m.syncing || m.opts.Sync == nil {
				return m, nil
			}
			m.syncing = true
			m.appendLine(dimStyle.Render("manual sync started"))
			return m, m.runSync()
		}
		return m, nil

	case eventMsg:
		ev := events.Event(msg)
		if r, ok := ev.Payload.(engine.SyncReport); ok && ev.Name == events.SyncComplete {
			if m.syncing {
				// the manual pass reports through syncDoneMsg
				return m, m.waitEvent()
			}
			if r.Success {
				m.last = &r
			}
		}
		m.appendLine(formatEvent(ev))
		return m, m.waitEvent()

	case eventsClosedMsg:
		m.appendLine(dimStyle.Render("event stream closed"))
		return m, nil

	case syncDoneMsg:
		report := engine.SyncReport(msg)
		m.syncing = false
		m.appendLine(formatReport(report))
		if report.Success {
			m.last = &report
			m.online = true
			m.probed = true
		} else if report.Message == engine.MsgOffline {
			m.online = false
			m.probed = true
		}
		return m, nil

	case onlineMsg:
		m.online = bool(msg)
		m.probed = true
		return m, tea.Tick(probeEvery, func(time.Time) tea.Msg { return probeTickMsg{} })

	case probeTickMsg:
		return m, m.probe()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) appendLine(line string) {
	m.lines = append(m.lines, time.Now().Format("15:04:05")+"  "+line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("clinicsync watch"))
	if m.opts.User != "" {
		s.WriteString(dimStyle.Render("  as " + m.opts.User))
	}
	s.WriteString("  ")
	switch {
	case !m.probed:
		s.WriteString(dimStyle.Render("checking..."))
	case m.online:
		s.WriteString(onlineStyle.Render("● online"))
	default:
		s.WriteString(offlineStyle.Render("● offline"))
	}
	if m.syncing {
		s.WriteString("  " + m.spinner.View() + " syncing")
	}
	s.WriteString("\n")

	if m.last != nil {
		up, down, conflicts := m.last.Totals()
		s.WriteString(dimStyle.Render(fmt.Sprintf("last sync %s: %d up, %d down, %d conflicts",
			m.last.StartedAt.Format("15:04:05"), up, down, conflicts)))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// header, summary, blank line and help take 5 rows
	room := m.height - 5
	if room < 1 {
		room = 1
	}
	start := 0
	if len(m.lines) > room {
		start = len(m.lines) - room
	}
	for _, line := range m.lines[start:] {
		s.WriteString(line)
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(dimStyle.Render("s: sync now • q: quit"))
	return s.String()
}

func formatEvent(ev events.Event) string {
	switch ev.Name {
	case events.NewMessage:
		return chatStyle.Render(fmt.Sprintf("message %s → %s: %s",
			short(ev.Record.String("sender_id")), short(ev.Record.String("receiver_id")), ev.Record.String("message_text")))
	case events.DataUpdate:
		return fmt.Sprintf("%-7s %s/%s", ev.EventType, ev.Table, short(ev.Record.ID()))
	case events.SyncComplete:
		if r, ok := ev.Payload.(engine.SyncReport); ok {
			return formatReport(r)
		}
		return "sync complete"
	default:
		return string(ev.Name)
	}
}

func formatReport(r engine.SyncReport) string {
	if !r.Success {
		return errorStyle.Render("sync skipped: " + r.Message)
	}
	up, down, conflicts := r.Totals()
	line := fmt.Sprintf("sync done in %s: %d up, %d down, %d conflicts", r.Duration.Round(time.Millisecond), up, down, conflicts)
	if failed := r.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Table
		}
		return errorStyle.Render(line + " (failed: " + strings.Join(names, ", ") + ")")
	}
	return onlineStyle.Render(line)
}

// short trims a UUID to its first block for display
func short(id string) string {
	if backend.IsUUID(id) {
		return id[:8]
	}
	return id
}

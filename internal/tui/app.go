// Package tui renders the live session list in the terminal: one row per
// login session, the monitor's own session marked, killable sessions
// selectable, and a warning banner whenever a foreign, non-ignored session
// is present.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/whosthere/whosthere/internal/client"
	"github.com/whosthere/whosthere/internal/session"
)

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	entries  []session.Entry
	state    session.IconState
	selected int

	connected bool
	fatal     string // monitor's terminal error; any key quits
	notice    string // transient feedback from the last action
}

// New creates the root model.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		ws:     ws,
		http:   http,
		ctx:    ctx,
		cancel: cancel,
		keys:   DefaultKeyMap(),
		state:  session.StateNormal,
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	return m.ws.Listen(m.ctx)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		m.connected = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.DisconnectedMsg:
		m.connected = false
		if m.fatal != "" {
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.SessionsMsg:
		m.entries = msg.Payload.Sessions
		m.state = msg.Payload.State
		if m.selected >= len(m.entries) {
			m.selected = max(len(m.entries)-1, 0)
		}
		return m, m.ws.ReadLoop(m.ctx)

	case client.MonitorErrorMsg:
		// Terminal: the daemon will never publish again.
		m.fatal = msg.Message
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.fatal != "" {
		m.cancel()
		return m, tea.Quit
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		m.ws.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if len(m.entries) > 0 {
			m.selected = (m.selected + 1) % len(m.entries)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.entries) > 0 {
			m.selected = (m.selected - 1 + len(m.entries)) % len(m.entries)
		}
		return m, nil

	case key.Matches(msg, m.keys.Kill):
		return m.killSelected()
	}

	return m, nil
}

func (m Model) killSelected() (tea.Model, tea.Cmd) {
	if m.selected >= len(m.entries) {
		return m, nil
	}
	entry := m.entries[m.selected]
	switch {
	case entry.IsCurrent:
		m.notice = "refusing to kill the current session"
	case !entry.CanKill:
		m.notice = "no permission to signal this session"
	default:
		m.notice = fmt.Sprintf("kill requested for pid %d", entry.PID)
		pid := entry.PID
		httpc := m.http
		return m, func() tea.Msg {
			// Fire-and-forget; the monitor's next cycle reflects reality.
			_ = httpc.Kill(pid, false)
			return nil
		}
	}
	return m, nil
}

// View renders the session list, or the terminal-error notice once the
// monitor has failed.
func (m Model) View() string {
	if m.fatal != "" {
		return styleErrorBox.Render(
			styleTitle.Foreground(colorError).Render("monitor failed")+"\n\n"+
				m.fatal) + "\n" + styleHelp.Render("press any key to quit") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(styleDimmed.Render("  no sessions"))
		b.WriteString("\n")
	}
	for i, e := range m.entries {
		b.WriteString(m.renderRow(i, e))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	indicator := lipgloss.NewStyle().Foreground(colorNormal).Render("● normal")
	if m.state == session.StateWarning {
		indicator = lipgloss.NewStyle().Foreground(colorWarning).Render("▲ warning")
	}
	conn := styleDimmed.Render("connecting…")
	if m.connected {
		conn = styleDimmed.Render("connected")
	}
	return fmt.Sprintf(" %s  %s  %s", styleTitle.Render("whosthere"), indicator, conn)
}

func (m Model) renderRow(i int, e session.Entry) string {
	cursor := "  "
	if i == m.selected {
		cursor = "> "
	}

	mark := "○"
	style := styleRow
	switch {
	case e.IsCurrent:
		mark = "◉"
		style = styleCurrent
	case !e.CanKill:
		style = styleDimmed
	}
	if i == m.selected {
		style = styleSelected
	}

	label := e.Label
	if e.Command != "" {
		label += styleDimmed.Render(fmt.Sprintf("  [%s]", e.Command))
	}
	return cursor + style.Render(mark+" "+label)
}

func (m Model) renderFooter() string {
	help := " j/↓ next · k/↑ prev · x kill · q quit"
	if m.notice != "" {
		return styleHelp.Render(help) + "\n " + styleDimmed.Render(m.notice)
	}
	return styleHelp.Render(help)
}

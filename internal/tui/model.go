// Package tui is the interactive terminal front end of a chat session.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"guidechat/internal/models"
	"guidechat/internal/render"
)

// Session is the part of conversation.Controller the TUI drives.
type Session interface {
	Submit(ctx context.Context, question string) error
	QuickAsk(ctx context.Context, question string) error
}

// RefreshFunc re-evaluates backend health and applies the result.
type RefreshFunc func(ctx context.Context) error

type (
	sessionErrMsg struct{ err error }
	refreshedMsg  struct{}
)

// Model renders the conversation. It only mirrors events sent by the
// controller; submissions and refreshes run as tea.Cmds.
type Model struct {
	ctx        context.Context
	session    Session
	refresh    RefreshFunc
	quickAsks  []string
	previewLen int

	input       textinput.Model
	spin        spinner.Model
	transcript  []string
	status      models.SystemStatus
	statusKnown bool
	refreshing  bool
	typingID    string
	notice      string
	err         error
	width       int
	height      int
}

func NewModel(ctx context.Context, session Session, refresh RefreshFunc, quickAsks []string, previewLen int) Model {
	in := textinput.New()
	in.Placeholder = "Ask a question about the document"
	in.Prompt = "You> "
	in.CharLimit = 0
	in.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = render.BotLabelStyle

	return Model{
		ctx:        ctx,
		session:    session,
		refresh:    refresh,
		quickAsks:  quickAsks,
		previewLen: previewLen,
		input:      in,
		spin:       s,
		refreshing: true,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// ready reports whether new questions are accepted.
func (m Model) ready() bool {
	return m.statusKnown && m.status.Ready
}

func (m Model) pending() bool {
	return m.typingID != ""
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-len(m.input.Prompt)-2, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case messageMsg:
		m.transcript = append(m.transcript, m.renderMessage(msg.msg))
		return m, nil

	case turnStartedMsg:
		m.typingID = msg.turn.ID
		m.input.Blur()
		return m, m.spin.Tick

	case turnFinishedMsg:
		if msg.turn.ID == m.typingID {
			m.typingID = ""
		}
		if m.ready() {
			return m, m.input.Focus()
		}
		return m, nil

	case statusMsg:
		m.status = msg.status
		m.statusKnown = true
		m.refreshing = false
		if m.ready() && !m.pending() {
			return m, m.input.Focus()
		}
		m.input.Blur()
		return m, nil

	case draftMsg:
		m.input.SetValue(msg.text)
		m.input.CursorEnd()
		return m, nil

	case refreshedMsg:
		m.refreshing = false
		return m, nil

	case sessionErrMsg:
		m.refreshing = false
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "ctrl+r":
		return m.startRefresh()
	case "enter":
		return m.handleEnter()
	}
	if !m.ready() || m.pending() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	switch {
	case value == "/quit" || value == "/exit":
		return m, tea.Quit
	case value == "/refresh":
		m.input.SetValue("")
		return m.startRefresh()
	}
	if !m.ready() || m.pending() || value == "" {
		return m, nil
	}
	q, ok := m.quickAsk(value)
	if !ok && strings.HasPrefix(value, "/") {
		m.notice = render.UnknownCommandHint(value, len(m.quickAsks))
		return m, nil
	}
	m.notice = ""
	if ok {
		m.input.SetValue("")
		session, ctx := m.session, m.ctx
		return m, func() tea.Msg {
			if err := session.QuickAsk(ctx, q); err != nil {
				return sessionErrMsg{err: err}
			}
			return nil
		}
	}
	session, ctx := m.session, m.ctx
	return m, func() tea.Msg {
		if err := session.Submit(ctx, value); err != nil {
			return sessionErrMsg{err: err}
		}
		return nil
	}
}

// quickAsk resolves "/N" to the Nth configured quick question.
func (m Model) quickAsk(value string) (string, bool) {
	if !strings.HasPrefix(value, "/") {
		return "", false
	}
	n, err := strconv.Atoi(value[1:])
	if err != nil || n < 1 || n > len(m.quickAsks) {
		return "", false
	}
	return m.quickAsks[n-1], true
}

func (m Model) startRefresh() (tea.Model, tea.Cmd) {
	if m.refresh == nil || m.refreshing {
		return m, nil
	}
	m.refreshing = true
	refresh, ctx := m.refresh, m.ctx
	return m, func() tea.Msg {
		if err := refresh(ctx); err != nil {
			return sessionErrMsg{err: err}
		}
		return refreshedMsg{}
	}
}

func (m Model) renderMessage(msg models.Message) string {
	var b strings.Builder
	b.WriteString(render.Label(msg.Sender))
	b.WriteString(" ")
	b.WriteString(render.Sanitize(msg.Text))
	if len(msg.Sources) > 0 {
		b.WriteString("\n  ")
		b.WriteString(render.SourceHeadStyle.Render("Related sources:"))
		for _, src := range msg.Sources {
			b.WriteString("\n  - ")
			b.WriteString(render.SourceStyle.Render(render.SourceLine(src, m.previewLen)))
		}
	}
	return b.String()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.statusBar())
	b.WriteString("\n\n")

	for _, line := range m.visibleTranscript() {
		b.WriteString(line + "\n\n")
	}

	if m.pending() {
		b.WriteString(render.Label(models.SenderBot) + " " + m.spin.View() + "Thinking...\n\n")
	}

	if m.notice != "" {
		b.WriteString(render.HintStyle.Render(m.notice) + "\n")
	}

	if m.err != nil {
		b.WriteString(render.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}

	if !m.ready() {
		b.WriteString(render.HintStyle.Render("Input is disabled until the server is ready. Press ctrl+r to check again, esc to quit."))
		return b.String()
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(render.HintStyle.Render(m.help()))
	return b.String()
}

func (m Model) statusBar() string {
	if !m.statusKnown {
		return render.HintStyle.Render("Checking server status...")
	}
	bar := render.Indicator(m.status.Ready) + "  " + render.StatusText(m.status)
	if m.refreshing {
		bar += render.HintStyle.Render("  (refreshing)")
	}
	return bar
}

func (m Model) help() string {
	var parts []string
	for i, q := range m.quickAsks {
		if i >= 9 {
			break
		}
		parts = append(parts, fmt.Sprintf("/%d %s", i+1, q))
	}
	hint := "enter to send, ctrl+r to refresh status, esc to quit"
	if len(parts) == 0 {
		return hint
	}
	return "Quick asks: " + strings.Join(parts, " | ") + "\n" + hint
}

// visibleTranscript keeps the newest entries that fit the window.
func (m Model) visibleTranscript() []string {
	if m.height <= 0 {
		return m.transcript
	}
	budget := m.height - 6
	start := len(m.transcript)
	for start > 0 {
		h := lipgloss.Height(m.transcript[start-1]) + 1
		if budget-h < 0 {
			break
		}
		budget -= h
		start--
	}
	if start == len(m.transcript) && start > 0 {
		start--
	}
	return m.transcript[start:]
}

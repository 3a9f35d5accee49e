package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"deckhand/internal/deck"
	"deckhand/internal/session"
	"deckhand/pkg/protocol"
)

const sidebarWidth = 32

// Model is the root BubbleTea model for the interactive deck session
type Model struct {
	sess   *session.Session
	bridge *Bridge
	styles Styles

	transcript viewport.Model
	input      textinput.Model
	spin       spinner.Model

	snapshot  deck.Snapshot
	ready     bool
	reconnect *ReconnectingMsg
	lastErr   error

	width  int
	height int
}

// NewModel builds the root model around an established session
func NewModel(sess *session.Session) Model {
	ti := textinput.New()
	ti.Placeholder = "Describe your presentation..."
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		sess:       sess,
		bridge:     NewBridge(sess),
		styles:     DefaultStyles(),
		transcript: viewport.New(0, 0),
		input:      ti,
		spin:       sp,
		snapshot:   sess.State(),
		ready:      sess.IsReady(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.Listen(), textinput.Blink, m.spin.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript.Width = msg.Width - sidebarWidth - 2
		m.transcript.Height = msg.Height - 5
		m.input.Width = msg.Width - sidebarWidth - 8
		m.refreshTranscript()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.bridge.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" && m.ready {
				m.input.Reset()
				cmds = append(cmds, m.sendCmd(text))
			}
		}

	case StateMsg:
		m.snapshot = msg.Snapshot
		m.lastErr = nil
		m.refreshTranscript()
		cmds = append(cmds, m.bridge.Listen())

	case ReadyMsg:
		m.ready = true
		m.reconnect = nil
		cmds = append(cmds, m.bridge.Listen())

	case NotReadyMsg:
		m.ready = false
		cmds = append(cmds, m.bridge.Listen())

	case ReconnectingMsg:
		m.ready = false
		m.reconnect = &msg
		cmds = append(cmds, m.bridge.Listen())

	case AuthExpiredMsg:
		m.ready = false
		m.lastErr = fmt.Errorf("authentication expired, restart with a fresh token")
		cmds = append(cmds, m.bridge.Listen())

	case sendFailedMsg:
		m.lastErr = msg.err
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, cmd)
	m.transcript, cmd = m.transcript.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.width == 0 {
		return "starting..."
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.transcript.View(),
		m.styles.InputBox.Width(m.width-sidebarWidth-2).Render(m.input.View()),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, main, m.renderSidebar())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatusBar())
}

// sendCmd submits user input off the UI goroutine
func (m Model) sendCmd(text string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		if _, err := sess.SendMessage(context.Background(), text, session.SendOptions{}); err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (m *Model) refreshTranscript() {
	var b strings.Builder
	for _, entry := range m.snapshot.Transcript {
		ts := m.styles.Timestamp.Render(entry.Timestamp.Format("15:04"))
		var line string
		switch {
		case entry.Role == "user":
			line = m.styles.UserMessage.Render("you") + " " + ts + "\n" + entry.Message
		case entry.Type == protocol.ChatTypeQuestion || entry.Type == protocol.ChatTypeActionRequired:
			line = m.styles.QuestionMessage.Render("deckhand asks") + " " + ts + "\n" + entry.Message
			for i, opt := range entry.Options {
				line += fmt.Sprintf("\n  %d. %s", i+1, opt)
			}
		default:
			line = m.styles.ServiceMessage.Render("deckhand") + " " + ts + "\n" + entry.Message
		}
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	if m.snapshot.LastError != nil {
		b.WriteString(m.styles.ErrorMessage.Render("error: " + m.snapshot.LastError.Message))
		b.WriteString("\n")
	}
	m.transcript.SetContent(b.String())
	m.transcript.GotoBottom()
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(m.styles.SidebarTitle.Render(fmt.Sprintf("Slides (%d)", len(m.snapshot.Slides))))
	b.WriteString("\n")
	for i, slide := range m.snapshot.Slides {
		preview := deck.SlidePreview(slide)
		if len(preview) > sidebarWidth-6 {
			preview = preview[:sidebarWidth-9] + "..."
		}
		num := m.styles.SlideNumber.Render(fmt.Sprintf("%2d.", i+1))
		b.WriteString(m.styles.SlideItem.Render(num + " " + preview))
		b.WriteString("\n")
	}
	if len(m.snapshot.Slides) == 0 {
		b.WriteString(m.styles.SlideItem.Render("no slides yet"))
	}
	return lipgloss.NewStyle().Width(sidebarWidth).Height(m.height - 2).Render(b.String())
}

func (m Model) renderStatusBar() string {
	var conn string
	switch {
	case m.ready:
		conn = m.styles.StatusConnected.Render("● connected")
	case m.reconnect != nil:
		conn = m.styles.StatusReconnecting.Render(
			fmt.Sprintf("◌ reconnecting (attempt %d)", m.reconnect.Attempt))
	default:
		conn = m.styles.StatusDisconnected.Render("○ offline")
	}

	phase := m.styles.StatusPhase.Render("phase: " + string(m.snapshot.Phase))

	var progress string
	if m.snapshot.Processing {
		progress = m.styles.StatusProgress.Render(
			fmt.Sprintf("%s %.0f%% %s", m.spin.View(), m.snapshot.Progress.Percentage, m.snapshot.Progress.CurrentStep))
	}

	var errNote string
	if m.lastErr != nil {
		errNote = m.styles.ErrorMessage.Render(m.lastErr.Error())
	}

	content := strings.Join(filterEmpty([]string{conn, phase, progress, errNote}), "  │  ")
	return m.styles.StatusBar.Width(m.width).Render(content)
}

func filterEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Run starts the interactive program and blocks until exit
func Run(sess *session.Session) error {
	p := tea.NewProgram(NewModel(sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

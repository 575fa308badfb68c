package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bcmpchat/bcmp/pkg/protocol"
)

var (
	nickStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	joinStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	leaveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#505050"))
)

type modelState struct {
	network   *network
	nick      string
	viewport  viewport.Model
	textInput textinput.Model
	messages  []string
	err       error
	ready     bool
}

func initialModel(net *network, nick string) modelState {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Focus()
	ti.CharLimit = protocol.MaxMessageSize - protocol.HeaderSize

	return modelState{
		network:   net,
		nick:      nick,
		textInput: ti,
		messages:  []string{noticeStyle.Render("Connected.")},
	}
}

func (m modelState) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.network.WaitForMessage)
}

func (m modelState) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.textInput.Value())
			if line == "" {
				break
			}
			m.textInput.SetValue("")
			if line == "/quit" {
				return m, tea.Quit
			}
			return m, m.network.SendLine(line)
		}

	case tea.WindowSizeMsg:
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.viewport.SetContent(strings.Join(m.messages, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}
		m.textInput.Width = msg.Width

	case inboundMsg:
		if line, ok := formatMessage(msg.msg); ok {
			m.messages = append(m.messages, line)
			m.viewport.SetContent(strings.Join(m.messages, "\n"))
			m.viewport.GotoBottom()
		}
		return m, m.network.WaitForMessage

	case errMsg:
		m.err = msg
		m.messages = append(m.messages, leaveStyle.Render("Disconnected from server."))
		m.viewport.SetContent(strings.Join(m.messages, "\n"))
		m.viewport.GotoBottom()
		return m, nil
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m modelState) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s",
		m.viewport.View(),
		borderStyle.Render(strings.Repeat("─", m.viewport.Width)),
		m.textInput.View(),
	)
}

// formatMessage renders a server message as a chat line. Messages the
// client surface has no rendering for are skipped.
func formatMessage(msg protocol.Msg) (string, bool) {
	switch m := msg.(type) {
	case protocol.NickedUserMsg:
		return fmt.Sprintf("%s: %s", nickStyle.Render(m.Nick), m.Text), true
	case protocol.NickedConnect:
		return joinStyle.Render(fmt.Sprintf("! %s has joined the chat.", m.Nick)), true
	case protocol.NickedDisconnect:
		return leaveStyle.Render(fmt.Sprintf("! %s has left the chat.", m.Nick)), true
	case protocol.NickedNickChange:
		return noticeStyle.Render(fmt.Sprintf("! %s is now known as %s.", m.Nick, m.NewNick)), true
	case protocol.NickedCommand:
		return noticeStyle.Render(fmt.Sprintf("* %s issued: %s", m.Nick, m.Text)), true
	default:
		return "", false
	}
}

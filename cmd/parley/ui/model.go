// Package ui holds the bubbletea model for the terminal client.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gen2brain/beeep"

	"github.com/mwhitney/parley/pkg/client"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	peerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// clientEventMsg carries one dispatcher event into the update loop.
type clientEventMsg client.Event

// eventsClosedMsg signals the dispatcher ended.
type eventsClosedMsg struct{}

// Model is the terminal client: a scrollback viewport over the message
// buffer and a single-line input with slash commands.
type Model struct {
	client     *client.Client
	serverAddr string

	viewport viewport.Model
	input    textinput.Model

	ready        bool
	width        int
	height       int
	disconnected bool
	localLines   []string // command feedback not part of the chat buffer
}

// NewModel builds the initial model around a connected client.
func NewModel(c *client.Client, serverAddr string) Model {
	input := textinput.New()
	input.Placeholder = "message, or /help"
	input.CharLimit = 512
	input.Focus()

	return Model{
		client:     c,
		serverAddr: serverAddr,
		input:      input,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

// waitForEvent blocks on the client's event channel.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.client.Events()
		if !ok {
			return eventsClosedMsg{}
		}
		return clientEventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - 4 // title, peers, input, status
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()

	case clientEventMsg:
		switch client.Event(msg).Kind {
		case client.EventWhisper:
			beeep.Notify("Parley", client.Event(msg).Line, "")
			m.refreshViewport()
		case client.EventClosed:
			m.disconnected = true
		default:
			m.refreshViewport()
		}
		cmds = append(cmds, m.waitForEvent())

	case eventsClosedMsg:
		m.disconnected = true

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.client.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				break
			}
			if quit := m.execute(line); quit {
				return m, tea.Quit
			}
			m.refreshViewport()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// execute runs one input line: a slash command or a plain say. Returns
// true when the program should quit.
func (m *Model) execute(line string) bool {
	if !strings.HasPrefix(line, "/") {
		if err := m.client.Say(line); err != nil {
			m.feedback(errorStyle.Render(err.Error()))
		}
		return false
	}

	parts := strings.Fields(line)
	switch parts[0] {
	case "/quit", "/exit":
		m.client.Close()
		return true

	case "/help":
		m.feedback("Commands: /register name password, /login name password, " +
			"/logout, /whisper name message, /peers, /quit")

	case "/peers":
		peers := m.client.Peers()
		if len(peers) == 0 {
			m.feedback("Nobody else is connected.")
		} else {
			m.feedback("Connected: " + strings.Join(peers, ", "))
		}

	case "/register":
		if len(parts) != 3 {
			m.feedback("Usage: /register name password")
			break
		}
		if err := m.client.CreateUser(parts[1], parts[2]); err != nil {
			m.feedback(errorStyle.Render(err.Error()))
		}

	case "/login":
		if len(parts) != 3 {
			m.feedback("Usage: /login name password")
			break
		}
		if err := m.client.Login(parts[1], parts[2]); err != nil {
			m.feedback(errorStyle.Render(err.Error()))
		}

	case "/logout":
		if err := m.client.Logout(); err != nil {
			m.feedback(errorStyle.Render(err.Error()))
		}

	case "/whisper", "/w":
		if len(parts) < 3 {
			m.feedback("Usage: /whisper name message")
			break
		}
		target := parts[1]
		text := strings.Join(parts[2:], " ")
		if err := m.client.Whisper(target, text); err != nil {
			m.feedback(errorStyle.Render(err.Error()))
		} else {
			m.feedback(fmt.Sprintf("To %s: %s", target, text))
		}

	default:
		m.feedback(fmt.Sprintf("Unknown command %s (try /help)", parts[0]))
	}
	return false
}

// feedback appends a local-only line under the chat buffer.
func (m *Model) feedback(line string) {
	m.localLines = append(m.localLines, line)
	m.refreshViewport()
}

// refreshViewport re-renders the scrollback and follows the tail.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	lines := append(m.client.Buffer(), m.localLines...)
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	title := titleStyle.Render("Parley") + statusStyle.Render("  "+m.serverAddr)

	identity := m.client.Name()
	if m.client.LoggedIn() {
		identity += " (logged in)"
	}
	if m.disconnected {
		identity = errorStyle.Render("disconnected")
	}
	status := statusStyle.Render(identity)

	peers := peerStyle.Render("peers: " + strings.Join(m.client.Peers(), ", "))

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.viewport.View(),
		peers,
		m.input.View(),
		status,
	)
}

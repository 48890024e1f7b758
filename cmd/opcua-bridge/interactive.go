package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gopcua/opcua/ua"
	"golang.org/x/term"

	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var errNotTerminal = errors.New("interactive mode needs a terminal")

type browserState int

const (
	stateLoading browserState = iota
	stateList
	stateInfo
	stateGoto
)

type browserModel struct {
	ctx      context.Context
	err      error
	conn     *conn
	opts     clientOptions
	info     string
	path     []string
	refs     []client.Reference
	input    textinput.Model
	spinner  spinner.Model
	selected int
	state    browserState
}

type connectedMsg struct {
	err  error
	conn *conn
}

type browsedMsg struct {
	err  error
	node string
	refs []client.Reference
	push bool
}

type infoMsg struct {
	err  error
	text string
}

func newBrowserModel(ctx context.Context, opts clientOptions) *browserModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Prompt = "node: "
	ti.Placeholder = "ns=1;s=Temp"
	ti.Width = 40

	return &browserModel{
		ctx:     ctx,
		opts:    opts,
		spinner: sp,
		input:   ti,
		state:   stateLoading,
	}
}

func (m *browserModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.connect)
}

func (m *browserModel) connect() tea.Msg {
	c, err := dial(m.ctx, m.opts)
	return connectedMsg{conn: c, err: err}
}

// browse lists node. push records it on the path stack once it succeeds.
func (m *browserModel) browse(node string, push bool) tea.Cmd {
	c := m.conn
	return func() tea.Msg {
		refs, err := engine.Do(c.e, "browse", func(ctx context.Context) ([]client.Reference, error) {
			return c.s.Browse(ctx, client.TextNode(node))
		})
		return browsedMsg{node: node, refs: refs, err: err, push: push}
	}
}

func (m *browserModel) nodeInfo(node string) tea.Cmd {
	c := m.conn
	return func() tea.Msg {
		text, err := engine.Do(c.e, "node_info", func(ctx context.Context) (string, error) {
			return c.s.NodeInfo(ctx, client.TextNode(node))
		})
		return infoMsg{text: text, err: err}
	}
}

func (m *browserModel) current() string {
	if len(m.path) == 0 {
		return m.opts.node
	}
	return m.path[len(m.path)-1]
}

func (m *browserModel) quit() (tea.Model, tea.Cmd) {
	if m.conn != nil {
		m.conn.close(context.Background())
		m.conn = nil
	}
	return m, tea.Quit
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.state == stateGoto {
			return m.updateGoto(msg)
		}
		return m.updateKeys(msg)

	case spinner.TickMsg:
		if m.state != stateLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.conn = msg.conn
		return m, m.browse(m.opts.node, true)

	case browsedMsg:
		m.state = stateList
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		if msg.push {
			m.path = append(m.path, msg.node)
		}
		m.refs = msg.refs
		m.selected = 0

	case infoMsg:
		m.state = stateInfo
		m.info = msg.text
		m.err = msg.err
	}
	return m, nil
}

func (m *browserModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.conn == nil {
		if msg.String() == "q" {
			return m.quit()
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m.quit()

	case "up", "k":
		if m.state == stateList && m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.state == stateList && m.selected < len(m.refs)-1 {
			m.selected++
		}

	case "enter", "right", "l":
		if m.state == stateList && len(m.refs) > 0 {
			m.state = stateLoading
			return m, tea.Batch(m.spinner.Tick, m.browse(m.refs[m.selected].NodeID, true))
		}

	case "backspace", "left", "h":
		if m.state == stateList && len(m.path) > 1 {
			m.path = m.path[:len(m.path)-1]
			m.state = stateLoading
			return m, tea.Batch(m.spinner.Tick, m.browse(m.current(), false))
		}

	case "i":
		if m.state == stateList && len(m.refs) > 0 {
			m.state = stateLoading
			return m, tea.Batch(m.spinner.Tick, m.nodeInfo(m.refs[m.selected].NodeID))
		}

	case "g":
		if m.state == stateList {
			m.state = stateGoto
			m.input.SetValue("")
			m.input.Focus()
			return m, textinput.Blink
		}

	case "esc":
		if m.state == stateInfo {
			m.state = stateList
			m.info = ""
			m.err = nil
		}
	}
	return m, nil
}

func (m *browserModel) updateGoto(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.input.Blur()
		m.state = stateList
		return m, nil
	case "enter":
		node := strings.TrimSpace(m.input.Value())
		m.input.Blur()
		if node == "" {
			m.state = stateList
			return m, nil
		}
		m.state = stateLoading
		return m, tea.Batch(m.spinner.Tick, m.browse(node, true))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *browserModel) View() string {
	if m.conn == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return m.spinner.View() + " connecting to " + m.opts.url
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("OPC UA Browser"))
	b.WriteString(" ")
	b.WriteString(m.opts.url)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(strings.Join(m.path, " › ")))
	b.WriteString("\n\n")

	switch m.state {
	case stateLoading:
		b.WriteString(m.spinner.View() + " loading...\n")

	case stateList, stateGoto:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		if len(m.refs) == 0 {
			b.WriteString(helpStyle.Render("(no children)"))
			b.WriteString("\n")
		}
		for i, r := range m.refs {
			line := m.formatRef(r)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateGoto {
			b.WriteString(m.input.View())
			b.WriteString("\n")
			b.WriteString(helpStyle.Render("enter browse • esc cancel"))
		} else {
			b.WriteString(helpStyle.Render("↑/↓ select • enter open • ← back • i info • g go to • q quit"))
		}

	case stateInfo:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(infoStyle.Render(m.info))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("esc back • q quit"))
	}

	return b.String()
}

func (m *browserModel) formatRef(r client.Reference) string {
	name := nodeStyle.Render(r.DisplayName)
	if r.Class == ua.NodeClassObject {
		name += "/"
	}
	return name + "  " + classStyle.Render(className(r)) + "  " + r.NodeID
}

func runInteractive(ctx context.Context, opts clientOptions) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errNotTerminal
	}
	p := tea.NewProgram(newBrowserModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/windowbus/internal/util"
)

// timeLayout is how entry timestamps are rendered.
const timeLayout = "15:04:05.000"

// eventMsg carries one observed event into the model.
type eventMsg Entry

// feedClosedMsg is sent once the feed's queue is closed.
type feedClosedMsg struct{}

type keyMap struct {
	Quit   key.Binding
	Clear  key.Binding
	Follow key.Binding
	Filter key.Binding
	Apply  key.Binding
	Cancel key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear"),
	),
	Follow: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "follow"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Apply: key.NewBinding(
		key.WithKeys("enter"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
	),
}

// Model is the bubbletea model for the live event view.
type Model struct {
	feed      *Feed
	title     string
	maxEvents int
	entries   []Entry
	total     int
	follow    bool
	closed    bool

	// filter hides entries whose name does not contain it
	filter    string
	filtering bool
	input     textinput.Model

	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

// NewModel builds a view of feed that keeps at most maxEvents entries.
func NewModel(feed *Feed, title string, maxEvents int) Model {
	if maxEvents <= 0 {
		maxEvents = 1
	}
	input := textinput.New()
	input.Prompt = "/"
	input.Placeholder = "event name"
	input.CharLimit = 128
	return Model{
		feed:      feed,
		title:     title,
		maxEvents: maxEvents,
		follow:    true,
		input:     input,
	}
}

// waitForEvent blocks on the feed for the next entry.
func waitForEvent(feed *Feed) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-feed.Events()
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(e)
	}
}

// Init starts reading the feed.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.feed)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			return m.handleFilterInput(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Clear):
			m.entries = nil
			m.refresh()
			return m, nil
		case key.Matches(msg, keys.Follow):
			m.follow = !m.follow
			m.refresh()
			return m, nil
		case key.Matches(msg, keys.Filter):
			m.filtering = true
			m.input.SetValue(m.filter)
			m.input.CursorEnd()
			return m, m.input.Focus()
		case key.Matches(msg, keys.Cancel):
			m.filter = ""
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.contentSize()
		if !m.ready {
			m.viewport = viewport.New(w, h)
			m.ready = true
		} else {
			m.viewport.Width = w
			m.viewport.Height = h
		}
		m.refresh()

	case eventMsg:
		m.add(Entry(msg))
		m.refresh()
		return m, waitForEvent(m.feed)

	case feedClosedMsg:
		m.closed = true
		return m, nil
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleFilterInput edits the filter while the prompt is open. The filter
// applies as it is typed; esc restores the previous one.
func (m Model) handleFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, keys.Apply):
		m.filtering = false
		m.input.Blur()
		m.filter = strings.TrimSpace(m.input.Value())
		m.refresh()
		return m, nil
	case key.Matches(msg, keys.Cancel):
		m.filtering = false
		m.input.Blur()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.refresh()
	return m, cmd
}

// activeFilter is the filter currently narrowing the view.
func (m Model) activeFilter() string {
	if m.filtering {
		return strings.TrimSpace(m.input.Value())
	}
	return m.filter
}

func (m *Model) add(e Entry) {
	m.total++
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.maxEvents; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
}

// contentSize is the viewport size inside the bordered box, below the header
// and above the help line.
func (m Model) contentSize() (int, int) {
	w := m.width - 2
	h := m.height - 4
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderEntries())
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderEntries() string {
	if len(m.entries) == 0 {
		return statusStyle.Render("waiting for events...")
	}
	filter := m.activeFilter()
	lines := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		if filter != "" && !strings.Contains(e.Name, filter) {
			continue
		}
		lines = append(lines, renderEntry(e, m.viewport.Width))
	}
	if len(lines) == 0 {
		return statusStyle.Render(fmt.Sprintf("no events match %q", filter))
	}
	return strings.Join(lines, "\n")
}

// renderEntry renders one event on a single row of at most width columns.
func renderEntry(e Entry, width int) string {
	prefix := timeStyle.Render(e.Time.Format(timeLayout)) + " " + nameStyle.Render(e.Name)
	room := width - lipgloss.Width(prefix) - 1
	if room <= 0 {
		return util.TruncateANSI(prefix, width)
	}
	return prefix + " " + util.FitLine(e.Payload, room)
}

// View renders the model
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	status := fmt.Sprintf("%d events", m.total)
	if d := m.feed.Dropped(); d > 0 {
		status += " " + droppedStyle.Render(fmt.Sprintf("(%d dropped)", d))
	}
	if m.filter != "" && !m.filtering {
		status += fmt.Sprintf(" | filter %q", m.filter)
	}
	if m.closed {
		status += " | feed closed"
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(m.title), "  ", statusStyle.Render(status))

	follow := "off"
	if m.follow {
		follow = "on"
	}
	help := helpStyle.Render(fmt.Sprintf("q quit | c clear | f follow (%s) | / filter | ↑/↓ scroll", follow))
	if m.filtering {
		help = m.input.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		contentStyle.Render(m.viewport.View()),
		help)
}

// Entries returns the entries currently on screen.
func (m Model) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

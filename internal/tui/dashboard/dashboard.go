// Package dashboard renders the live monitor view: nodes, recent
// messages, the activity feed and the scheduler/chatbot state.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/scheduler"
)

// TickMsg drives the periodic data refresh.
type TickMsg time.Time

// Sources are snapshot functions pulled on every refresh. The model
// never holds locks; each source copies under its own lock.
type Sources struct {
	Nodes         func() []mesh.Node
	Messages      func() []mesh.Message
	Activity      func() []events.Entry
	Scheduler     func() scheduler.Status
	AssistantOn   func() bool
	AssistantBusy func() bool
	Stats         func() mesh.Stats
}

// KeyMap defines dashboard keybindings.
type KeyMap struct {
	Refresh key.Binding
	Pause   key.Binding
	Quit    key.Binding
}

var dashKeys = KeyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Pause:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	recvStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	sentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	alertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Model is the dashboard bubbletea model.
type Model struct {
	src      Sources
	interval time.Duration

	width   int
	height  int
	paused  bool
	spin    spinner.Model
	started time.Time

	nodes    []mesh.Node
	messages []mesh.Message
	activity []events.Entry
	sched    scheduler.Status
	botOn    bool
	botBusy  bool
	stats    mesh.Stats
}

// New creates a dashboard refreshing every interval.
func New(src Sources, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		src:      src,
		interval: interval,
		width:    80,
		height:   24,
		spin:     sp,
		started:  time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.spin.Tick, func() tea.Msg { return TickMsg(time.Now()) })
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, dashKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, dashKeys.Pause):
			m.paused = !m.paused
			return m, nil
		case key.Matches(msg, dashKeys.Refresh):
			m.refresh()
			return m, nil
		}
		return m, nil

	case TickMsg:
		if !m.paused {
			m.refresh()
		}
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) refresh() {
	m.nodes = m.src.Nodes()
	m.messages = m.src.Messages()
	m.activity = m.src.Activity()
	m.sched = m.src.Scheduler()
	m.botOn = m.src.AssistantOn()
	m.botBusy = m.src.AssistantBusy()
	m.stats = m.src.Stats()
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	inner := m.width - 6
	if inner < 20 {
		inner = 20
	}

	b.WriteString(panelStyle.Width(inner).Render(m.renderNodes()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Width(inner).Render(m.renderMessages()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Width(inner).Render(m.renderActivity()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  r refresh · p pause · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderHeader() string {
	sched := "auto-send OFF"
	if m.sched.Enabled {
		sched = fmt.Sprintf("auto-send every %ds (next in %ds)", m.sched.IntervalSec, m.sched.NextInSec)
	}

	bot := "chatbot OFF"
	switch {
	case m.botOn && m.botBusy:
		bot = m.spin.View() + "chatbot thinking"
	case m.botOn:
		bot = "chatbot ON"
	}

	paused := ""
	if m.paused {
		paused = alertStyle.Render("  [PAUSED]")
	}

	line := fmt.Sprintf("%s %s  %s  %s  rx:%d tx:%d msgs:%d%s",
		titleStyle.Render("meshmon"),
		dimStyle.Render("up "+formatAge(time.Since(m.started))),
		dimStyle.Render(sched),
		dimStyle.Render(bot),
		m.stats.PacketsRx, m.stats.PacketsTx, m.stats.MessagesSeen,
		paused,
	)
	return line
}

func (m Model) renderNodes() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Nodes (%d)", len(m.nodes))))
	b.WriteString("\n")

	if len(m.nodes) == 0 {
		b.WriteString(dimStyle.Render("nothing heard yet"))
		return b.String()
	}

	rows := m.nodes
	if len(rows) > 8 {
		rows = rows[:8]
	}
	for _, n := range rows {
		name := runewidth.Truncate(n.DisplayName(), 24, "…")
		name = runewidth.FillRight(name, 24)

		mark := " "
		style := dimStyle
		if n.Selected {
			mark = "*"
			style = selectedStyle
		}

		sig := "no signal"
		if n.HasSignal {
			sig = fmt.Sprintf("SNR %.1fdB RSSI %ddBm", n.SNR, n.RSSI)
		}

		bat := ""
		if n.Battery != nil {
			if *n.Battery > 100 {
				bat = " PWR"
			} else {
				bat = fmt.Sprintf(" %d%%", *n.Battery)
			}
		}

		age := ""
		if !n.LastHeard.IsZero() {
			age = " " + formatAge(time.Since(n.LastHeard))
		}

		b.WriteString(style.Render(fmt.Sprintf("%s %s %s%s%s", mark, name, sig, bat, age)))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderMessages() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Messages"))
	b.WriteString("\n")

	if len(m.messages) == 0 {
		b.WriteString(dimStyle.Render("no messages yet"))
		return b.String()
	}

	// Same convention as the menu: ← received, → sent.
	for _, msg := range m.messages {
		style := recvStyle
		arrow := "←"
		if msg.Direction == mesh.Sent {
			style = sentStyle
			arrow = "→"
		}
		body := runewidth.Truncate(msg.Body, 60, "…")
		b.WriteString(style.Render(fmt.Sprintf("[%s] %s %s: %s",
			msg.Time.Format("15:04:05"), arrow, msg.Node, body)))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderActivity() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Activity"))
	b.WriteString("\n")

	if len(m.activity) == 0 {
		b.WriteString(dimStyle.Render("quiet"))
		return b.String()
	}

	entries := m.activity
	if len(entries) > 6 {
		entries = entries[len(entries)-6:]
	}
	for _, e := range entries {
		b.WriteString(dimStyle.Render(e.String()))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatAge renders a duration as a compact age like "42s" or "5m".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

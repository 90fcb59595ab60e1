package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"sentinel-sim/internal/derive"
	"sentinel-sim/internal/sim"
)

const (
	maxLogLines         = 1000
	maxSectionHeightPct = 0.25
	commandTimeout      = 5 * time.Second
)

type model struct {
	opts   Options
	table  table.Model
	vp     viewport.Model
	alerts viewport.Model
	input  textinput.Model

	snap   sim.Snapshot
	points []derive.MapPoint
	have   bool

	logs      []string
	alertLogs []string
	seen      map[string]struct{}
	status    string
	source    string
	connected bool

	wrap       bool
	autoscroll bool
	summary    bool
	help       bool
	showMap    bool
	prompt     bool
	width      int
	height     int
}

func newModel(opts Options) model {
	if opts.TTL <= 0 {
		opts.TTL = derive.DefaultTTL
	}
	cols := []table.Column{
		{Title: "Gateway", Width: 16},
		{Title: "Region", Width: 28},
		{Title: "Link", Width: 8},
		{Title: "Status", Width: 10},
		{Title: "Online", Width: 9},
		{Title: "Alerts", Width: 6},
		{Title: "Health", Width: 6},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(6), table.WithFocused(true))
	return model{
		opts:       opts,
		table:      t,
		vp:         viewport.New(0, 0),
		alerts:     viewport.New(0, 0),
		seen:       make(map[string]struct{}),
		source:     opts.Source,
		connected:  opts.Connected,
		autoscroll: true,
		summary:    true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.alerts.Width = msg.Width
		m.layout()
		m.refreshLogs()
		m.refreshAlerts()
	case tea.KeyMsg:
		return m.handleKey(msg)
	case snapshotMsg:
		m.apply(msg.Snapshot)
	case statusMsg:
		m.status = msg.line
	case sourceMsg:
		m.source = msg.label
		m.connected = msg.connected
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prompt {
		switch msg.Type {
		case tea.KeyEnter:
			line := m.input.Value()
			m.prompt = false
			m.layout()
			cmd, err := parseCommand(line)
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.status = "sent: " + line
			return m, m.dispatch(cmd)
		case tea.KeyEsc:
			m.prompt = false
			m.layout()
			return m, nil
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}
	if m.help {
		switch msg.String() {
		case "?", "h", "esc":
			m.help = false
			m.layout()
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "w":
		m.wrap = !m.wrap
		m.refreshLogs()
		m.refreshAlerts()
		return m, nil
	case "s":
		m.autoscroll = !m.autoscroll
		if m.autoscroll {
			m.vp.GotoBottom()
			m.alerts.GotoTop()
		}
		return m, nil
	case "t":
		m.summary = !m.summary
		m.layout()
		return m, nil
	case "m":
		m.showMap = !m.showMap
		m.layout()
		return m, nil
	case "h", "?":
		m.help = !m.help
		return m, nil
	case ":":
		if m.opts.Controller == nil {
			m.status = "read-only feed: commands need a local engine"
			return m, nil
		}
		m.input = textinput.New()
		m.input.Placeholder = "reboot <gateway> | enable|disable|restart <node> | ack <alert>"
		if row := m.table.SelectedRow(); row != nil {
			m.input.SetValue("reboot " + row[0])
			m.input.CursorEnd()
		}
		m.input.Focus()
		m.prompt = true
		m.layout()
		return m, nil
	case "r":
		if m.opts.Controller == nil {
			return m, nil
		}
		if row := m.table.SelectedRow(); row != nil {
			m.status = "rebooting " + row[0]
			return m, m.dispatch(command{verb: verbReboot, target: row[0]})
		}
		return m, nil
	case "pgdown", "ctrl+n":
		if !m.autoscroll {
			m.vp.LineDown(10)
		}
		return m, nil
	case "pgup", "ctrl+p":
		if !m.autoscroll {
			m.vp.LineUp(10)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// dispatch runs c against the controller off the update loop.
func (m model) dispatch(c command) tea.Cmd {
	ctrl := m.opts.Controller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := c.apply(ctx, ctrl); err != nil {
			return statusMsg{line: fmt.Sprintf("%s %s failed: %v", c.verb, c.target, err)}
		}
		return statusMsg{line: fmt.Sprintf("%s %s ok", c.verb, c.target)}
	}
}

// apply folds a snapshot into the board.
func (m *model) apply(s sim.Snapshot) {
	m.snap = s
	m.have = true
	now := s.Time()
	m.points = derive.GatewayMapPoints(s, now, m.opts.TTL)

	gws := make(map[string]sim.GatewayView, len(s.Gateways))
	for _, g := range s.Gateways {
		gws[g.GatewayID] = g
	}
	rows := make([]table.Row, 0, len(m.points))
	online, total := 0, 0
	for _, p := range m.points {
		g := gws[p.ID]
		rows = append(rows, table.Row{
			p.ID,
			g.Region,
			strings.ToUpper(string(g.Backhaul)),
			string(p.Status),
			fmt.Sprintf("%d/%d", p.Online, p.Total),
			fmt.Sprintf("%d", p.Alerts),
			string(p.Health),
		})
		online += p.Online
		total += p.Total
	}
	m.table.SetRows(rows)

	line := fmt.Sprintf("%s tick gateways=%d nodes=%d online=%d/%d reporting=%d alerts=%d",
		styleDim.Render(now.UTC().Format(time.RFC3339)),
		len(s.Gateways), len(s.Nodes), online, total, len(s.Latest), len(s.Alerts))
	m.logs = appendCapped(m.logs, line)

	// snapshot alerts are newest first; log unseen ones oldest first
	for i := len(s.Alerts) - 1; i >= 0; i-- {
		a := s.Alerts[i]
		if _, ok := m.seen[a.ID]; ok {
			continue
		}
		m.seen[a.ID] = struct{}{}
		m.alertLogs = append([]string{renderAlert(a)}, m.alertLogs...)
		if len(m.alertLogs) > maxLogLines {
			m.alertLogs = m.alertLogs[:maxLogLines]
		}
	}
	if len(m.seen) > 4*maxLogLines {
		m.seen = make(map[string]struct{}, len(s.Alerts))
		for _, a := range s.Alerts {
			m.seen[a.ID] = struct{}{}
		}
	}
	m.layout()
	m.refreshLogs()
	m.refreshAlerts()
}

func appendCapped(lines []string, l string) []string {
	lines = append(lines, l)
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	return lines
}

func (m *model) layout() {
	maxLines := m.maxSectionLines()
	tableRows := len(m.points)
	if tableRows < 1 {
		tableRows = 1
	}
	if tableRows > maxLines {
		tableRows = maxLines
	}
	m.table.SetHeight(tableRows + 1)

	alertLines := len(m.alertLogs)
	if alertLines == 0 {
		alertLines = 1
	}
	if alertLines > maxLines {
		alertLines = maxLines
	}
	m.alerts.Height = alertLines

	extra := 0
	if m.prompt {
		extra = 1
	}
	bottom := lipgloss.Height(m.renderBottom())
	h := m.height - lipgloss.Height(m.table.View()) - (1 + m.alerts.Height) - bottom - extra - 4
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) refreshLogs() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) refreshAlerts() {
	content := "none"
	if len(m.alertLogs) > 0 {
		lines := m.alertLogs
		if m.wrap && m.alerts.Width > 0 {
			lines = make([]string, len(m.alertLogs))
			for i, l := range m.alertLogs {
				lines[i] = wordwrap.String(l, m.alerts.Width)
			}
		}
		content = strings.Join(lines, "\n")
	}
	m.alerts.SetContent(content)
	if m.autoscroll {
		m.alerts.GotoTop()
	}
}

func (m model) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

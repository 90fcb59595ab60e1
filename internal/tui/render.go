package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"sentinel-sim/internal/derive"
	"sentinel-sim/internal/sim"
)

var (
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleOn    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleOff   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	healthStyles = map[derive.Health]lipgloss.Style{
		derive.Green: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		derive.Amber: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		derive.Red:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		derive.Grey:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}

	severityStyles = map[sim.Severity]lipgloss.Style{
		sim.SeverityInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		sim.SeverityWarn:     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		sim.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

func indicator(on bool) string {
	if on {
		return styleOn.Render("●")
	}
	return styleOff.Render("●")
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", max(m.width, 1))
	sections := []string{m.table.View(), divider}
	if m.showMap {
		sections = append(sections, m.renderMap())
	} else {
		sections = append(sections, m.vp.View())
	}
	sections = append(sections, divider, styleTitle.Render("Alerts:"), m.alerts.View(), divider)
	if m.prompt {
		sections = append(sections, "Command (Enter to run, Esc to cancel): "+m.input.View())
	}
	sections = append(sections, m.renderBottom())
	return strings.Join(sections, "\n")
}

func renderAlert(a sim.Alert) string {
	st, ok := severityStyles[a.Severity]
	if !ok {
		st = styleDim
	}
	line := fmt.Sprintf("%s %s %s gw=%s", styleDim.Render(a.TS.UTC().Format(time.RFC3339)), st.Render(string(a.Rule)), a.ID, a.GatewayID)
	if a.NodeID != "" {
		line += " node=" + a.NodeID
	}
	return line + " " + a.Message
}

func (m model) renderSummary() string {
	if !m.have {
		return styleDim.Render("waiting for first snapshot")
	}
	bands := map[derive.Health]int{}
	online, total, alerts := 0, 0, 0
	for _, p := range m.points {
		bands[p.Health]++
		online += p.Online
		total += p.Total
		alerts += p.Alerts
	}
	open := 0
	for _, a := range m.snap.Alerts {
		if !a.Acked {
			open++
		}
	}
	parts := []string{
		styleTitle.Render("SUMMARY"),
		fmt.Sprintf("scale=%d", m.snap.Scale),
		fmt.Sprintf("regions=%d", derive.CountRegions(m.snap)),
		fmt.Sprintf("online=%d/%d", online, total),
		fmt.Sprintf("pressure=%d", alerts),
		fmt.Sprintf("open_alerts=%d", open),
	}
	for _, h := range []derive.Health{derive.Green, derive.Amber, derive.Red, derive.Grey} {
		parts = append(parts, healthStyles[h].Render(fmt.Sprintf("%s=%d", h, bands[h])))
	}
	return strings.Join(parts, " ")
}

func (m model) renderBottom() string {
	src := m.source
	if src == "" {
		src = "local"
	}
	line := fmt.Sprintf("Feed %s %s | Wrap %s | Scroll %s | Summary %s | Map %s | ? help",
		indicator(m.connected || m.have), src, indicator(m.wrap), indicator(m.autoscroll), indicator(m.summary), indicator(m.showMap))
	if m.status != "" {
		line += " | " + m.status
	}
	if m.summary {
		return m.renderSummary() + "\n" + line
	}
	return line
}

func (m model) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q        quit",
		" ↑/↓ j/k  select gateway",
		" r        reboot selected gateway",
		" :        command prompt",
		" w        toggle wrap",
		" s        toggle auto-scroll",
		" t        toggle summary footer",
		" m        toggle gateway map",
		" h/?      toggle this help view",
		"",
		"Commands:",
		" reboot <gateway>",
		" enable <node> | disable <node> | restart <node>",
		" ack <alert>",
		"",
		"When auto-scroll is disabled:",
		" pgdown/pgup  scroll the tick log",
	}
	return strings.Join(lines, "\n")
}

// renderMap plots gateways on an equirectangular grid coloured by health.
func (m model) renderMap() string {
	width := max(m.vp.Width, 10)
	height := max(m.vp.Height-2, 3)
	if len(m.points) == 0 {
		return "No gateways"
	}
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, p := range m.points {
		minLat, maxLat = math.Min(minLat, p.Lat), math.Max(maxLat, p.Lat)
		minLon, maxLon = math.Min(minLon, p.Lon), math.Max(maxLon, p.Lon)
	}
	// pad so markers never sit on the frame
	padLat := math.Max((maxLat-minLat)*0.05, 0.5)
	padLon := math.Max((maxLon-minLon)*0.05, 0.5)
	minLat, maxLat = minLat-padLat, maxLat+padLat
	minLon, maxLon = minLon-padLon, maxLon+padLon

	grid := make([][]string, height)
	for i := range grid {
		row := make([]string, width)
		for j := range row {
			row[j] = styleDim.Render(".")
		}
		grid[i] = row
	}
	for _, p := range m.points {
		x := int((p.Lon - minLon) / (maxLon - minLon) * float64(width-1))
		y := int((maxLat - p.Lat) / (maxLat - minLat) * float64(height-1))
		if y < 0 || y >= height || x < 0 || x >= width {
			continue
		}
		sym := "●"
		if p.Status != sim.GatewayOnline {
			sym = "○"
		}
		grid[y][x] = healthStyles[p.Health].Render(sym)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "lat %.2f..%.2f lon %.2f..%.2f N↑\n", maxLat, minLat, minLon, maxLon)
	for _, row := range grid {
		b.WriteString(strings.Join(row, ""))
		b.WriteByte('\n')
	}
	b.WriteString("●=online ○=rebooting/offline ")
	for _, h := range []derive.Health{derive.Green, derive.Amber, derive.Red, derive.Grey} {
		b.WriteString(healthStyles[h].Render("█") + "=" + string(h) + " ")
	}
	return strings.TrimRight(b.String(), " ")
}

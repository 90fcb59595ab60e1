// ColorStdoutWriter prints human-friendly, colorized telemetry to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"sentinel-sim/internal/config"
	"sentinel-sim/internal/telemetry"
	"sentinel-sim/internal/world"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints telemetry messages using ANSI colors.
type ColorStdoutWriter struct {
	cfg      *config.SimulationConfig
	reg      world.Registry
	out      io.Writer
	mu       sync.Mutex
	once     sync.Once
	gwColors map[string]string
	colorIdx int
}

var gatewayPalette = []string{colorRed, colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.SimulationConfig, reg world.Registry) *ColorStdoutWriter {
	return NewColorWriter(os.Stdout, cfg, reg)
}

// NewColorWriter creates a ColorStdoutWriter writing to out.
func NewColorWriter(out io.Writer, cfg *config.SimulationConfig, reg world.Registry) *ColorStdoutWriter {
	return &ColorStdoutWriter{
		cfg:      cfg,
		reg:      reg,
		out:      out,
		gwColors: make(map[string]string),
	}
}

func (w *ColorStdoutWriter) gatewayColor(id string) string {
	if c, ok := w.gwColors[id]; ok {
		return c
	}
	c := gatewayPalette[w.colorIdx%len(gatewayPalette)]
	w.gwColors[id] = c
	w.colorIdx++
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}

	fmt.Fprintln(w.out, "World:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Scale:\t%d\n", w.cfg.World.Scale)
	fmt.Fprintf(tw, "Seed:\t%d\n", w.cfg.World.Seed)
	fmt.Fprintf(tw, "Tick:\t%s\n", w.cfg.Tick())
	fmt.Fprintf(tw, "Gateways:\t%d\n", len(w.reg.Gateways))
	fmt.Fprintf(tw, "Nodes:\t%d\n", len(w.reg.Nodes))
	tw.Flush()

	if len(w.reg.Gateways) == 0 {
		fmt.Fprintln(w.out)
		return
	}
	fmt.Fprintln(w.out, "\nGateways:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tBackhaul\tNodes\tRegion\n")
	for _, g := range w.reg.Gateways {
		col := w.gatewayColor(g.GatewayID)
		fmt.Fprintf(tw, "%s%s%s\t%s\t%d\t%s\n", col, g.GatewayID, colorReset,
			strings.ToUpper(string(g.Backhaul)), len(w.reg.NodesOf(g.GatewayID)), g.Region)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single telemetry message in colorized format.
func (w *ColorStdoutWriter) Write(m telemetry.TelemetryMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)

	battColor := colorGreen
	switch {
	case m.StatusFlags.Has(telemetry.FlagLowBattery):
		battColor = colorRed
	case m.BatteryV < 3.8:
		battColor = colorYellow
	}
	linkColor := colorGreen
	if m.StatusFlags.Has(telemetry.FlagLinkDegraded) {
		linkColor = colorYellow
	}

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, m.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%sgw=%s%s ", w.gatewayColor(m.GatewayID), m.GatewayID, colorReset)
	fmt.Fprintf(w.out, "%snode=%s%s ", colorWhite, m.NodeID, colorReset)
	fmt.Fprintf(w.out, "%sseq=%d%s ", colorGray, m.Seq, colorReset)
	fmt.Fprintf(w.out, "%s%s%s ", colorBlue, m.Profile, colorReset)
	fmt.Fprintf(w.out, "%sbatt=%.2fV%s ", battColor, m.BatteryV, colorReset)
	if rssi, ok := m.RSSI(); ok {
		fmt.Fprintf(w.out, "%srssi=%d%s ", linkColor, rssi, colorReset)
	}
	fmt.Fprintf(w.out, "%st=%.1fC%s ", colorCyan, m.TemperatureC, colorReset)
	fmt.Fprintf(w.out, "%s%s%s", colorMagenta, telemetry.Summary(m.Payload), colorReset)
	if names := m.StatusFlags.Names(); len(names) > 0 {
		fmt.Fprintf(w.out, " %s%s%s", colorYellow, strings.Join(names, "|"), colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple telemetry messages.
func (w *ColorStdoutWriter) WriteBatch(ms []telemetry.TelemetryMessage) error {
	for _, m := range ms {
		_ = w.Write(m)
	}
	return nil
}

// WriteAlert prints an alert to STDOUT.
func (w *ColorStdoutWriter) WriteAlert(a Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	col := colorCyan
	switch a.Severity {
	case SeverityCritical:
		col = colorRed
	case SeverityWarn:
		col = colorYellow
	}
	fmt.Fprintf(w.out, "%s[%s]%s %sALERT %s%s %s gw=%s node=%s %s\n",
		colorGray, a.TS.Format(time.RFC3339), colorReset,
		col, a.Rule, colorReset, a.ID, a.GatewayID, a.NodeID, a.Message)
	return nil
}

// WriteState prints simulation state metrics to STDOUT.
func (w *ColorStdoutWriter) WriteState(row telemetry.SimulationStateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)
	fmt.Fprintf(w.out, "%s[%s]%s %sSTATE%s tick=%d nodes=%d emitted=%d thinned=%d offline=%d degraded=%d alerts=%d subs=%d %.2fms\n",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorBlue, colorReset, row.Tick, row.Nodes, row.Emitted, row.Thinned,
		row.Offline, row.Degraded, row.Alerts, row.Subscribers, row.DurationMS)
	return nil
}

package sim

import (
	"regexp"
	"testing"
	"time"

	"sentinel-sim/internal/telemetry"
	"sentinel-sim/internal/world"
)

func singleNode(p telemetry.Profile) world.Registry {
	reg := testRegistry()
	reg.Nodes = reg.Nodes[:1]
	reg.Nodes[0].Profile = p
	return reg
}

func TestLowBatteryDedupWindow(t *testing.T) {
	cfg := quietConfig()
	cfg.Alerts.LowBatteryProbability = 1
	cfg.Settings.LowBatteryVolts = 5
	w := &captureWriter{}
	e, clk := newTestEngine(t, cfg, singleNode(telemetry.ProfileSVS), WithWriter(w))

	e.Tick(bg)
	clk.Advance(10 * time.Second)
	e.Tick(bg)
	if got := len(e.Alerts()); got != 1 {
		t.Fatalf("alert inside dedup window should be skipped, have %d", got)
	}
	clk.Advance(25 * time.Second)
	e.Tick(bg)
	alerts := e.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("expected a second alert after the window, have %d", len(alerts))
	}
	if !alerts[0].TS.After(alerts[1].TS) {
		t.Fatalf("alerts should be newest first")
	}
	a := alerts[0]
	if a.Rule != RuleLowBattery || a.Severity != SeverityWarn || a.NodeID != "node-1" || a.GatewayID != "gw-a" {
		t.Fatalf("unexpected alert %+v", a)
	}
	if len(w.alerts) != 2 {
		t.Fatalf("alert sink got %d alerts", len(w.alerts))
	}
}

func TestLowBatterySkipsSilentNodes(t *testing.T) {
	cfg := quietConfig()
	cfg.Alerts.LowBatteryProbability = 1
	cfg.Settings.LowBatteryVolts = 5
	e, clk := newTestEngine(t, cfg, singleNode(telemetry.ProfileSVS))

	e.Tick(bg)
	if got := len(e.Alerts()); got != 1 {
		t.Fatalf("expected one alert from a reporting node, have %d", got)
	}
	if _, err := e.ControlNodes(bg, NodeControl{Action: ActionDisable, NodeIDs: []string{"node-1"}}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	// past the dedup window, the last reading is still low but no longer fresh
	for i := 0; i < 4; i++ {
		clk.Advance(35 * time.Second)
		e.Tick(bg)
	}
	if got := len(e.Alerts()); got != 1 {
		t.Fatalf("offline node raised LOW_BATTERY, have %d alerts", got)
	}

	if _, err := e.ControlNodes(bg, NodeControl{Action: ActionEnable, NodeIDs: []string{"node-1"}}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	clk.Advance(time.Second)
	e.Tick(bg)
	if got := len(e.Alerts()); got != 2 {
		t.Fatalf("node reporting again should alert, have %d", got)
	}
}

func TestAlertIDFormat(t *testing.T) {
	cfg := quietConfig()
	cfg.Alerts.AnomalyProbability = 1
	e, _ := newTestEngine(t, cfg, testRegistry())
	e.Tick(bg)
	alerts := e.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("expected one anomaly alert, got %d", len(alerts))
	}
	if !regexp.MustCompile(`^AL-[0-9A-F]{8}$`).MatchString(alerts[0].ID) {
		t.Fatalf("bad alert id %q", alerts[0].ID)
	}
	if alerts[0].Severity != SeverityInfo {
		t.Fatalf("anomaly severity = %s", alerts[0].Severity)
	}
}

func TestMissingHeartbeat(t *testing.T) {
	cfg := quietConfig()
	cfg.Alerts.MissingHeartbeatProbability = 1
	e, clk := newTestEngine(t, cfg, singleNode(telemetry.ProfileAAQ))
	if _, err := e.ControlNodes(bg, NodeControl{Action: ActionDisable, NodeIDs: []string{"node-1"}}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	e.Tick(bg)
	if len(e.Alerts()) != 0 {
		t.Fatalf("silent node should not alert before the heartbeat limit")
	}
	clk.Advance(11 * time.Minute)
	e.Tick(bg)
	alerts := e.Alerts()
	if len(alerts) != 1 || alerts[0].Rule != RuleMissingHeartbeat || alerts[0].Severity != SeverityCritical {
		t.Fatalf("expected a missing heartbeat alert, got %+v", alerts)
	}
}

func TestSeismicTriggerAlerts(t *testing.T) {
	e, _ := newTestEngine(t, quietConfig(), singleNode(telemetry.ProfileSMS))
	msg := telemetry.TelemetryMessage{
		NodeID:    "node-1",
		GatewayID: "gw-a",
		Profile:   telemetry.ProfileSMS,
		Payload:   telemetry.SeismicPayload{PGAg: 0.3, Triggered: true},
	}
	e.mu.Lock()
	raised := e.evaluateAlertsLocked(epoch, []telemetry.TelemetryMessage{msg})
	e.mu.Unlock()
	if len(raised) != 1 || raised[0].Rule != RuleSeismicTrigger || raised[0].Severity != SeverityCritical {
		t.Fatalf("expected a seismic alert, got %+v", raised)
	}
}

func TestAlertCap(t *testing.T) {
	cfg := quietConfig()
	cfg.Alerts.MaxAlerts = 3
	e, _ := newTestEngine(t, cfg, testRegistry())
	for i := 0; i < 10; i++ {
		e.pushAlert(Alert{ID: string(rune('a' + i))})
	}
	if len(e.alerts) != 3 {
		t.Fatalf("alerts = %d, want 3", len(e.alerts))
	}
	if e.alerts[0].ID != "j" || e.alerts[2].ID != "h" {
		t.Fatalf("wrong retention order: %+v", e.alerts)
	}
}

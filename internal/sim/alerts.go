package sim

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentinel-sim/internal/telemetry"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Rule names the heuristic that raised an alert.
type Rule string

const (
	RuleLowBattery       Rule = "LOW_BATTERY"
	RuleMissingHeartbeat Rule = "MISSING_HEARTBEAT"
	RuleAnomalyFlag      Rule = "ANOMALY_FLAG"
	RuleSeismicTrigger   Rule = "SEISMIC_TRIGGER"
)

// Alert is one raised condition. Only Acked changes after creation.
type Alert struct {
	ID        string    `json:"id"`
	TS        time.Time `json:"ts"`
	Severity  Severity  `json:"severity"`
	Rule      Rule      `json:"rule"`
	GatewayID string    `json:"gateway_id"`
	NodeID    string    `json:"node_id"`
	Message   string    `json:"message"`
	Acked     bool      `json:"acked"`
}

const anomalyMask = telemetry.FlagSensorFault | telemetry.FlagTamper | telemetry.FlagMemoryLow

// evaluateAlertsLocked runs the heuristics for one tick and returns the
// alerts it added, oldest first.
func (e *Engine) evaluateAlertsLocked(now time.Time, emitted []telemetry.TelemetryMessage) []Alert {
	if len(e.nodes) == 0 {
		return nil
	}
	var raised []Alert
	add := func(rule Rule, sev Severity, node telemetry.NodeRegistryItem, msg string) {
		if e.recentlyRaised(rule, node.NodeID, now) {
			return
		}
		a := Alert{
			ID:        e.alertID(),
			TS:        now.UTC(),
			Severity:  sev,
			Rule:      rule,
			GatewayID: node.GatewayID,
			NodeID:    node.NodeID,
			Message:   msg,
		}
		e.pushAlert(a)
		raised = append(raised, a)
	}

	ac := e.cfg.Alerts
	if e.rand.Float64() < ac.LowBatteryProbability {
		cands := e.candidates(func(n telemetry.NodeRegistryItem) bool {
			m, ok := e.latest[n.NodeID]
			return ok && e.reportingLocked(n, m, now) && m.BatteryV < e.settings.LowBatteryVolts
		})
		if n, ok := e.pickNode(cands); ok {
			m := e.latest[n.NodeID]
			add(RuleLowBattery, SeverityWarn, n,
				fmt.Sprintf("battery %.2fV below %.2fV", m.BatteryV, e.settings.LowBatteryVolts))
		}
	}

	if e.rand.Float64() < ac.MissingHeartbeatProbability {
		limit := time.Duration(e.settings.HeartbeatMissingMinutes) * time.Minute
		cands := e.candidates(func(n telemetry.NodeRegistryItem) bool {
			m, ok := e.latest[n.NodeID]
			if !ok {
				return now.Sub(e.startedAt) >= limit
			}
			return now.Sub(m.Timestamp) > limit
		})
		if n, ok := e.pickNode(cands); ok {
			add(RuleMissingHeartbeat, SeverityCritical, n,
				fmt.Sprintf("no heartbeat for more than %d min", e.settings.HeartbeatMissingMinutes))
		}
	}

	if e.rand.Float64() < ac.AnomalyProbability {
		cands := e.candidates(func(n telemetry.NodeRegistryItem) bool {
			m, ok := e.latest[n.NodeID]
			return ok && m.StatusFlags&anomalyMask != 0
		})
		if len(cands) == 0 {
			cands = e.candidates(func(n telemetry.NodeRegistryItem) bool {
				_, ok := e.latest[n.NodeID]
				return ok
			})
		}
		if n, ok := e.pickNode(cands); ok {
			m := e.latest[n.NodeID]
			msg := "anomalous reading"
			if names := (m.StatusFlags & anomalyMask).Names(); len(names) > 0 {
				msg = "status " + strings.Join(names, ",")
			}
			add(RuleAnomalyFlag, SeverityInfo, n, msg)
		}
	}

	for _, m := range emitted {
		if !telemetry.SeismicTriggered(m.Payload) {
			continue
		}
		n, ok := e.nodeLocked(m.NodeID)
		if !ok {
			continue
		}
		p := m.Payload.(telemetry.SeismicPayload)
		add(RuleSeismicTrigger, SeverityCritical, n, fmt.Sprintf("PGA %.3fg over trigger", p.PGAg))
	}
	return raised
}

// reportingLocked reports whether n is online behind an online gateway and m,
// its latest message, is still inside the online window.
func (e *Engine) reportingLocked(n telemetry.NodeRegistryItem, m telemetry.TelemetryMessage, now time.Time) bool {
	return e.health.State(n.NodeID) != telemetry.StateOffline &&
		e.gwStatus[n.GatewayID] == GatewayOnline &&
		now.Sub(m.Timestamp) <= e.cfg.Derive.OnlineTTL
}

func (e *Engine) candidates(keep func(telemetry.NodeRegistryItem) bool) []telemetry.NodeRegistryItem {
	var out []telemetry.NodeRegistryItem
	for _, n := range e.nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func (e *Engine) pickNode(ns []telemetry.NodeRegistryItem) (telemetry.NodeRegistryItem, bool) {
	if len(ns) == 0 {
		return telemetry.NodeRegistryItem{}, false
	}
	return ns[e.rand.Intn(len(ns))], true
}

// recentlyRaised reports whether the newest alert for (rule, node) falls
// inside the dedup window.
func (e *Engine) recentlyRaised(rule Rule, nodeID string, now time.Time) bool {
	for _, a := range e.alerts {
		if a.Rule == rule && a.NodeID == nodeID {
			return now.Sub(a.TS) < e.cfg.Alerts.DedupWindow
		}
	}
	return false
}

// pushAlert prepends a and trims to the retention cap.
func (e *Engine) pushAlert(a Alert) {
	alerts := make([]Alert, 0, min(len(e.alerts)+1, e.cfg.Alerts.MaxAlerts))
	alerts = append(alerts, a)
	for _, old := range e.alerts {
		if len(alerts) >= e.cfg.Alerts.MaxAlerts {
			break
		}
		alerts = append(alerts, old)
	}
	e.alerts = alerts
}

func (e *Engine) alertID() string {
	id, err := uuid.NewRandomFromReader(e.rand)
	if err != nil {
		id = uuid.New()
	}
	return "AL-" + strings.ToUpper(id.String()[:8])
}

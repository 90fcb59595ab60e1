package sim

import (
	"time"

	"sentinel-sim/internal/telemetry"
)

// GatewayStatus is the runtime state of a gateway.
type GatewayStatus string

const (
	GatewayOnline    GatewayStatus = "online"
	GatewayRebooting GatewayStatus = "rebooting"
	GatewayOffline   GatewayStatus = "offline"
)

// GatewayView is a registry item plus its runtime freshness.
type GatewayView struct {
	telemetry.GatewayRegistryItem
	Status   GatewayStatus `json:"status"`
	LastSeen time.Time     `json:"last_seen"`
}

// Settings are the operator-editable alert thresholds.
type Settings struct {
	LowBatteryVolts         float64 `json:"low_battery_volts"`
	HeartbeatMissingMinutes int     `json:"heartbeat_missing_minutes"`
}

// Snapshot is one consistent view of the world. Every slice and map is
// owned by the snapshot; later engine mutations never show through.
type Snapshot struct {
	Type     string                                `json:"type"`
	TS       int64                                 `json:"ts"` // epoch ms
	Scale    int                                   `json:"scale"`
	Gateways []GatewayView                         `json:"gateways"`
	Nodes    []telemetry.NodeRegistryItem          `json:"nodes"`
	Latest   map[string]telemetry.TelemetryMessage `json:"latest"`
	Alerts   []Alert                               `json:"alerts"`
	Settings Settings                              `json:"settings"`

	version uint64
}

// Time returns the snapshot timestamp.
func (s Snapshot) Time() time.Time { return time.UnixMilli(s.TS) }

// Version orders snapshots from one engine; later snapshots compare higher.
func (s Snapshot) Version() uint64 { return s.version }

// Gateway looks up a gateway view by id.
func (s Snapshot) Gateway(id string) (GatewayView, bool) {
	for _, g := range s.Gateways {
		if g.GatewayID == id {
			return g, true
		}
	}
	return GatewayView{}, false
}

// NodesOf returns the nodes attached to gatewayID.
func (s Snapshot) NodesOf(gatewayID string) []telemetry.NodeRegistryItem {
	var out []telemetry.NodeRegistryItem
	for _, n := range s.Nodes {
		if n.GatewayID == gatewayID {
			out = append(out, n)
		}
	}
	return out
}

// snapshotLocked copies engine state into a fresh Snapshot. e.mu must be
// held. Registry slices are already copy-on-write so they are shared; the
// per-snapshot collections are copied.
func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	e.version++
	gws := make([]GatewayView, len(e.gateways))
	for i, g := range e.gateways {
		gws[i] = GatewayView{
			GatewayRegistryItem: g,
			Status:              e.gwStatus[g.GatewayID],
			LastSeen:            e.lastSeen[g.GatewayID],
		}
	}
	latest := make(map[string]telemetry.TelemetryMessage, len(e.latest))
	for id, m := range e.latest {
		latest[id] = m
	}
	alerts := make([]Alert, len(e.alerts))
	copy(alerts, e.alerts)
	return Snapshot{
		Type:     "snapshot",
		TS:       now.UnixMilli(),
		Scale:    int(e.scale),
		Gateways: gws,
		Nodes:    e.nodes,
		Latest:   latest,
		Alerts:   alerts,
		Settings: e.settings,
		version:  e.version,
	}
}

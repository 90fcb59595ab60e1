package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"sentinel-sim/internal/clock"
	"sentinel-sim/internal/config"
	"sentinel-sim/internal/telemetry"
	"sentinel-sim/internal/world"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// quietConfig turns off every random source that would make small-world
// tests flaky: no initial failures, no flips, no thinning, no heuristics.
func quietConfig() *config.SimulationConfig {
	cfg := config.Default()
	zero := 0.0
	cfg.Engine.OfflinePct = &zero
	cfg.Engine.DegradedPct = &zero
	cfg.Engine.FlipProbability = 0
	cfg.Engine.Thinning = nil
	cfg.Engine.Flags = telemetry.FlagProbabilities{}
	cfg.Alerts.LowBatteryProbability = 0
	cfg.Alerts.MissingHeartbeatProbability = 0
	cfg.Alerts.AnomalyProbability = 0
	return cfg
}

func testRegistry() world.Registry {
	gw := func(id string, lat float64) telemetry.GatewayRegistryItem {
		return telemetry.GatewayRegistryItem{
			GatewayID:   id,
			DisplayName: id,
			Region:      "Test Region",
			Backhaul:    telemetry.Backhaul4G,
			Location:    telemetry.Location{Lat: lat, Lon: 10},
		}
	}
	node := func(id, gwID string, p telemetry.Profile) telemetry.NodeRegistryItem {
		return telemetry.NodeRegistryItem{
			NodeID:      id,
			DisplayName: id,
			Profile:     p,
			Role:        telemetry.RoleSensor,
			Networks:    []telemetry.Network{telemetry.NetworkLoRa},
			GatewayID:   gwID,
			SiteID:      "site-" + gwID,
			Location:    telemetry.Location{Lat: 1, Lon: 10},
		}
	}
	return world.Registry{
		Gateways: []telemetry.GatewayRegistryItem{gw("gw-a", 1), gw("gw-b", 2)},
		Nodes: []telemetry.NodeRegistryItem{
			node("node-1", "gw-a", telemetry.ProfileSVS),
			node("node-2", "gw-a", telemetry.ProfileAAQ),
			node("node-3", "gw-a", telemetry.ProfileTSR),
			node("node-4", "gw-b", telemetry.ProfileSSS),
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.SimulationConfig, reg world.Registry, opts ...Option) (*Engine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	base := []Option{WithClock(clk), WithRand(rand.New(rand.NewSource(7)))}
	e, err := New(cfg, reg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Stop)
	return e, clk
}

// recorder is a subscriber that keeps every snapshot it sees.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) deliver(s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

// captureWriter is an export sink that records everything.
type captureWriter struct {
	mu     sync.Mutex
	msgs   []telemetry.TelemetryMessage
	alerts []Alert
	states []telemetry.SimulationStateRow
	err    error
}

func (c *captureWriter) Write(m telemetry.TelemetryMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return c.err
}

func (c *captureWriter) WriteAlert(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func (c *captureWriter) WriteState(row telemetry.SimulationStateRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, row)
	return c.err
}

var errSink = errors.New("sink down")

func gatewayStatus(t *testing.T, s Snapshot, id string) GatewayStatus {
	t.Helper()
	g, ok := s.Gateway(id)
	if !ok {
		t.Fatalf("gateway %s missing from snapshot", id)
	}
	return g.Status
}

var bg = context.Background()

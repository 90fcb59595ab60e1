package api

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sentinel-sim/internal/clock"
	"sentinel-sim/internal/config"
	"sentinel-sim/internal/sim"
	"sentinel-sim/internal/telemetry"
	"sentinel-sim/internal/world"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testRegistry() world.Registry {
	gw := func(id string) telemetry.GatewayRegistryItem {
		return telemetry.GatewayRegistryItem{
			GatewayID:   id,
			DisplayName: id,
			Region:      "Region " + id,
			Backhaul:    telemetry.Backhaul4G,
			Location:    telemetry.Location{Lat: 10, Lon: 20},
		}
	}
	node := func(id, gwID string) telemetry.NodeRegistryItem {
		return telemetry.NodeRegistryItem{
			NodeID:    id,
			Profile:   telemetry.ProfileAAQ,
			Role:      telemetry.RoleSensor,
			Networks:  []telemetry.Network{telemetry.NetworkLoRa},
			GatewayID: gwID,
			SiteID:    "site-" + gwID,
			Location:  telemetry.Location{Lat: 10, Lon: 20},
		}
	}
	return world.Registry{
		Gateways: []telemetry.GatewayRegistryItem{gw("gw-a"), gw("gw-b")},
		Nodes:    []telemetry.NodeRegistryItem{node("node-1", "gw-a"), node("node-2", "gw-a"), node("node-3", "gw-b")},
	}
}

type fixture struct {
	engine *sim.Engine
	clock  *clock.Manual
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
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

	clk := clock.NewManual(epoch)
	e, err := sim.New(cfg, testRegistry(), sim.WithClock(clk), sim.WithRand(rand.New(rand.NewSource(3))))
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	t.Cleanup(e.Stop)
	s := New(e, Options{Derive: cfg.Derive, Now: clk.Now})
	return &fixture{engine: e, clock: clk, server: s}
}

// do runs one request through the full handler chain.
func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func bg() context.Context { return context.Background() }

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

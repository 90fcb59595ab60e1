package api

import (
	"net/http"
	"testing"
	"time"
)

func TestListGatewaysDerivesHealth(t *testing.T) {
	f := newFixture(t)
	f.engine.Tick(bg())

	w := f.do(t, http.MethodGet, "/api/gateways", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Gateways []struct {
			ID     string `json:"id"`
			Label  string `json:"label"`
			Health string `json:"health"`
		} `json:"gateways"`
		Regions int `json:"regions"`
	}
	decodeBody(t, w.Body.Bytes(), &out)
	if len(out.Gateways) != 2 || out.Regions != 2 {
		t.Fatalf("unexpected body: %s", w.Body)
	}
	if out.Gateways[0].Label != "Region gw-a · 4G · 2/2 nodes online" {
		t.Errorf("unexpected label %q", out.Gateways[0].Label)
	}
	if out.Gateways[0].Health != "green" {
		t.Errorf("expected green, got %s", out.Gateways[0].Health)
	}

	// past the online TTL every gateway goes red
	f.clock.Advance(time.Minute)
	w = f.do(t, http.MethodGet, "/api/gateways", "")
	decodeBody(t, w.Body.Bytes(), &out)
	if out.Gateways[0].Health != "red" {
		t.Errorf("stale gateway should be red, got %s", out.Gateways[0].Health)
	}
}

func TestListNodes(t *testing.T) {
	f := newFixture(t)
	f.engine.Tick(bg())

	w := f.do(t, http.MethodGet, "/api/nodes?gateway_id=gw-a", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Count int `json:"count"`
		Nodes []struct {
			NodeID string `json:"node_id"`
			Online bool   `json:"online"`
			Health string `json:"health"`
		} `json:"nodes"`
	}
	decodeBody(t, w.Body.Bytes(), &out)
	if out.Count != 2 {
		t.Fatalf("expected 2 nodes on gw-a, got %d", out.Count)
	}
	for _, n := range out.Nodes {
		if !n.Online || n.Health != "green" {
			t.Errorf("node %s should be online and green: %+v", n.NodeID, n)
		}
	}

	if w := f.do(t, http.MethodGet, "/api/nodes?gateway_id=gw-zz", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown gateway: expected 404, got %d", w.Code)
	}
}

func TestSeries(t *testing.T) {
	f := newFixture(t)
	f.engine.Tick(bg())

	w := f.do(t, http.MethodGet, "/api/series?metric=battery_v&buckets=6&step=1m", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var out struct {
		StepMS int64 `json:"step_ms"`
		Points []struct {
			N   int     `json:"n"`
			P50 float64 `json:"p50"`
		} `json:"points"`
	}
	decodeBody(t, w.Body.Bytes(), &out)
	if out.StepMS != 60000 || len(out.Points) != 6 {
		t.Fatalf("unexpected series: %s", w.Body)
	}
	if out.Points[5].N != 3 || out.Points[5].P50 <= 0 {
		t.Fatalf("newest bucket should cover every node: %+v", out.Points[5])
	}

	for _, q := range []string{"metric=altitude", "metric=lqi&buckets=zero", "metric=lqi&step=-1m", "metric=lqi&step=500us", ""} {
		if w := f.do(t, http.MethodGet, "/api/series?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", q, w.Code)
		}
	}
}

func TestSummaryAndHealthz(t *testing.T) {
	f := newFixture(t)
	f.engine.Tick(bg())

	w := f.do(t, http.MethodGet, "/api/summary", "")
	var out summary
	decodeBody(t, w.Body.Bytes(), &out)
	if out.Gateways != 2 || out.Nodes != 3 || out.Online != 3 || out.Regions != 2 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.GatewayBands["green"] != 2 {
		t.Fatalf("expected two green gateways: %+v", out.GatewayBands)
	}

	if w := f.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/snapshot", ""); w.Code != http.StatusOK {
		t.Fatalf("snapshot: expected 200, got %d", w.Code)
	}
}

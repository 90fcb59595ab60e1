package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sentinel-sim/internal/derive"
	"sentinel-sim/internal/sim"
)

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"gateways": derive.GatewayMapPoints(snap, s.now(), s.derive.OnlineTTL),
		"regions":  derive.CountRegions(snap),
	})
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	gw := r.URL.Query().Get("gateway_id")
	snap := s.engine.Snapshot()
	if gw != "" {
		if _, found := snap.Gateway(gw); !found {
			s.writeError(w, r, fmt.Errorf("%w: gateway %s", sim.ErrNotFound, gw))
			return
		}
	}
	nodes := derive.Nodes(snap, gw, s.now(), s.derive.OnlineTTL)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "nodes": nodes, "count": len(nodes)})
}

// summary is the fleet overview.
type summary struct {
	OK           bool              `json:"ok"`
	Scale        int               `json:"scale"`
	Gateways     int               `json:"gateways"`
	Regions      int               `json:"regions"`
	Nodes        int               `json:"nodes"`
	Online       int               `json:"online"`
	OpenAlerts   int               `json:"open_alerts"`
	Subscribers  int               `json:"subscribers"`
	Bands        derive.BandCounts `json:"bands"`
	GatewayBands map[string]int    `json:"gateway_bands"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	now := s.now()
	out := summary{
		OK:           true,
		Scale:        snap.Scale,
		Gateways:     len(snap.Gateways),
		Regions:      derive.CountRegions(snap),
		Nodes:        len(snap.Nodes),
		Subscribers:  s.engine.SubscriberCount(),
		Bands:        derive.FleetBands(snap, "", now),
		GatewayBands: map[string]int{},
	}
	for _, g := range snap.Gateways {
		h := derive.GatewayHealth(snap, g.GatewayID, now, s.derive.OnlineTTL)
		out.Online += h.Online
		out.GatewayBands[string(h.Band)]++
	}
	for _, a := range snap.Alerts {
		if !a.Acked {
			out.OpenAlerts++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric, err := derive.ParseMetric(q.Get("metric"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := derive.SeriesRequest{
		Metric:    metric,
		Buckets:   s.derive.SeriesBuckets,
		Step:      s.derive.SeriesStep,
		GatewayID: q.Get("gateway_id"),
		Now:       s.now(),
	}
	if v := q.Get("buckets"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: buckets must be a positive integer", sim.ErrInvalid))
			return
		}
		req.Buckets = n
	}
	if v := q.Get("step"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < derive.MinStep {
			s.writeError(w, r, fmt.Errorf("%w: step must be a duration of at least %s", sim.ErrInvalid, derive.MinStep))
			return
		}
		req.Step = d
	}
	points, err := derive.PercentileSeries(s.engine.Snapshot(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"metric":  metric,
		"step_ms": req.Step.Milliseconds(),
		"points":  points,
	})
}

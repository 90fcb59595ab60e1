package telemetry

import "time"

// SimulationStateRow captures per-tick engine state metrics.
type SimulationStateRow struct {
	Scale       int       `json:"scale"`
	Tick        uint64    `json:"tick"`
	Nodes       int       `json:"nodes"`
	Emitted     int       `json:"emitted"`
	Thinned     int       `json:"thinned"`
	Offline     int       `json:"offline"`
	Degraded    int       `json:"degraded"`
	Alerts      int       `json:"alerts"`
	Subscribers int       `json:"subscribers"`
	DurationMS  float64   `json:"duration_ms"`
	Timestamp   time.Time `json:"ts"`
}

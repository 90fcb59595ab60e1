// Package derive computes read-side views over engine snapshots: node and
// gateway health, map points and percentile series. Every function is pure.
package derive

import (
	"fmt"
	"strings"
	"time"

	"sentinel-sim/internal/sim"
	"sentinel-sim/internal/telemetry"
)

// DefaultTTL is how long a node counts as online after its last message.
const DefaultTTL = 12 * time.Second

// Health is a traffic-light colour.
type Health string

const (
	Green Health = "green"
	Amber Health = "amber"
	Red   Health = "red"
	Grey  Health = "grey"
)

// rank orders colours from best to worst.
func (h Health) rank() int {
	switch h {
	case Green:
		return 0
	case Amber:
		return 1
	case Red:
		return 2
	}
	return 3
}

// Worse reports whether h is a worse colour than o. Grey is worst.
func (h Health) Worse(o Health) bool { return h.rank() > o.rank() }

const alertMask = telemetry.FlagLowBattery | telemetry.FlagSensorFault | telemetry.FlagTamper

// IsNodeOnline reports whether msg is no older than ttl at now. A nil
// message is offline.
func IsNodeOnline(msg *telemetry.TelemetryMessage, now time.Time, ttl time.Duration) bool {
	if msg == nil {
		return false
	}
	return now.Sub(msg.Timestamp) <= ttl
}

// alerting reports whether a message carries alert pressure.
func alerting(m telemetry.TelemetryMessage) bool {
	return m.StatusFlags&alertMask != 0 || telemetry.SeismicTriggered(m.Payload)
}

// NodeHealth colours a single node.
func NodeHealth(msg *telemetry.TelemetryMessage, now time.Time, ttl time.Duration) Health {
	switch {
	case !IsNodeOnline(msg, now, ttl):
		return Grey
	case alerting(*msg):
		return Red
	case msg.StatusFlags.Has(telemetry.FlagLinkDegraded):
		return Amber
	}
	return Green
}

// Band colours a gateway from its node counts.
func Band(total, online, degraded int) Health {
	if total <= 0 {
		return Grey
	}
	onlineRatio := float64(online) / float64(total)
	degradedRatio := float64(degraded) / float64(total)
	switch {
	case onlineRatio < 0.6:
		return Red
	case onlineRatio < 0.85, degradedRatio > 0.2:
		return Amber
	}
	return Green
}

// GatewaySummary aggregates the nodes of one gateway.
type GatewaySummary struct {
	GatewayID     string  `json:"gateway_id"`
	Total         int     `json:"total"`
	Online        int     `json:"online"`
	Degraded      int     `json:"degraded"`
	Alerts        int     `json:"alerts"`
	OnlineRatio   float64 `json:"online_ratio"`
	DegradedRatio float64 `json:"degraded_ratio"`
	Band          Health  `json:"band"`
}

// GatewayHealth summarises gatewayID in snap. Degraded and alert counts look
// at each node's latest message whatever its age.
func GatewayHealth(snap sim.Snapshot, gatewayID string, now time.Time, ttl time.Duration) GatewaySummary {
	s := GatewaySummary{GatewayID: gatewayID}
	for _, n := range snap.Nodes {
		if n.GatewayID != gatewayID {
			continue
		}
		s.Total++
		m, ok := snap.Latest[n.NodeID]
		if !ok {
			continue
		}
		if IsNodeOnline(&m, now, ttl) {
			s.Online++
		}
		if m.StatusFlags.Has(telemetry.FlagLinkDegraded) {
			s.Degraded++
		}
		if m.StatusFlags&alertMask != 0 {
			s.Alerts++
		}
		if telemetry.SeismicTriggered(m.Payload) {
			s.Alerts++
		}
	}
	if s.Total > 0 {
		s.OnlineRatio = float64(s.Online) / float64(s.Total)
		s.DegradedRatio = float64(s.Degraded) / float64(s.Total)
	}
	s.Band = Band(s.Total, s.Online, s.Degraded)
	return s
}

// MapPoint is one gateway marker.
type MapPoint struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Label  string            `json:"label"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Health Health            `json:"health"`
	Status sim.GatewayStatus `json:"status"`
	GatewaySummary
}

// GatewayMapPoints builds one marker per gateway in snapshot order.
func GatewayMapPoints(snap sim.Snapshot, now time.Time, ttl time.Duration) []MapPoint {
	out := make([]MapPoint, 0, len(snap.Gateways))
	for _, g := range snap.Gateways {
		s := GatewayHealth(snap, g.GatewayID, now, ttl)
		out = append(out, MapPoint{
			ID:             g.GatewayID,
			Name:           g.DisplayName,
			Label:          fmt.Sprintf("%s · %s · %d/%d nodes online", g.Region, strings.ToUpper(string(g.Backhaul)), s.Online, s.Total),
			Lat:            g.Location.Lat,
			Lon:            g.Location.Lon,
			Health:         s.Band,
			Status:         g.Status,
			GatewaySummary: s,
		})
	}
	return out
}

// CountRegions returns the number of distinct gateway regions.
func CountRegions(snap sim.Snapshot) int {
	seen := make(map[string]struct{}, len(snap.Gateways))
	for _, g := range snap.Gateways {
		seen[g.Region] = struct{}{}
	}
	return len(seen)
}

// NodeView is a registry item annotated with its freshness and colour.
type NodeView struct {
	telemetry.NodeRegistryItem
	Online   bool                        `json:"online"`
	Health   Health                      `json:"health"`
	LastSeen *time.Time                  `json:"last_seen,omitempty"`
	Latest   *telemetry.TelemetryMessage `json:"latest,omitempty"`
}

// Nodes annotates the nodes of gatewayID, or every node when gatewayID is
// empty.
func Nodes(snap sim.Snapshot, gatewayID string, now time.Time, ttl time.Duration) []NodeView {
	out := make([]NodeView, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if gatewayID != "" && n.GatewayID != gatewayID {
			continue
		}
		v := NodeView{NodeRegistryItem: n, Health: Grey}
		if m, ok := snap.Latest[n.NodeID]; ok {
			ts := m.Timestamp
			v.LastSeen = &ts
			v.Latest = &m
			v.Online = IsNodeOnline(&m, now, ttl)
			v.Health = NodeHealth(&m, now, ttl)
		}
		out = append(out, v)
	}
	return out
}

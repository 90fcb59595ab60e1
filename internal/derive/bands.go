package derive

import (
	"time"

	"sentinel-sim/internal/sim"
)

// Bucket labels for the fleet health histograms.
const (
	LastSeenUnder1m = "<=1m"
	LastSeen1to5m   = "1-5m"
	LastSeen5to15m  = "5-15m"
	LastSeenOver15m = ">15m"
	BatteryFull     = ">=4.0V"
	BatteryGood     = "3.8-4.0V"
	BatteryLow      = "3.6-3.8V"
	BatteryCritical = "<3.6V"
	RSSIStrong      = ">-70dBm"
	RSSIFair        = "-70..-90dBm"
	RSSIWeak        = "<-90dBm"
	LastSeenNever   = "never"
	BandUnavailable = "n/a"
)

// LastSeenBand buckets the age of a node's last message.
func LastSeenBand(age time.Duration) string {
	switch {
	case age <= time.Minute:
		return LastSeenUnder1m
	case age <= 5*time.Minute:
		return LastSeen1to5m
	case age <= 15*time.Minute:
		return LastSeen5to15m
	}
	return LastSeenOver15m
}

// BatteryBand buckets a battery voltage.
func BatteryBand(v float64) string {
	switch {
	case v >= 4.0:
		return BatteryFull
	case v >= 3.8:
		return BatteryGood
	case v >= 3.6:
		return BatteryLow
	}
	return BatteryCritical
}

// RSSIBand buckets a received signal strength.
func RSSIBand(dbm int) string {
	switch {
	case dbm > -70:
		return RSSIStrong
	case dbm >= -90:
		return RSSIFair
	}
	return RSSIWeak
}

// BandCounts is the per-bucket node count for each histogram.
type BandCounts struct {
	LastSeen map[string]int `json:"last_seen"`
	Battery  map[string]int `json:"battery"`
	RSSI     map[string]int `json:"rssi"`
}

// FleetBands counts nodes per band, limited to gatewayID when it is set.
// Nodes that never reported land in the "never" and "n/a" buckets.
func FleetBands(snap sim.Snapshot, gatewayID string, now time.Time) BandCounts {
	c := BandCounts{
		LastSeen: map[string]int{},
		Battery:  map[string]int{},
		RSSI:     map[string]int{},
	}
	for _, n := range snap.Nodes {
		if gatewayID != "" && n.GatewayID != gatewayID {
			continue
		}
		m, ok := snap.Latest[n.NodeID]
		if !ok {
			c.LastSeen[LastSeenNever]++
			c.Battery[BandUnavailable]++
			c.RSSI[BandUnavailable]++
			continue
		}
		c.LastSeen[LastSeenBand(now.Sub(m.Timestamp))]++
		c.Battery[BatteryBand(m.BatteryV)]++
		if rssi, ok := m.RSSI(); ok {
			c.RSSI[RSSIBand(rssi)]++
		} else {
			c.RSSI[BandUnavailable]++
		}
	}
	return c
}

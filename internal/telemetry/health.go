package telemetry

import (
	"math/rand"
)

// HealthState is the engine-internal classification of a node.
type HealthState int

const (
	StateNominal HealthState = iota
	StateDegraded
	StateOffline
)

func (s HealthState) String() string {
	switch s {
	case StateDegraded:
		return "degraded"
	case StateOffline:
		return "offline"
	default:
		return "nominal"
	}
}

// HealthConfig holds the tunable transition probabilities.
type HealthConfig struct {
	OfflinePct      float64 // initial share of offline nodes
	DegradedPct     float64 // initial share of degraded nodes
	FlipProbability float64 // chance per step that one node changes state
}

// HealthTracker keeps per-node membership in the offline and degraded sets.
// Nodes in neither set are nominal. Forced nodes (admin disable, reboot
// window) read as offline regardless of their natural state.
type HealthTracker struct {
	cfg      HealthConfig
	rand     *rand.Rand
	offline  map[string]struct{}
	degraded map[string]struct{}
	forced   map[string]struct{}
}

// NewHealthTracker creates an empty tracker drawing from r.
func NewHealthTracker(cfg HealthConfig, r *rand.Rand) *HealthTracker {
	return &HealthTracker{
		cfg:      cfg,
		rand:     r,
		offline:  make(map[string]struct{}),
		degraded: make(map[string]struct{}),
		forced:   make(map[string]struct{}),
	}
}

// Init seeds the sets for ids in order.
func (h *HealthTracker) Init(ids []string) {
	for _, id := range ids {
		r := h.rand.Float64()
		switch {
		case r < h.cfg.OfflinePct:
			h.offline[id] = struct{}{}
		case r < h.cfg.OfflinePct+h.cfg.DegradedPct:
			h.degraded[id] = struct{}{}
		}
	}
}

// Step perturbs the fleet: with FlipProbability one random node moves to an
// adjacent state. Offline and degraded nodes recover to nominal; nominal
// nodes fall to degraded or offline with equal chance.
func (h *HealthTracker) Step(ids []string) {
	if len(ids) == 0 || h.rand.Float64() >= h.cfg.FlipProbability {
		return
	}
	id := ids[h.rand.Intn(len(ids))]
	if _, ok := h.offline[id]; ok {
		delete(h.offline, id)
		return
	}
	if _, ok := h.degraded[id]; ok {
		delete(h.degraded, id)
		return
	}
	if h.rand.Float64() > 0.5 {
		h.degraded[id] = struct{}{}
	} else {
		h.offline[id] = struct{}{}
	}
}

// State returns the effective state of id.
func (h *HealthTracker) State(id string) HealthState {
	if _, ok := h.forced[id]; ok {
		return StateOffline
	}
	if _, ok := h.offline[id]; ok {
		return StateOffline
	}
	if _, ok := h.degraded[id]; ok {
		return StateDegraded
	}
	return StateNominal
}

// ForceOffline pins id offline until Release.
func (h *HealthTracker) ForceOffline(id string) { h.forced[id] = struct{}{} }

// Release drops a forced-offline pin. The natural state is kept.
func (h *HealthTracker) Release(id string) { delete(h.forced, id) }

// Forced reports whether id is pinned offline.
func (h *HealthTracker) Forced(id string) bool {
	_, ok := h.forced[id]
	return ok
}

// Remove forgets id entirely.
func (h *HealthTracker) Remove(id string) {
	delete(h.offline, id)
	delete(h.degraded, id)
	delete(h.forced, id)
}

// Counts returns the number of effectively offline and degraded nodes.
func (h *HealthTracker) Counts() (offline, degraded int) {
	offline = len(h.offline)
	for id := range h.forced {
		if _, ok := h.offline[id]; !ok {
			offline++
		}
	}
	for id := range h.degraded {
		if _, ok := h.forced[id]; !ok {
			degraded++
		}
	}
	return offline, degraded
}

// Package world builds the deterministic gateway and node registry a
// simulation runs over.
package world

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"sentinel-sim/internal/scenario"
	"sentinel-sim/internal/telemetry"
)

var (
	// ErrInvalidSeed is returned for seeds outside [0, 2^32).
	ErrInvalidSeed = errors.New("invalid seed")
	// ErrEmptyCatalogue is returned when no scenario templates are given.
	ErrEmptyCatalogue = errors.New("empty scenario catalogue")
)

// Registry is the immutable device inventory of a world.
type Registry struct {
	Gateways []telemetry.GatewayRegistryItem `json:"gateways"`
	Nodes    []telemetry.NodeRegistryItem    `json:"nodes"`
}

// Node looks up a node by id.
func (r Registry) Node(id string) (telemetry.NodeRegistryItem, bool) {
	for _, n := range r.Nodes {
		if n.NodeID == id {
			return n, true
		}
	}
	return telemetry.NodeRegistryItem{}, false
}

// Gateway looks up a gateway by id.
func (r Registry) Gateway(id string) (telemetry.GatewayRegistryItem, bool) {
	for _, g := range r.Gateways {
		if g.GatewayID == id {
			return g, true
		}
	}
	return telemetry.GatewayRegistryItem{}, false
}

// NodesOf returns the nodes attached to gatewayID in registry order.
func (r Registry) NodesOf(gatewayID string) []telemetry.NodeRegistryItem {
	var out []telemetry.NodeRegistryItem
	for _, n := range r.Nodes {
		if n.GatewayID == gatewayID {
			out = append(out, n)
		}
	}
	return out
}

const (
	defaultAreaKm2   = 150
	defaultSpacingKm = 3.0
)

// defaultWeights keep every profile reachable whatever a template's bias.
var defaultWeights = map[telemetry.Profile]float64{
	telemetry.ProfileSVS: 0.1,
	telemetry.ProfileAAQ: 0.1,
	telemetry.ProfileSMS: 0.1,
	telemetry.ProfileSSS: 0.1,
	telemetry.ProfileTSR: 0.05,
}

type weight struct {
	profile telemetry.Profile
	w       float64
}

// Build generates the registry for scale and seed from catalogue. The result
// is a pure function of its inputs.
func Build(scale Scale, seed int64, catalogue []scenario.Template) (Registry, error) {
	prof, err := scale.Profile()
	if err != nil {
		return Registry{}, err
	}
	if seed < 0 || seed > math.MaxUint32 {
		return Registry{}, fmt.Errorf("%w: %d", ErrInvalidSeed, seed)
	}
	if len(catalogue) == 0 {
		return Registry{}, ErrEmptyCatalogue
	}
	if err := scenario.Validate(catalogue); err != nil {
		return Registry{}, err
	}
	for _, t := range catalogue {
		if t.MinNodes > prof.NodeCap {
			return Registry{}, fmt.Errorf("%w: %q needs %d nodes, cap for scale %d is %d",
				scenario.ErrInvalidTemplate, t.Region, t.MinNodes, scale, prof.NodeCap)
		}
	}

	sc, sd := uint32(scale), uint32(seed)
	rnd := newStream(1000 + 17*sc + 7919*sd)

	chosen := chooseTemplates(rnd, catalogue, prof.Gateways)
	gateways := make([]telemetry.GatewayRegistryItem, len(chosen))
	for i, t := range chosen {
		gateways[i] = telemetry.GatewayRegistryItem{
			GatewayID:   fmt.Sprintf("sentinel-gw%02d", i+1),
			DisplayName: fmt.Sprintf("Gateway %d", i+1),
			Region:      t.Region,
			Scenario:    t.Scenario,
			Backhaul:    pick(rnd, t.BackhaulPool),
			Location: telemetry.Location{
				Lat:  rnd.jitter(t.Centre.Lat, 0.02),
				Lon:  rnd.jitter(t.Centre.Lon, 0.02),
				AltM: 8 + rnd.Float64()*30,
			},
		}
	}

	counts := make([]int, len(chosen))
	for i, t := range chosen {
		counts[i] = nodeCount(rnd, t, prof)
	}

	var nodes []telemetry.NodeRegistryItem
	idx := 0
	for g, gw := range gateways {
		t := chosen[g]
		gr := newStream(5000 + 31*sc + 97*uint32(g) + 104729*sd)
		weights := profileWeights(t.ProfileBias)
		meshBias := meshBias(gw.Backhaul)
		pl := newPlacer(gr, t.Layout, gw.Location.Lat, gw.Location.Lon, counts[g])

		for i := 0; i < counts[g]; i++ {
			idx++
			p := weightedPick(gr, weights)
			role := telemetry.RoleBridge
			if p != telemetry.ProfileTSR {
				role = pick(gr, []telemetry.Role{telemetry.RoleSensor, telemetry.RoleBridge})
			}
			primary := telemetry.NetworkLoRa
			if gr.Float64() < meshBias {
				primary = telemetry.NetworkMesh
			}
			networks := []telemetry.Network{primary}
			if gr.Float64() > 0.94 {
				networks = []telemetry.Network{telemetry.NetworkLoRa, telemetry.NetworkMesh}
			}
			lat, lon := pl.place(gr)

			n := telemetry.NodeRegistryItem{
				NodeID:      fmt.Sprintf("node-%04d", idx),
				DisplayName: fmt.Sprintf("%s %d", strings.ToUpper(string(p)), idx),
				Profile:     p,
				Role:        role,
				Networks:    networks,
				GatewayID:   gw.GatewayID,
				SiteID:      "site-" + gw.GatewayID,
				Location: telemetry.Location{
					Lat:       lat,
					Lon:       lon,
					AltM:      8 + gr.Float64()*40,
					AccuracyM: 5 + gr.Float64()*20,
				},
			}
			if t.SiteHints != nil && carriesStructure(p) {
				s := *t.SiteHints
				n.Structure = &s
			}
			nodes = append(nodes, n)
		}
	}
	return Registry{Gateways: gateways, Nodes: nodes}, nil
}

// chooseTemplates draws n templates without replacement, refilling the pool
// whenever it runs dry.
func chooseTemplates(rnd *stream, catalogue []scenario.Template, n int) []scenario.Template {
	out := make([]scenario.Template, 0, n)
	var pool []scenario.Template
	for len(out) < n {
		if len(pool) == 0 {
			pool = append(pool, catalogue...)
		}
		i := rnd.Intn(len(pool))
		out = append(out, pool[i])
		pool = append(pool[:i], pool[i+1:]...)
	}
	return out
}

func nodeCount(rnd *stream, t scenario.Template, prof ScaleProfile) int {
	base := t.BaseNodes
	if base == 0 {
		area, spacing := t.AreaKm2, t.SpacingKm
		if area == 0 {
			area = defaultAreaKm2
		}
		if spacing == 0 {
			spacing = defaultSpacingKm
		}
		base = int(math.Ceil(area / (spacing * spacing)))
	}
	factor := 0.85 + rnd.Float64()*0.35
	n := int(math.Round(float64(base) * prof.Multiplier * factor))
	floor := t.MinNodes
	if floor == 0 {
		floor = prof.MinNodes
	}
	return max(floor, min(prof.NodeCap, n))
}

// profileWeights lists the positive template biases followed by defaults
// for every profile the bias leaves out, both in canonical profile order.
func profileWeights(bias map[telemetry.Profile]float64) []weight {
	var out []weight
	for _, p := range telemetry.Profiles {
		if w := bias[p]; w > 0 {
			out = append(out, weight{p, w})
		}
	}
	for _, p := range telemetry.Profiles {
		if bias[p] <= 0 {
			out = append(out, weight{p, defaultWeights[p]})
		}
	}
	return out
}

func weightedPick(rnd *stream, ws []weight) telemetry.Profile {
	total := 0.0
	for _, w := range ws {
		total += w.w
	}
	x := rnd.Float64() * total
	for _, w := range ws {
		x -= w.w
		if x <= 0 {
			return w.profile
		}
	}
	return ws[0].profile
}

func meshBias(b telemetry.Backhaul) float64 {
	switch b {
	case telemetry.BackhaulSat:
		return 0.35
	case telemetry.Backhaul4G:
		return 0.5
	}
	return 0.65
}

func carriesStructure(p telemetry.Profile) bool {
	return p == telemetry.ProfileSVS || p == telemetry.ProfileSMS || p == telemetry.ProfileSSS
}

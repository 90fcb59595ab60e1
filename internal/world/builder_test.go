package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-sim/internal/scenario"
	"sentinel-sim/internal/telemetry"
)

var scales = []Scale{ScaleSmall, ScaleMedium, ScaleLarge}

func TestBuildDeterministic(t *testing.T) {
	for _, s := range scales {
		t.Run(s.String(), func(t *testing.T) {
			a, err := Build(s, 7, scenario.BuiltIn())
			require.NoError(t, err)
			b, err := Build(s, 7, scenario.BuiltIn())
			require.NoError(t, err)

			ja, err := json.Marshal(a)
			require.NoError(t, err)
			jb, err := json.Marshal(b)
			require.NoError(t, err)
			assert.Equal(t, string(ja), string(jb))
		})
	}
}

func TestBuildSeedChangesWorld(t *testing.T) {
	a, err := Build(ScaleSmall, 1, scenario.BuiltIn())
	require.NoError(t, err)
	b, err := Build(ScaleSmall, 2, scenario.BuiltIn())
	require.NoError(t, err)
	assert.NotEqual(t, a.Gateways[0].Location, b.Gateways[0].Location)
}

func TestBuildGatewayCounts(t *testing.T) {
	want := map[Scale]int{ScaleSmall: 14, ScaleMedium: 9, ScaleLarge: 7}
	for s, n := range want {
		r, err := Build(s, 0, scenario.BuiltIn())
		require.NoError(t, err)
		assert.Len(t, r.Gateways, n, "scale %d", s)
	}
}

func TestBuildReferencesAndBounds(t *testing.T) {
	for _, s := range scales {
		prof, err := s.Profile()
		require.NoError(t, err)
		r, err := Build(s, 3, scenario.BuiltIn())
		require.NoError(t, err)

		gws := map[string]bool{}
		for _, g := range r.Gateways {
			gws[g.GatewayID] = true
		}
		byRegion := map[string]scenario.Template{}
		for _, tpl := range scenario.BuiltIn() {
			byRegion[tpl.Region] = tpl
		}

		ids := map[string]bool{}
		for _, n := range r.Nodes {
			require.True(t, gws[n.GatewayID], "node %s references unknown gateway %s", n.NodeID, n.GatewayID)
			require.False(t, ids[n.NodeID], "duplicate node id %s", n.NodeID)
			ids[n.NodeID] = true
			assert.NotEmpty(t, n.Networks)
			if n.Profile == telemetry.ProfileTSR {
				assert.Equal(t, telemetry.RoleBridge, n.Role)
			}
		}

		for _, g := range r.Gateways {
			tpl := byRegion[g.Region]
			floor := tpl.MinNodes
			if floor == 0 {
				floor = prof.MinNodes
			}
			count := len(r.NodesOf(g.GatewayID))
			assert.GreaterOrEqual(t, count, floor, "gateway %s", g.GatewayID)
			assert.LessOrEqual(t, count, prof.NodeCap, "gateway %s", g.GatewayID)
		}
	}
}

func TestBuildStructureOnlyForStructuralProfiles(t *testing.T) {
	r, err := Build(ScaleMedium, 11, scenario.BuiltIn())
	require.NoError(t, err)
	for _, n := range r.Nodes {
		switch n.Profile {
		case telemetry.ProfileAAQ, telemetry.ProfileTSR:
			assert.Nil(t, n.Structure, "node %s", n.NodeID)
		}
	}
}

func TestBuildNodesStayNearGateway(t *testing.T) {
	r, err := Build(ScaleLarge, 5, scenario.BuiltIn())
	require.NoError(t, err)
	for _, n := range r.Nodes {
		g, ok := r.Gateway(n.GatewayID)
		require.True(t, ok)
		// corridors reach 60 km from the gateway, a little over half a degree
		assert.InDelta(t, g.Location.Lat, n.Location.Lat, 2.5, "node %s", n.NodeID)
	}
}

func TestBuildCyclesSmallCatalogue(t *testing.T) {
	cat := scenario.BuiltIn()[:3]
	r, err := Build(ScaleSmall, 0, cat)
	require.NoError(t, err)
	require.Len(t, r.Gateways, 14)

	seen := map[string]int{}
	for _, g := range r.Gateways[:3] {
		seen[g.Region]++
	}
	assert.Len(t, seen, 3, "first pass should use every template once")
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Scale(50), 0, scenario.BuiltIn())
	assert.ErrorIs(t, err, ErrInvalidScale)

	_, err = Build(ScaleSmall, -1, scenario.BuiltIn())
	assert.ErrorIs(t, err, ErrInvalidSeed)

	_, err = Build(ScaleSmall, 1<<32, scenario.BuiltIn())
	assert.ErrorIs(t, err, ErrInvalidSeed)

	_, err = Build(ScaleSmall, 0, nil)
	assert.ErrorIs(t, err, ErrEmptyCatalogue)
}

func TestBuildRejectsMinNodesAboveCap(t *testing.T) {
	cat := scenario.BuiltIn()[:2]
	cat[1].MinNodes = 500

	_, err := Build(ScaleSmall, 0, cat)
	assert.ErrorIs(t, err, scenario.ErrInvalidTemplate)

	// the medium cap is 900, so the same catalogue is fine there
	r, err := Build(ScaleMedium, 0, cat)
	require.NoError(t, err)
	prof, _ := ScaleMedium.Profile()
	counts := map[string]int{}
	for _, n := range r.Nodes {
		counts[n.GatewayID]++
	}
	for id, c := range counts {
		assert.LessOrEqual(t, c, prof.NodeCap, "gateway %s", id)
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := Build(ScaleSmall, 0, scenario.BuiltIn())
	require.NoError(t, err)
	n, ok := r.Node("node-0001")
	require.True(t, ok)
	assert.Equal(t, "sentinel-gw01", n.GatewayID)
	_, ok = r.Node("node-9999")
	assert.False(t, ok)
}

func TestProfileWeightsCanonicalOrder(t *testing.T) {
	ws := profileWeights(map[telemetry.Profile]float64{
		telemetry.ProfileTSR: 0.2,
		telemetry.ProfileAAQ: 0.5,
	})
	var got []telemetry.Profile
	for _, w := range ws {
		got = append(got, w.profile)
	}
	assert.Equal(t, []telemetry.Profile{
		telemetry.ProfileAAQ, telemetry.ProfileTSR,
		telemetry.ProfileSVS, telemetry.ProfileSMS, telemetry.ProfileSSS,
	}, got)
}

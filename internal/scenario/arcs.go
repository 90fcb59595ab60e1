package scenario

import "sentinel-sim/internal/telemetry"

type bias = map[telemetry.Profile]float64

const (
	svs = telemetry.ProfileSVS
	aaq = telemetry.ProfileAAQ
	sms = telemetry.ProfileSMS
	sss = telemetry.ProfileSSS
	tsr = telemetry.ProfileTSR
)

func pool(b ...telemetry.Backhaul) []telemetry.Backhaul { return b }

func hints(id, asset, note string) *telemetry.Structure {
	return &telemetry.Structure{StructureID: id, AssetType: asset, Note: note}
}

// BuiltIn returns the regional deployment catalogue in a fixed order.
func BuiltIn() []Template {
	const (
		g4   = telemetry.Backhaul4G
		wifi = telemetry.BackhaulWiFi
		eth  = telemetry.BackhaulEthernet
		sat  = telemetry.BackhaulSat
	)
	return []Template{
		// wildfire
		{
			Region:       "USA — California (Wildfire Early Detection Perimeter)",
			Scenario:     "wildfire",
			Centre:       Centre{Lat: 39.20, Lon: -121.10},
			BackhaulPool: pool(sat, g4),
			ProfileBias:  bias{aaq: 0.55, tsr: 0.20, sss: 0.20, sms: 0.03, svs: 0.02},
			SiteHints:    hints("asset-wildfire-ca-01", "slope", "wildfire perimeter / smoke corridors"),
			Income:       "high",
			AreaKm2:      165000,
			SpacingKm:    5.0,
			MinNodes:     180,
			Layout:       LayoutCorridor,
		},
		{
			Region:       "Australia — NSW/VIC Bushfire Belt",
			Scenario:     "wildfire",
			Centre:       Centre{Lat: -36.50, Lon: 146.00},
			BackhaulPool: pool(sat, g4),
			ProfileBias:  bias{aaq: 0.60, tsr: 0.18, sss: 0.18, sms: 0.02, svs: 0.02},
			SiteHints:    hints("asset-wildfire-au-01", "slope", "bushfire detection + smoke transport"),
			Income:       "high",
			AreaKm2:      120000,
			SpacingKm:    6.0,
			MinNodes:     140,
			Layout:       LayoutCorridor,
		},
		{
			Region:       "Greece — Attica/Wildland-Urban Interface",
			Scenario:     "wildfire",
			Centre:       Centre{Lat: 38.20, Lon: 23.85},
			BackhaulPool: pool(g4, sat),
			ProfileBias:  bias{aaq: 0.55, tsr: 0.20, sss: 0.20, sms: 0.03, svs: 0.02},
			SiteHints:    hints("asset-wildfire-gr-01", "slope", "WUI fire detection"),
			Income:       "mid",
			AreaKm2:      15000,
			SpacingKm:    4.0,
			MinNodes:     80,
			Layout:       LayoutCorridor,
		},
		// earthquake
		{
			Region:       "Japan — Tectonic Corridor (Kanto)",
			Scenario:     "earthquake",
			Centre:       Centre{Lat: 35.68, Lon: 139.76},
			BackhaulPool: pool(g4, eth),
			ProfileBias:  bias{sms: 0.55, tsr: 0.20, svs: 0.20, aaq: 0.03, sss: 0.02},
			SiteHints:    hints("asset-seismic-jp-01", "slope", "dense EEW array + timing"),
			Income:       "high",
			AreaKm2:      32000,
			SpacingKm:    8.0,
			MinNodes:     120,
			Layout:       LayoutGrid,
		},
		{
			Region:       "Turkey — North Anatolian Fault Zone",
			Scenario:     "earthquake",
			Centre:       Centre{Lat: 40.75, Lon: 31.60},
			BackhaulPool: pool(g4, sat),
			ProfileBias:  bias{sms: 0.60, tsr: 0.20, svs: 0.15, sss: 0.03, aaq: 0.02},
			SiteHints:    hints("asset-seismic-tr-01", "slope", "fault corridor monitoring"),
			Income:       "mid",
			AreaKm2:      50000,
			SpacingKm:    12.0,
			MinNodes:     70,
			Layout:       LayoutCorridor,
		},
		{
			Region:       "Nepal — Himalayan Seismic Belt (Low-resource)",
			Scenario:     "earthquake",
			Centre:       Centre{Lat: 27.70, Lon: 85.32},
			BackhaulPool: pool(sat, g4),
			ProfileBias:  bias{sms: 0.55, tsr: 0.25, sss: 0.10, svs: 0.08, aaq: 0.02},
			SiteHints:    hints("asset-seismic-np-01", "slope", "low-cost EEW + landslide co-risk"),
			Income:       "low",
			AreaKm2:      80000,
			SpacingKm:    18.0,
			MinNodes:     45,
			Layout:       LayoutCorridor,
		},
		{
			Region:       "Haiti — Seismic Urban Risk (Low-resource)",
			Scenario:     "earthquake",
			Centre:       Centre{Lat: 18.54, Lon: -72.34},
			BackhaulPool: pool(g4, sat),
			ProfileBias:  bias{sms: 0.50, svs: 0.20, tsr: 0.25, aaq: 0.03, sss: 0.02},
			SiteHints:    hints("asset-seismic-ht-01", "building", "urban seismic + building health"),
			Income:       "low",
			AreaKm2:      3000,
			SpacingKm:    6.0,
			MinNodes:     35,
			Layout:       LayoutCluster,
		},
		// landslide / avalanche
		{
			Region:       "India — Himalayan Landslide Corridor (Uttarakhand)",
			Scenario:     "landslide",
			Centre:       Centre{Lat: 30.30, Lon: 78.05},
			BackhaulPool: pool(g4, sat),
			ProfileBias:  bias{sss: 0.45, sms: 0.35, tsr: 0.10, svs: 0.07, aaq: 0.03},
			SiteHints:    hints("asset-landslide-in-01", "slope", "monsoon-triggered landslides"),
			Income:       "mid",
			AreaKm2:      12000,
			SpacingKm:    4.0,
			MinNodes:     90,
			Layout:       LayoutCorridor,
		},
		{
			Region:       "Philippines — Typhoon Landslide Risk (Benguet)",
			Scenario:     "landslide",
			Centre:       Centre{Lat: 16.41, Lon: 120.60},
			BackhaulPool: pool(g4, sat),
			ProfileBias:  bias{sss: 0.50, sms: 0.25, aaq: 0.05, svs: 0.05, tsr: 0.15},
			SiteHints:    hints("asset-landslide-ph-01", "slope", "typhoon rainfall + slope saturation"),
			Income:       "low",
			AreaKm2:      7000,
			SpacingKm:    5.5,
			MinNodes:     60,
			Layout:       LayoutCorridor,
		},
		{
			Region:       "Norway — Avalanche Monitoring (Mountain Pass)",
			Scenario:     "landslide",
			Centre:       Centre{Lat: 60.65, Lon: 7.30},
			BackhaulPool: pool(sat, g4),
			ProfileBias:  bias{sms: 0.35, sss: 0.35, tsr: 0.20, svs: 0.08, aaq: 0.02},
			SiteHints:    hints("asset-avalanche-no-01", "slope", "freeze-thaw + snowpack risk"),
			Income:       "high",
			AreaKm2:      1200,
			SpacingKm:    2.5,
			MinNodes:     70,
			Layout:       LayoutCorridor,
		},
		// volcano
		{
			Region:       "Indonesia — Volcanic Island (Eruption Precursors)",
			Scenario:     "volcano",
			Centre:       Centre{Lat: -8.34, Lon: 116.47},
			BackhaulPool: pool(sat, g4),
			ProfileBias:  bias{sms: 0.40, aaq: 0.30, tsr: 0.15, svs: 0.10, sss: 0.05},
			SiteHints:    hints("asset-volcano-id-01", "slope", "tremor + gas + thermal context"),
			Income:       "mid",
			AreaKm2:      2500,
			SpacingKm:    3.0,
			MinNodes:     85,
			Layout:       LayoutRing,
		},
		{
			Region:       "Papua New Guinea — Remote Volcano (Low-resource)",
			Scenario:     "volcano",
			Centre:       Centre{Lat: -4.20, Lon: 152.20},
			BackhaulPool: pool(sat),
			ProfileBias:  bias{sms: 0.45, aaq: 0.25, tsr: 0.20, svs: 0.05, sss: 0.05},
			SiteHints:    hints("asset-volcano-pg-01", "slope", "remote volcano, sparse nodes"),
			Income:       "low",
			AreaKm2:      4000,
			SpacingKm:    6.0,
			MinNodes:     45,
			Layout:       LayoutRing,
		},
		// agriculture
		{
			Region:       "UK — Hampshire Agriculture (Precision Farming)",
			Scenario:     "agriculture",
			Centre:       Centre{Lat: 51.057, Lon: -1.308},
			BackhaulPool: pool(g4, wifi),
			ProfileBias:  bias{sss: 0.70, aaq: 0.10, tsr: 0.15, svs: 0.03, sms: 0.02},
			SiteHints:    hints("asset-field-uk-01", "field", "soil + microclimate + irrigation"),
			Income:       "high",
			AreaKm2:      600,
			SpacingKm:    1.5,
			MinNodes:     80,
			Layout:       LayoutGrid,
		},
		{
			Region:       "Kenya — Smallholder Agriculture (Low-resource)",
			Scenario:     "agriculture",
			Centre:       Centre{Lat: -0.30, Lon: 36.10},
			BackhaulPool: pool(g4),
			ProfileBias:  bias{sss: 0.80, tsr: 0.15, aaq: 0.05},
			SiteHints:    hints("asset-field-ke-01", "field", "low-cost soil + climate sensing"),
			Income:       "low",
			AreaKm2:      1800,
			SpacingKm:    3.5,
			MinNodes:     55,
			Layout:       LayoutGrid,
		},
		// structural health
		{
			Region:       "Singapore — High-Rise Structural Health Monitoring",
			Scenario:     "shm",
			Centre:       Centre{Lat: 1.352, Lon: 103.82},
			BackhaulPool: pool(eth, wifi, g4),
			ProfileBias:  bias{svs: 0.65, tsr: 0.20, aaq: 0.10, sss: 0.03, sms: 0.02},
			SiteHints:    hints("asset-building-sg-01", "building", "modal monitoring / drift / strain"),
			Income:       "high",
			BaseNodes:    160,
			MinNodes:     120,
			Layout:       LayoutCluster,
		},
		{
			Region:       "Bangladesh — Bridge SHM (Low-resource)",
			Scenario:     "shm",
			Centre:       Centre{Lat: 23.81, Lon: 90.41},
			BackhaulPool: pool(g4),
			ProfileBias:  bias{svs: 0.55, tsr: 0.30, aaq: 0.10, sms: 0.03, sss: 0.02},
			SiteHints:    hints("asset-bridge-bd-01", "bridge", "low-cost SHM priority asset"),
			Income:       "low",
			BaseNodes:    70,
			MinNodes:     50,
			Layout:       LayoutCorridor,
		},
		// urban air
		{
			Region:       "UK — London (Urban Air Quality)",
			Scenario:     "urban_air",
			Centre:       Centre{Lat: 51.507, Lon: -0.128},
			BackhaulPool: pool(eth, g4),
			ProfileBias:  bias{aaq: 0.70, tsr: 0.15, svs: 0.10, sss: 0.03, sms: 0.02},
			SiteHints:    hints("asset-city-uk-aaq-01", "building", "dense AQ / traffic emissions"),
			Income:       "high",
			AreaKm2:      1600,
			SpacingKm:    1.2,
			MinNodes:     140,
			Layout:       LayoutGrid,
		},
		{
			Region:       "Nigeria — Urban AQ + Connectivity (Low-resource)",
			Scenario:     "urban_air",
			Centre:       Centre{Lat: 6.46, Lon: 3.40},
			BackhaulPool: pool(g4),
			ProfileBias:  bias{aaq: 0.65, tsr: 0.25, sss: 0.05, svs: 0.03, sms: 0.02},
			SiteHints:    hints("asset-city-ng-aaq-01", "building", "low-cost AQ + backhaul hubs"),
			Income:       "low",
			AreaKm2:      1200,
			SpacingKm:    2.5,
			MinNodes:     75,
			Layout:       LayoutGrid,
		},
	}
}

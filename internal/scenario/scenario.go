package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sentinel-sim/internal/telemetry"
)

// Layout selects how nodes are spread around a gateway.
type Layout string

const (
	LayoutCluster  Layout = "cluster"
	LayoutGrid     Layout = "grid"
	LayoutCorridor Layout = "corridor"
	LayoutRing     Layout = "ring"
)

// Valid reports whether l names a known layout. Empty means cluster.
func (l Layout) Valid() bool {
	switch l {
	case "", LayoutCluster, LayoutGrid, LayoutCorridor, LayoutRing:
		return true
	}
	return false
}

// Centre is the geographic anchor of a template.
type Centre struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Template describes one regional deployment the world builder can place a
// gateway into.
type Template struct {
	Region       string                        `yaml:"region"`
	Scenario     string                        `yaml:"scenario"`
	Centre       Centre                        `yaml:"centre"`
	BackhaulPool []telemetry.Backhaul          `yaml:"backhaul_pool"`
	ProfileBias  map[telemetry.Profile]float64 `yaml:"profile_bias"`
	SiteHints    *telemetry.Structure          `yaml:"site_hints,omitempty"`
	Income       string                        `yaml:"income"` // low | mid | high
	AreaKm2      float64                       `yaml:"area_km2,omitempty"`
	SpacingKm    float64                       `yaml:"spacing_km,omitempty"`
	BaseNodes    int                           `yaml:"base_nodes,omitempty"`
	MinNodes     int                           `yaml:"min_nodes,omitempty"`
	Layout       Layout                        `yaml:"layout,omitempty"`
}

// Catalogue is the on-disk form of a template list.
type Catalogue struct {
	Templates []Template `yaml:"templates"`
}

// ErrInvalidTemplate marks a template that cannot drive the world builder.
var ErrInvalidTemplate = errors.New("invalid scenario template")

// Load reads a YAML template catalogue from disk and validates it.
func Load(path string) ([]Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	var c Catalogue
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	if err := Validate(c.Templates); err != nil {
		return nil, err
	}
	return c.Templates, nil
}

// Validate checks every template for values the builder depends on.
func Validate(ts []Template) error {
	if len(ts) == 0 {
		return fmt.Errorf("%w: catalogue is empty", ErrInvalidTemplate)
	}
	for i, t := range ts {
		if t.Region == "" {
			return fmt.Errorf("%w: template %d has no region", ErrInvalidTemplate, i)
		}
		if len(t.BackhaulPool) == 0 {
			return fmt.Errorf("%w: %q has an empty backhaul pool", ErrInvalidTemplate, t.Region)
		}
		for _, b := range t.BackhaulPool {
			if !b.Valid() {
				return fmt.Errorf("%w: %q has unknown backhaul %q", ErrInvalidTemplate, t.Region, b)
			}
		}
		for p, w := range t.ProfileBias {
			if !p.Valid() {
				return fmt.Errorf("%w: %q biases unknown profile %q", ErrInvalidTemplate, t.Region, p)
			}
			if w < 0 {
				return fmt.Errorf("%w: %q has negative weight for %s", ErrInvalidTemplate, t.Region, p)
			}
		}
		if !t.Layout.Valid() {
			return fmt.Errorf("%w: %q has unknown layout %q", ErrInvalidTemplate, t.Region, t.Layout)
		}
		if t.AreaKm2 < 0 || t.SpacingKm < 0 || t.BaseNodes < 0 || t.MinNodes < 0 {
			return fmt.Errorf("%w: %q has negative sizing", ErrInvalidTemplate, t.Region)
		}
	}
	return nil
}

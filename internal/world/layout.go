package world

import (
	"math"

	"sentinel-sim/internal/scenario"
)

// placer spreads the nodes of one gateway around its location. Shape
// parameters (sub-cluster centres, lattice rotation, corridor axis) are drawn
// once per gateway so the nodes of a gateway share one coherent footprint.
type placer interface {
	place(s *stream) (lat, lon float64)
}

type point struct{ x, y float64 }

// coverageRadiusKm grows the footprint with the node count.
func coverageRadiusKm(n int) float64 {
	return clamp(0.8+math.Sqrt(float64(n))*0.35, 1, 45)
}

func newPlacer(s *stream, layout scenario.Layout, lat, lon float64, n int) placer {
	base := origin{lat: lat, lon: lon}
	r := coverageRadiusKm(n)
	switch layout {
	case scenario.LayoutGrid:
		side := int(math.Ceil(math.Sqrt(float64(n))))
		return &gridPlacer{
			origin:  base,
			n:       n,
			side:    side,
			spacing: clamp(2*r/math.Max(1, float64(side-1)), 0.25, 8),
			theta:   s.Float64() * math.Pi,
		}
	case scenario.LayoutCorridor:
		return &corridorPlacer{
			origin: base,
			length: clamp(r*2.2, 4, 120),
			width:  clamp(r*0.35, 0.4, 12),
			theta:  s.Float64() * math.Pi,
		}
	case scenario.LayoutRing:
		ring := clamp(r*0.8, 1.5, 35)
		return &ringPlacer{
			origin:    base,
			radius:    ring,
			thickness: clamp(ring*0.18, 0.2, 4),
		}
	default:
		k := 3 + s.Intn(5)
		a0 := s.Float64() * 2 * math.Pi
		centres := make([]point, k)
		for i := range centres {
			a := a0 + float64(i)/float64(k)*2*math.Pi
			d := math.Pow(s.Float64(), 0.7) * r * 0.6
			centres[i] = point{x: d * math.Cos(a), y: d * math.Sin(a)}
		}
		return &clusterPlacer{
			origin:  base,
			centres: centres,
			sigma:   clamp(r/10, 0.15, 2),
		}
	}
}

type origin struct{ lat, lon float64 }

// offset converts a displacement in km to an absolute position.
func (o origin) offset(dxKm, dyKm float64) (lat, lon float64) {
	c := math.Cos(o.lat * math.Pi / 180)
	return o.lat + dyKm/111, o.lon + dxKm/(111*math.Max(0.2, c))
}

type clusterPlacer struct {
	origin
	centres []point
	sigma   float64
}

func (p *clusterPlacer) place(s *stream) (float64, float64) {
	c := pick(s, p.centres)
	return p.offset(c.x+s.gaussian()*p.sigma, c.y+s.gaussian()*p.sigma)
}

type gridPlacer struct {
	origin
	n       int
	side    int
	spacing float64
	theta   float64
}

func (p *gridPlacer) place(s *stream) (float64, float64) {
	idx := s.Intn(p.n)
	gx, gy := idx%p.side, idx/p.side
	half := float64(p.side-1) / 2
	j := p.spacing * 0.35
	x := (float64(gx)-half)*p.spacing + s.jitter(0, j)
	y := (float64(gy)-half)*p.spacing + s.jitter(0, j)
	x, y = rotate(x, y, p.theta)
	return p.offset(x, y)
}

type corridorPlacer struct {
	origin
	length float64
	width  float64
	theta  float64
}

func (p *corridorPlacer) place(s *stream) (float64, float64) {
	along := s.jitter(0, p.length/2)
	across := s.gaussian() * p.width / 3
	x, y := rotate(along, across, p.theta)
	return p.offset(x, y)
}

type ringPlacer struct {
	origin
	radius    float64
	thickness float64
}

func (p *ringPlacer) place(s *stream) (float64, float64) {
	a := s.Float64() * 2 * math.Pi
	r := p.radius + s.gaussian()*p.thickness/2
	return p.offset(r*math.Cos(a), r*math.Sin(a))
}

func rotate(x, y, theta float64) (float64, float64) {
	c, sn := math.Cos(theta), math.Sin(theta)
	return x*c - y*sn, x*sn + y*c
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

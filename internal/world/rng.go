package world

import "math"

// stream is a small counter-based 32-bit PRNG (mulberry32). Its output
// depends only on the seed and the number of draws, so a world rebuilt from
// the same seed is identical on every platform.
type stream struct {
	state uint32
}

func newStream(seed uint32) *stream { return &stream{state: seed} }

// Float64 returns a value in [0, 1).
func (s *stream) Float64() float64 {
	s.state += 0x6d2b79f5
	t := s.state
	t = (t ^ t>>15) * (t | 1)
	t ^= t + (t^t>>7)*(t|61)
	return float64(t^t>>14) / 4294967296
}

// Intn returns a value in [0, n).
func (s *stream) Intn(n int) int {
	return int(math.Floor(s.Float64() * float64(n)))
}

// jitter returns base plus uniform noise in [-amt, amt).
func (s *stream) jitter(base, amt float64) float64 {
	return base + (s.Float64()*2-1)*amt
}

// gaussian draws a standard normal value with Box-Muller.
func (s *stream) gaussian() float64 {
	var u, v float64
	for u == 0 {
		u = s.Float64()
	}
	for v == 0 {
		v = s.Float64()
	}
	return math.Sqrt(-2*math.Log(u)) * math.Cos(2*math.Pi*v)
}

func pick[T any](s *stream, xs []T) T {
	return xs[s.Intn(len(xs))]
}

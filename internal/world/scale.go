package world

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Scale selects one of the three world sizes.
type Scale int

const (
	ScaleSmall  Scale = 10
	ScaleMedium Scale = 100
	ScaleLarge  Scale = 1000
)

// ErrInvalidScale is returned for any scale other than 10, 100 or 1000.
var ErrInvalidScale = errors.New("invalid scale")

// ScaleProfile holds everything a scale implies about the generated world
// and the engine that runs it.
type ScaleProfile struct {
	Gateways    int
	Multiplier  float64
	NodeCap     int
	MinNodes    int
	Tick        time.Duration
	OfflinePct  float64
	DegradedPct float64
}

var profiles = map[Scale]ScaleProfile{
	ScaleSmall:  {Gateways: 14, Multiplier: 0.08, NodeCap: 220, MinNodes: 10, Tick: time.Second, OfflinePct: 0.05, DegradedPct: 0.12},
	ScaleMedium: {Gateways: 9, Multiplier: 0.25, NodeCap: 900, MinNodes: 25, Tick: time.Second, OfflinePct: 0.03, DegradedPct: 0.08},
	ScaleLarge:  {Gateways: 7, Multiplier: 1.0, NodeCap: 6000, MinNodes: 25, Tick: 2 * time.Second, OfflinePct: 0.02, DegradedPct: 0.06},
}

// Valid reports whether s is a supported scale.
func (s Scale) Valid() bool {
	_, ok := profiles[s]
	return ok
}

// Profile returns the parameters of s.
func (s Scale) Profile() (ScaleProfile, error) {
	p, ok := profiles[s]
	if !ok {
		return ScaleProfile{}, fmt.Errorf("%w: %d", ErrInvalidScale, int(s))
	}
	return p, nil
}

func (s Scale) String() string { return strconv.Itoa(int(s)) }

// ParseScale accepts "10", "100", "1000" and the aliases small, medium and
// large.
func ParseScale(v string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "small":
		return ScaleSmall, nil
	case "medium":
		return ScaleMedium, nil
	case "large":
		return ScaleLarge, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScale, v)
	}
	s := Scale(n)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidScale, n)
	}
	return s, nil
}

package telemetry

import (
	"math"
	"math/rand"
	"time"
)

// FlagProbabilities are per-message chances of the rare status conditions.
type FlagProbabilities struct {
	SensorFault  float64 `yaml:"sensor_fault"`
	Tamper       float64 `yaml:"tamper"`
	TimeUnsynced float64 `yaml:"time_unsynced"`
	MemoryLow    float64 `yaml:"memory_low"`
	DomainOff    float64 `yaml:"domain_off"`
}

// DefaultFlagProbabilities returns the stock flag rates.
func DefaultFlagProbabilities() FlagProbabilities {
	return FlagProbabilities{
		SensorFault:  0.004,
		Tamper:       0.005,
		TimeUnsynced: 0.007,
		MemoryLow:    0.008,
		DomainOff:    0.0008,
	}
}

// ThinningRule skips an eligible node with probability 1-KeepProbability
// whenever the fleet has at least MinNodes nodes. Rules stack.
type ThinningRule struct {
	MinNodes        int     `yaml:"min_nodes"`
	KeepProbability float64 `yaml:"keep_probability"`
}

// DefaultThinning returns the stock thinning ladder.
func DefaultThinning() []ThinningRule {
	return []ThinningRule{
		{MinNodes: 100, KeepProbability: 0.35},
		{MinNodes: 1000, KeepProbability: 0.15},
	}
}

// NodeInput is everything the synthesizer needs for one node on one tick.
type NodeInput struct {
	Node     NodeRegistryItem
	State    HealthState
	Seq      uint64
	BootedAt time.Time
}

// Synthesizer turns node state into telemetry messages. It is not safe for
// concurrent use; the engine calls it from the tick under its lock.
type Synthesizer struct {
	rand  *rand.Rand
	flags FlagProbabilities
}

// NewSynthesizer creates a Synthesizer drawing from r.
func NewSynthesizer(r *rand.Rand, flags FlagProbabilities) *Synthesizer {
	return &Synthesizer{rand: r, flags: flags}
}

// Keep applies the thinning rules for a fleet of nodeCount nodes.
func (s *Synthesizer) Keep(nodeCount int, rules []ThinningRule) bool {
	for _, r := range rules {
		if nodeCount >= r.MinNodes && s.rand.Float64() > r.KeepProbability {
			return false
		}
	}
	return true
}

// Generate builds the message for in at now; elapsed drives the slow
// oscillators. lowBatteryVolts is the current alerting threshold.
func (s *Synthesizer) Generate(in NodeInput, now time.Time, elapsed time.Duration, lowBatteryVolts float64) TelemetryMessage {
	t := elapsed.Seconds()
	n := in.Node
	degraded := in.State == StateDegraded

	var link, batt float64
	if degraded {
		link = 0.35 + s.rand.Float64()*0.25
		batt = 3.55 + 0.15*math.Sin(t/200) + s.rand.Float64()*0.03
	} else {
		link = 0.7 + s.rand.Float64()*0.3
		batt = 3.75 + 0.25*math.Sin(t/240) + s.rand.Float64()*0.03
	}
	battery := round(clamp(batt, 3.1, 4.2), 3)

	var flags StatusFlags
	if battery < lowBatteryVolts {
		flags |= FlagLowBattery
	}
	if !degraded && n.Role == RoleBridge && math.Cos(t/240) > 0 {
		flags |= FlagCharging
	}
	if s.rand.Float64() < s.flags.SensorFault {
		flags |= FlagSensorFault
	}
	if s.rand.Float64() < s.flags.Tamper {
		flags |= FlagTamper
	}
	if s.rand.Float64() < s.flags.TimeUnsynced {
		flags |= FlagTimeUnsynced
	}
	if s.rand.Float64() < s.flags.MemoryLow {
		flags |= FlagMemoryLow
	}
	if degraded {
		flags |= FlagLinkDegraded
	}
	if s.rand.Float64() < s.flags.DomainOff {
		flags |= FlagDomainOff
	}

	temp := clamp(18+4*math.Sin(t/60)+s.jitter(0, 0.4), -10, 55)
	rh := clamp(55+10*math.Sin(t/70)+s.jitter(0, 1.5), 10, 99)

	uptime := int64(now.Sub(in.BootedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	return TelemetryMessage{
		NodeID:       n.NodeID,
		GatewayID:    n.GatewayID,
		Timestamp:    now.UTC(),
		Seq:          in.Seq,
		Profile:      n.Profile,
		Role:         n.Role,
		Networks:     n.Networks,
		BatteryV:     battery,
		UptimeS:      uptime,
		StatusFlags:  flags,
		TemperatureC: round(temp, 1),
		HumidityRH:   round(rh, 1),
		Links:        s.links(n, link),
		Payload:      s.payload(n, t),
	}
}

// links maps the 0..1 link quality into per-network bands.
func (s *Synthesizer) links(n NodeRegistryItem, l float64) Links {
	l = clamp(l, 0, 1)
	var out Links
	if n.HasNetwork(NetworkLoRa) {
		sf := 12
		switch {
		case l > 0.7:
			sf = 7
		case l > 0.45:
			sf = 9
		}
		out.LoRa = &LoRaLink{
			RSSIdBm: int(math.Round(-120 + l*80 + s.jitter(0, 3))),
			SNRdB:   round(-20+l*30+s.jitter(0, 1.5), 1),
			FreqMHz: 868.1,
			SF:      sf,
			BWkHz:   125,
		}
	}
	if n.HasNetwork(NetworkMesh) {
		out.Mesh = &MeshLink{
			RSSIdBm: int(math.Round(-105 + l*55 + s.jitter(0, 3))),
			LQI:     int(math.Round(20 + l*235)),
			Channel: 15,
		}
	}
	return out
}

func (s *Synthesizer) payload(n NodeRegistryItem, t float64) Payload {
	switch n.Profile {
	case ProfileSVS:
		return s.vibration(t)
	case ProfileAAQ:
		return s.airQuality(t)
	case ProfileSMS:
		return s.seismic(t)
	case ProfileSSS:
		return s.soil(n.NodeID, t)
	case ProfileTSR:
		return s.radio(t)
	}
	return nil
}

func (s *Synthesizer) vibration(t float64) VibrationPayload {
	base := 0.02 + 0.01*math.Sin(t/7)
	rms := clamp(s.jitter(base, 0.01), 0, 1)
	peak := clamp(rms*(2.5+s.rand.Float64()), 0, 4)
	return VibrationPayload{
		AccelRMSg:      round(rms, 3),
		AccelPeakg:     round(peak, 3),
		DominantFreqHz: round(clamp(8+6*math.Sin(t/11)+s.jitter(0, 1.5), 1, 80), 1),
		TiltXDeg:       round(s.jitter(0, 0.2), 2),
		TiltYDeg:       round(s.jitter(0, 0.2), 2),
		StrainUE:       int(math.Round(s.jitter(30, 10))),
		Bandpower: Bandpower{
			BP0to10:   int(math.Round(10 + 10*s.rand.Float64())),
			BP10to50:  int(math.Round(20 + 20*s.rand.Float64())),
			BP50to200: int(math.Round(5 + 10*s.rand.Float64())),
		},
	}
}

func (s *Synthesizer) airQuality(t float64) AirQualityPayload {
	return AirQualityPayload{
		VOCIndex:   int(math.Round(clamp(120+60*math.Sin(t/13)+s.jitter(0, 15), 0, 500))),
		PM1ugm3:    round(clamp(2+2*math.Sin(t/17)+s.jitter(0, 1), 0, 80), 1),
		PM25ugm3:   round(clamp(4+4*math.Sin(t/19)+s.jitter(0, 2), 0, 120), 1),
		PM10ugm3:   round(clamp(6+6*math.Sin(t/23)+s.jitter(0, 3), 0, 200), 1),
		CO2ppm:     int(math.Round(clamp(450+100*math.Sin(t/31)+s.jitter(0, 25), 350, 2000))),
		SmokeScore: int(math.Round(clamp(10+20*s.rand.Float64(), 0, 100))),
	}
}

// seismicTriggerG is the peak ground acceleration that marks a trigger.
const seismicTriggerG = 0.15

func (s *Synthesizer) seismic(t float64) SeismicPayload {
	spike := 0.0
	if s.rand.Float64() > 0.995 {
		spike = 0.4
	}
	pga := clamp(0.005+0.01*math.Abs(math.Sin(t/9))+spike, 0, 3)
	surge := 0.0
	if pga > 0.2 {
		surge = 15 + s.rand.Float64()*30
	}
	pgv := clamp(0.2+0.8*math.Abs(math.Sin(t/15))+surge, 0, 200)
	dom := clamp(1+6*math.Abs(math.Sin(t/21))+s.jitter(0, 0.5), 0.2, 40)
	return SeismicPayload{
		PGAg:           round(pga, 3),
		PGVcms:         round(pgv, 1),
		DominantFreqHz: round(dom, 1),
		Triggered:      pga > seismicTriggerG,
	}
}

func (s *Synthesizer) soil(nodeID string, t float64) SoilPayload {
	ag := len(nodeID) > 0 && nodeID[len(nodeID)-1]%2 == 0
	p := SoilPayload{
		Classifier:      ClassGeohazard,
		SoilMoistureVWC: round(clamp(0.18+0.06*math.Sin(t/40)+s.jitter(0, 0.01), 0, 0.7), 3),
		SoilTempC:       round(clamp(10+6*math.Sin(t/60)+s.jitter(0, 0.3), -10, 45), 1),
		SoilECmScm:      round(clamp(0.6+0.3*math.Sin(t/55)+s.jitter(0, 0.05), 0, 4), 3),
	}
	for i := range p.SpkLevels {
		p.SpkLevels[i] = int(math.Round(clamp(10+40*s.rand.Float64(), 0, 100)))
	}
	if ag {
		p.Classifier = ClassAgriculture
		return p
	}
	tilt := round(clamp(1+2*math.Sin(t/80)+s.jitter(0, 0.3), 0, 15), 1)
	p.TiltDeg = &tilt
	return p
}

func (s *Synthesizer) radio(t float64) RadioPayload {
	return RadioPayload{
		Kind:      "radio",
		PacketsRX: int(math.Round(200 + 50*math.Abs(math.Sin(t/10)) + s.jitter(0, 10))),
		PacketsTX: int(math.Round(100 + 30*math.Abs(math.Sin(t/13)) + s.jitter(0, 8))),
		RXRateS:   round(clamp(0.2+1.5*math.Abs(math.Sin(t/9)), 0, 10), 1),
	}
}

// jitter returns base plus uniform noise in [-amt, amt).
func (s *Synthesizer) jitter(base, amt float64) float64 {
	return base + (s.rand.Float64()*2-1)*amt
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

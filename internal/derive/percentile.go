package derive

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"sentinel-sim/internal/sim"
	"sentinel-sim/internal/telemetry"
)

var (
	// ErrUnknownMetric is returned for a metric name the series cannot extract.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrInvalidStep is returned for a bucket step finer than MinStep.
	ErrInvalidStep = errors.New("invalid series step")
)

const (
	DefaultBuckets = 24
	DefaultStep    = 5 * time.Minute
	MaxBuckets     = 288
	// MinStep is the bucket resolution; timestamps are epoch milliseconds.
	MinStep = time.Millisecond
)

// Metric names a numeric telemetry field.
type Metric string

const (
	MetricBattery     Metric = "battery_v"
	MetricRSSI        Metric = "rssi_dbm"
	MetricSNR         Metric = "snr_db"
	MetricLQI         Metric = "lqi"
	MetricTemperature Metric = "temperature_c"
	MetricHumidity    Metric = "humidity_rh"
	MetricUptime      Metric = "uptime_s"
)

// Metrics lists the supported metrics.
var Metrics = []Metric{MetricBattery, MetricRSSI, MetricSNR, MetricLQI, MetricTemperature, MetricHumidity, MetricUptime}

// amplitude is the largest perturbation applied to a historical value.
var amplitude = map[Metric]float64{
	MetricBattery:     0.08,
	MetricRSSI:        6,
	MetricSNR:         2,
	MetricLQI:         12,
	MetricTemperature: 1.5,
	MetricHumidity:    4,
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !slices.Contains(Metrics, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// value extracts m from msg. ok is false when the node has no such reading.
func (m Metric) value(msg telemetry.TelemetryMessage) (float64, bool) {
	switch m {
	case MetricBattery:
		return msg.BatteryV, true
	case MetricRSSI:
		v, ok := msg.RSSI()
		return float64(v), ok
	case MetricSNR:
		if msg.Links.LoRa == nil {
			return 0, false
		}
		return msg.Links.LoRa.SNRdB, true
	case MetricLQI:
		if msg.Links.Mesh == nil {
			return 0, false
		}
		return float64(msg.Links.Mesh.LQI), true
	case MetricTemperature:
		return msg.TemperatureC, true
	case MetricHumidity:
		return msg.HumidityRH, true
	case MetricUptime:
		return float64(msg.UptimeS), true
	}
	return 0, false
}

// Percentile returns the p-quantile (0..1) of sorted by linear interpolation
// between order statistics. It returns 0 for an empty slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	p = math.Max(0, math.Min(1, p))
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// SeriesRequest selects a percentile series.
type SeriesRequest struct {
	Metric    Metric
	Buckets   int
	Step      time.Duration
	GatewayID string
	Now       time.Time
}

// SeriesPoint is one bucket of a percentile series.
type SeriesPoint struct {
	TS  int64   `json:"ts"` // epoch ms
	P10 float64 `json:"p10"`
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	N   int     `json:"n"`
}

// PercentileSeries builds p10/p50/p90 over every node with a latest message,
// oldest bucket first. Only current values exist, so historical buckets
// perturb each node's value by a hash of the node id and the bucket's
// absolute index; the same request always yields the same series. The
// newest bucket uses the values as reported.
func PercentileSeries(snap sim.Snapshot, req SeriesRequest) ([]SeriesPoint, error) {
	if !slices.Contains(Metrics, req.Metric) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, req.Metric)
	}
	if req.Buckets <= 0 {
		req.Buckets = DefaultBuckets
	}
	req.Buckets = min(req.Buckets, MaxBuckets)
	if req.Step == 0 {
		req.Step = DefaultStep
	}
	if req.Step < MinStep {
		return nil, fmt.Errorf("%w: %s is below %s", ErrInvalidStep, req.Step, MinStep)
	}
	if req.Now.IsZero() {
		req.Now = snap.Time()
	}

	type reading struct {
		node  string
		value float64
	}
	var current []reading
	for _, n := range snap.Nodes {
		if req.GatewayID != "" && n.GatewayID != req.GatewayID {
			continue
		}
		msg, ok := snap.Latest[n.NodeID]
		if !ok {
			continue
		}
		if v, ok := req.Metric.value(msg); ok {
			current = append(current, reading{node: n.NodeID, value: v})
		}
	}

	out := make([]SeriesPoint, req.Buckets)
	newest := req.Now.UnixMilli() / req.Step.Milliseconds()
	values := make([]float64, 0, len(current))
	for i := range out {
		age := int64(req.Buckets - 1 - i)
		idx := newest - age
		values = values[:0]
		for _, r := range current {
			v := r.value
			if age > 0 {
				v = perturb(req.Metric, r.node, idx, v, time.Duration(age)*req.Step)
			}
			values = append(values, v)
		}
		slices.Sort(values)
		out[i] = SeriesPoint{
			TS:  req.Now.Add(-time.Duration(age) * req.Step).UnixMilli(),
			P10: Percentile(values, 0.10),
			P50: Percentile(values, 0.50),
			P90: Percentile(values, 0.90),
			N:   len(values),
		}
	}
	return out, nil
}

// perturb shifts v deterministically for node in bucket idx. Uptime runs
// backwards instead of jittering.
func perturb(m Metric, node string, idx int64, v float64, back time.Duration) float64 {
	if m == MetricUptime {
		return math.Max(0, v-back.Seconds())
	}
	h := xxhash.New()
	_, _ = h.WriteString(node)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(strconv.FormatInt(idx, 10))
	u := float64(h.Sum64()>>11) / (1 << 53)
	out := v + (2*u-1)*amplitude[m]
	switch m {
	case MetricHumidity:
		out = math.Max(0, math.Min(100, out))
	case MetricLQI:
		out = math.Max(0, math.Min(255, out))
	case MetricBattery:
		out = math.Max(0, out)
	}
	return out
}

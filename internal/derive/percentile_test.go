package derive

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentileInterpolates(t *testing.T) {
	xs := []float64{10, 20, 30}
	assert.Equal(t, 20.0, Percentile(xs, 0.5))
	p10 := Percentile(xs, 0.1)
	p90 := Percentile(xs, 0.9)
	assert.Greater(t, p10, 10.0)
	assert.Less(t, p10, 20.0)
	assert.Greater(t, p90, 20.0)
	assert.Less(t, p90, 30.0)
	assert.InDelta(t, 12.0, p10, 1e-9)
	assert.InDelta(t, 28.0, p90, 1e-9)
}

func TestPercentileEdges(t *testing.T) {
	assert.Zero(t, Percentile(nil, 0.5))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 0.9))
	assert.Equal(t, 1.0, Percentile([]float64{1, 2}, -1))
	assert.Equal(t, 2.0, Percentile([]float64{1, 2}, 2))
}

func TestPercentileSeriesShape(t *testing.T) {
	snap := fleet(20, 20, 0)
	pts, err := PercentileSeries(snap, SeriesRequest{Metric: MetricBattery, Now: now})
	require.NoError(t, err)
	require.Len(t, pts, DefaultBuckets)

	for i, p := range pts {
		assert.Equal(t, 20, p.N)
		assert.LessOrEqual(t, p.P10, p.P50)
		assert.LessOrEqual(t, p.P50, p.P90)
		if i > 0 {
			assert.Equal(t, DefaultStep.Milliseconds(), p.TS-pts[i-1].TS)
		}
	}
	newest := pts[len(pts)-1]
	assert.Equal(t, now.UnixMilli(), newest.TS)
	assert.InDelta(t, 3.9, newest.P50, 1e-9, "newest bucket reports raw values")
}

func TestPercentileSeriesDeterministic(t *testing.T) {
	snap := fleet(30, 30, 0)
	req := SeriesRequest{Metric: MetricRSSI, Buckets: 12, Step: time.Minute, Now: now}
	a, err := PercentileSeries(snap, req)
	require.NoError(t, err)
	b, err := PercentileSeries(snap, req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	varied := false
	for _, p := range a[:len(a)-1] {
		if p.P50 != -80 {
			varied = true
		}
	}
	assert.True(t, varied, "historical buckets should be perturbed")
}

func TestPercentileSeriesGatewayFilter(t *testing.T) {
	snap := fleet(5, 5, 0)
	pts, err := PercentileSeries(snap, SeriesRequest{Metric: MetricSNR, Buckets: 3, GatewayID: "gw-2", Now: now})
	require.NoError(t, err)
	for _, p := range pts {
		assert.Zero(t, p.N)
	}
}

func TestPercentileSeriesUptimeRunsBackwards(t *testing.T) {
	snap := fleet(1, 1, 0)
	m := snap.Latest["node-000"]
	m.UptimeS = 600
	snap.Latest["node-000"] = m
	pts, err := PercentileSeries(snap, SeriesRequest{Metric: MetricUptime, Buckets: 4, Step: 5 * time.Minute, Now: now})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 300, 600}, []float64{pts[0].P50, pts[1].P50, pts[2].P50, pts[3].P50})
}

func TestPercentileSeriesUnknownMetric(t *testing.T) {
	_, err := PercentileSeries(fleet(1, 1, 0), SeriesRequest{Metric: "altitude"})
	assert.True(t, errors.Is(err, ErrUnknownMetric))
	_, err = ParseMetric("altitude")
	assert.ErrorIs(t, err, ErrUnknownMetric)
	m, err := ParseMetric("lqi")
	require.NoError(t, err)
	assert.Equal(t, MetricLQI, m)
}

func TestPercentileSeriesRejectsSubMillisecondStep(t *testing.T) {
	snap := fleet(3, 3, 0)
	for _, step := range []time.Duration{500 * time.Microsecond, time.Nanosecond, -time.Minute} {
		_, err := PercentileSeries(snap, SeriesRequest{Metric: MetricBattery, Buckets: 3, Step: step, Now: now})
		assert.ErrorIs(t, err, ErrInvalidStep, "step %s", step)
	}
	pts, err := PercentileSeries(snap, SeriesRequest{Metric: MetricBattery, Buckets: 3, Step: MinStep, Now: now})
	require.NoError(t, err)
	assert.Len(t, pts, 3)
}

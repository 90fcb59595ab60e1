// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for the engine and its HTTP surface.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the engine and HTTP metrics. A nil *Collector is a valid
// no-op recorder.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks            prometheus.Counter
	TickDuration     prometheus.Histogram
	Emitted          prometheus.Counter
	Thinned          prometheus.Counter
	Subscribers      prometheus.Gauge
	DeliveryFailures prometheus.Counter
	Alerts           *prometheus.CounterVec
	ExportErrors     *prometheus.CounterVec

	Gateways      prometheus.Gauge
	Nodes         prometheus.Gauge
	NodesOffline  prometheus.Gauge
	NodesDegraded prometheus.Gauge

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}

	var err error
	if c.Ticks, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_ticks_total",
		Help: "Number of completed engine ticks.",
	}), "sentinel_ticks_total"); err != nil {
		return nil, err
	}
	if c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_tick_duration_seconds",
		Help:    "Wall time spent computing one tick.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "sentinel_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Emitted, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_messages_emitted_total",
		Help: "Telemetry messages synthesized.",
	}), "sentinel_messages_emitted_total"); err != nil {
		return nil, err
	}
	if c.Thinned, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_messages_thinned_total",
		Help: "Eligible nodes skipped by thinning.",
	}), "sentinel_messages_thinned_total"); err != nil {
		return nil, err
	}
	if c.Subscribers, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_subscribers",
		Help: "Currently registered snapshot subscribers.",
	}), "sentinel_subscribers"); err != nil {
		return nil, err
	}
	if c.DeliveryFailures, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_delivery_failures_total",
		Help: "Subscribers removed after a failed delivery.",
	}), "sentinel_delivery_failures_total"); err != nil {
		return nil, err
	}
	if c.Alerts, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_alerts_total",
		Help: "Alerts raised, labeled by rule.",
	}, []string{"rule"}), "sentinel_alerts_total"); err != nil {
		return nil, err
	}
	if c.ExportErrors, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_export_errors_total",
		Help: "Failed export batches, labeled by sink.",
	}, []string{"sink"}), "sentinel_export_errors_total"); err != nil {
		return nil, err
	}
	if c.Gateways, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_gateways",
		Help: "Gateways in the registry.",
	}), "sentinel_gateways"); err != nil {
		return nil, err
	}
	if c.Nodes, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_nodes",
		Help: "Nodes in the registry.",
	}), "sentinel_nodes"); err != nil {
		return nil, err
	}
	if c.NodesOffline, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_nodes_offline",
		Help: "Nodes currently offline.",
	}), "sentinel_nodes_offline"); err != nil {
		return nil, err
	}
	if c.NodesDegraded, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_nodes_degraded",
		Help: "Nodes currently degraded.",
	}), "sentinel_nodes_degraded"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_http_requests_total",
		Help: "HTTP requests, labeled by route, method and status code.",
	}, []string{"route", "method", "code"}), "sentinel_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
	}, []string{"route"}), "sentinel_http_request_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records one finished tick.
func (c *Collector) ObserveTick(d time.Duration, emitted, thinned int) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(d.Seconds())
	c.Emitted.Add(float64(emitted))
	c.Thinned.Add(float64(thinned))
}

// SetWorld updates the fleet gauges.
func (c *Collector) SetWorld(gateways, nodes, offline, degraded int) {
	if c == nil {
		return
	}
	c.Gateways.Set(float64(gateways))
	c.Nodes.Set(float64(nodes))
	c.NodesOffline.Set(float64(offline))
	c.NodesDegraded.Set(float64(degraded))
}

func (c *Collector) SetSubscribers(n int) {
	if c == nil {
		return
	}
	c.Subscribers.Set(float64(n))
}

func (c *Collector) IncDeliveryFailure() {
	if c == nil {
		return
	}
	c.DeliveryFailures.Inc()
}

func (c *Collector) IncAlert(rule string) {
	if c == nil {
		return
	}
	c.Alerts.WithLabelValues(rule).Inc()
}

func (c *Collector) IncExportError(sink string) {
	if c == nil {
		return
	}
	c.ExportErrors.WithLabelValues(sink).Inc()
}

// Instrument records request count and latency for h under route. The
// wrapped writer keeps Flusher and Hijacker so streaming handlers still work.
func (c *Collector) Instrument(route string, h http.Handler) http.Handler {
	if c == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(h, w, r)
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(m.Code)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(m.Duration.Seconds())
	})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

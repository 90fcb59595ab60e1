package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveTick(3*time.Millisecond, 12, 4)
	c.ObserveTick(time.Millisecond, 8, 0)

	if got := testutil.ToFloat64(c.Ticks); got != 2 {
		t.Fatalf("ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Emitted); got != 20 {
		t.Fatalf("emitted = %v, want 20", got)
	}
	if got := testutil.ToFloat64(c.Thinned); got != 4 {
		t.Fatalf("thinned = %v, want 4", got)
	}
	if n := testutil.CollectAndCount(c.TickDuration); n != 1 {
		t.Fatalf("tick duration series = %d, want 1", n)
	}
}

func TestCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	a.IncAlert("LOW_BATTERY")
	b.IncAlert("LOW_BATTERY")
	if got := testutil.ToFloat64(a.Alerts.WithLabelValues("LOW_BATTERY")); got != 2 {
		t.Fatalf("shared alert counter = %v, want 2", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveTick(time.Second, 1, 1)
	c.SetWorld(1, 2, 3, 4)
	c.SetSubscribers(3)
	c.IncDeliveryFailure()
	c.IncAlert("x")
	c.IncExportError("nats")
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if got := c.Instrument("/x", h); got == nil {
		t.Fatalf("nil collector should return the handler unchanged")
	}
}

func TestInstrumentAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.SetWorld(7, 300, 6, 18)
	c.SetSubscribers(2)

	h := c.Instrument("/api/alerts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Errorf("instrumented writer lost http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("/api/alerts", "GET", "418")); got != 1 {
		t.Fatalf("http requests = %v, want 1", got)
	}

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{"sentinel_nodes 300", "sentinel_gateways 7", "sentinel_subscribers 2"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

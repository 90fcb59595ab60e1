package sim

import (
	"time"

	"sentinel-sim/internal/telemetry"
)

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(telemetry.TelemetryMessage) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.TelemetryMessage) error
}

// MetricsRecorder is the subset of the Prometheus collector the engine
// reports to. *observability.Collector satisfies it.
type MetricsRecorder interface {
	ObserveTick(d time.Duration, emitted, thinned int)
	SetWorld(gateways, nodes, offline, degraded int)
	SetSubscribers(n int)
	IncDeliveryFailure()
	IncAlert(rule string)
	IncExportError(sink string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration, int, int) {}
func (noopMetrics) SetWorld(int, int, int, int)         {}
func (noopMetrics) SetSubscribers(int)                  {}
func (noopMetrics) IncDeliveryFailure()                 {}
func (noopMetrics) IncAlert(string)                     {}
func (noopMetrics) IncExportError(string)               {}

// writeAll hands batch to w, preferring batch mode. It returns the first
// error; per-row writers keep going past failures.
func writeAll(w TelemetryWriter, batch []telemetry.TelemetryMessage) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(batch)
	}
	var first error
	for _, m := range batch {
		if err := w.Write(m); err != nil && first == nil {
			first = err
		}
	}
	return first
}

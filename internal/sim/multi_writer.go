package sim

import (
	"errors"
	"io"

	"sentinel-sim/internal/telemetry"
)

// MultiWriter fans telemetry, alerts and state rows out to several sinks.
// A failing sink does not stop delivery to the others.
type MultiWriter struct {
	writers []TelemetryWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...TelemetryWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Len returns the number of sinks.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// Write sends a message to all writers.
func (mw *MultiWriter) Write(m telemetry.TelemetryMessage) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, w.Write(m))
	}
	return errors.Join(errs...)
}

// WriteBatch sends messages to all writers, using batch mode if supported.
func (mw *MultiWriter) WriteBatch(ms []telemetry.TelemetryMessage) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, writeAll(w, ms))
	}
	return errors.Join(errs...)
}

// WriteAlert sends an alert to every writer that accepts alerts.
func (mw *MultiWriter) WriteAlert(a Alert) error {
	var errs []error
	for _, w := range mw.writers {
		if aw, ok := w.(AlertWriter); ok {
			errs = append(errs, aw.WriteAlert(a))
		}
	}
	return errors.Join(errs...)
}

// WriteState sends a state row to every writer that accepts state rows.
func (mw *MultiWriter) WriteState(row telemetry.SimulationStateRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(StateWriter); ok {
			errs = append(errs, sw.WriteState(row))
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

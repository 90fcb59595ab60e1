package sim

import (
	"encoding/json"
	"io"
	"os"

	"sentinel-sim/internal/telemetry"
)

// JSONStdoutWriter prints telemetry and alerts as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	enc *json.Encoder
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter creates a JSONStdoutWriter writing to out.
func NewJSONWriter(out io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{enc: json.NewEncoder(out)}
}

// Write outputs a telemetry message in JSON format.
func (w *JSONStdoutWriter) Write(m telemetry.TelemetryMessage) error {
	return w.enc.Encode(m)
}

// WriteBatch outputs multiple telemetry messages in JSON format.
func (w *JSONStdoutWriter) WriteBatch(ms []telemetry.TelemetryMessage) error {
	for _, m := range ms {
		if err := w.Write(m); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlert outputs an alert wrapped so it can be told apart from telemetry.
func (w *JSONStdoutWriter) WriteAlert(a Alert) error {
	return w.enc.Encode(struct {
		Alert Alert `json:"alert"`
	}{a})
}

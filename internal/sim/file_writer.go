package sim

import (
	"encoding/json"
	"errors"
	"os"

	"sentinel-sim/internal/telemetry"
)

// FileWriter writes telemetry, alerts and engine state to JSONL files.
type FileWriter struct {
	teleFile  *os.File
	alertFile *os.File
	stateFile *os.File
	teleEnc   *json.Encoder
	alertEnc  *json.Encoder
	stateEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. alertPath or statePath may be empty to
// skip those logs.
func NewFileWriter(telemetryPath, alertPath, statePath string) (*FileWriter, error) {
	tf, err := os.Create(telemetryPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{teleFile: tf, teleEnc: json.NewEncoder(tf)}
	if alertPath != "" {
		af, err := os.Create(alertPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.alertFile = af
		fw.alertEnc = json.NewEncoder(af)
	}
	if statePath != "" {
		sf, err := os.Create(statePath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.stateFile = sf
		fw.stateEnc = json.NewEncoder(sf)
	}
	return fw, nil
}

// Write logs a single telemetry message.
func (f *FileWriter) Write(m telemetry.TelemetryMessage) error {
	return f.teleEnc.Encode(m)
}

// WriteBatch logs multiple telemetry messages.
func (f *FileWriter) WriteBatch(ms []telemetry.TelemetryMessage) error {
	for _, m := range ms {
		if err := f.Write(m); err != nil {
			return err
		}
	}
	return nil
}

// WriteAlert logs an alert, if enabled.
func (f *FileWriter) WriteAlert(a Alert) error {
	if f.alertEnc == nil {
		return nil
	}
	return f.alertEnc.Encode(a)
}

// WriteState logs a simulation state row, if enabled.
func (f *FileWriter) WriteState(row telemetry.SimulationStateRow) error {
	if f.stateEnc == nil {
		return nil
	}
	return f.stateEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	for _, file := range []*os.File{f.teleFile, f.alertFile, f.stateFile} {
		if file != nil {
			errs = append(errs, file.Close())
		}
	}
	return errors.Join(errs...)
}

package sim

import "sentinel-sim/internal/telemetry"

// StateWriter handles per-tick engine state rows.
type StateWriter interface {
	WriteState(telemetry.SimulationStateRow) error
}

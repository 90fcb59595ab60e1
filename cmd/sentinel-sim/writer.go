package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"sentinel-sim/internal/config"
	"sentinel-sim/internal/sim"
	"sentinel-sim/internal/world"
)

// isTerminal reports whether f is attached to a terminal.
var isTerminal = func(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }

// newWriters builds the export sinks enabled in cfg. It returns a nil writer
// when no sink is enabled, and a cleanup function that closes every sink.
func newWriters(cfg *config.SimulationConfig, reg world.Registry, log *slog.Logger) (sim.TelemetryWriter, func(), error) {
	var writers []sim.TelemetryWriter
	cleanup := func() {
		for _, w := range writers {
			if c, ok := w.(io.Closer); ok {
				if err := c.Close(); err != nil {
					log.Warn("closing sink", "err", err)
				}
			}
		}
	}
	fail := func(err error) (sim.TelemetryWriter, func(), error) {
		cleanup()
		return nil, nil, err
	}

	switch cfg.Sinks.Stdout {
	case "":
	case "json":
		writers = append(writers, sim.NewJSONStdoutWriter())
	case "color":
		writers = append(writers, sim.NewColorStdoutWriter(cfg, reg))
	case "auto":
		if isTerminal(os.Stdout) {
			writers = append(writers, sim.NewColorStdoutWriter(cfg, reg))
		} else {
			writers = append(writers, sim.NewJSONStdoutWriter())
		}
	default:
		return fail(fmt.Errorf("%w: unknown stdout sink %q", config.ErrInvalid, cfg.Sinks.Stdout))
	}

	if path := cfg.Sinks.File; path != "" {
		fw, err := sim.NewFileWriter(path, path+".alerts", path+".state")
		if err != nil {
			return fail(err)
		}
		writers = append(writers, fw)
	}

	if cfg.Sinks.Greptime.Endpoint != "" {
		gw, err := sim.NewGreptimeDBWriter(cfg.Sinks.Greptime, log)
		if err != nil {
			return fail(fmt.Errorf("greptimedb sink: %w", err))
		}
		writers = append(writers, gw)
	}

	if cfg.Sinks.NATS.URL != "" {
		nw, err := sim.NewNATSWriter(cfg.Sinks.NATS, log)
		if err != nil {
			return fail(fmt.Errorf("nats sink: %w", err))
		}
		writers = append(writers, nw)
	}

	switch len(writers) {
	case 0:
		return nil, cleanup, nil
	case 1:
		log.Info("export sink enabled", "sink", fmt.Sprintf("%T", writers[0]))
		return writers[0], cleanup, nil
	}
	log.Info("export sinks enabled", "count", len(writers))
	return sim.NewMultiWriter(writers...), cleanup, nil
}

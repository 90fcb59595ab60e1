package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sentinel-sim/internal/sim"
	"sentinel-sim/internal/world"
)

var (
	replayInput  string
	replaySpeed  float64
	replayStdout string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a telemetry log file",
	Long:  "replay feeds telemetry messages from a JSONL log back into the configured sinks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if replayStdout != "" {
			cfg.Sinks.Stdout = replayStdout
		}
		// replaying into the file we read from would truncate it
		cfg.Sinks.File = ""
		log := newLogger(cfg)

		writer, closeSinks, err := newWriters(cfg, world.Registry{}, log)
		if err != nil {
			return err
		}
		defer closeSinks()
		if writer == nil {
			writer = sim.NewJSONWriter(cmd.OutOrStdout())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		n, err := sim.ReplayLogFile(ctx, replayInput, writer, replaySpeed)
		log.Info("replay finished", "messages", n, "input", replayInput)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delay)")
	replayCmd.Flags().StringVar(&replayStdout, "stdout", "", "Print telemetry to STDOUT: json or color")
	replayCmd.MarkFlagRequired("input")
}

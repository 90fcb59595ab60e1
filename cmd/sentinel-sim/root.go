package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sentinel-sim/internal/config"
	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/scenario"
	"sentinel-sim/internal/world"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logFormat  string
	scaleFlag  string
	seedFlag   int64
)

var rootCmd = &cobra.Command{
	Use:   "sentinel-sim",
	Short: "Sentinel sensor-fleet world engine",
	Long: "sentinel-sim generates a deterministic fleet of gateways and sensor nodes, " +
		"synthesizes their telemetry on a fixed tick and serves the live world over HTTP.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to simulation configuration YAML (defaults apply when empty)")
	pf.StringVar(&schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&scaleFlag, "scale", "", "World scale: 10, 100 or 1000")
	pf.Int64Var(&seedFlag, "seed", 0, "World seed")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(worldCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadConfig reads the configuration and applies flag overrides. Flags win
// over the environment, which wins over the file.
func loadConfig(cmd *cobra.Command) (*config.SimulationConfig, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("scale") {
		s, err := world.ParseScale(scaleFlag)
		if err != nil {
			return nil, err
		}
		cfg.World.Scale = int(s)
	}
	if flags.Changed("seed") {
		cfg.World.Seed = seedFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// free for sink output.
func newLogger(cfg *config.SimulationConfig) *slog.Logger {
	l := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Out: os.Stderr})
	slog.SetDefault(l)
	return l
}

// buildWorld generates the registry from the configured catalogue.
func buildWorld(cfg *config.SimulationConfig) (world.Registry, error) {
	catalogue := scenario.BuiltIn()
	if cfg.World.Catalogue != "" {
		c, err := scenario.Load(cfg.World.Catalogue)
		if err != nil {
			return world.Registry{}, err
		}
		catalogue = c
	}
	return world.Build(cfg.Scale(), cfg.World.Seed, catalogue)
}

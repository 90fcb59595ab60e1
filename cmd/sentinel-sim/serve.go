package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sentinel-sim/internal/api"
	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/observability"
	"sentinel-sim/internal/sim"
)

var (
	serveAddr   string
	serveStdout string
	serveFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the world engine and its HTTP API",
	Long: "serve ticks the world engine and exposes snapshots over SSE and WebSocket, " +
		"command endpoints, derived views and Prometheus metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if serveStdout != "" {
			cfg.Sinks.Stdout = serveStdout
		}
		if serveFile != "" {
			cfg.Sinks.File = serveFile
		}
		log := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, log)

		shutdown, err := observability.InitTracing(ctx, cfg.Tracing, log)
		if err != nil {
			return err
		}
		defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

		reg, err := buildWorld(cfg)
		if err != nil {
			return err
		}
		metrics, err := observability.NewCollector(nil)
		if err != nil {
			return err
		}
		writer, closeSinks, err := newWriters(cfg, reg, log)
		if err != nil {
			return err
		}
		defer closeSinks()

		opts := []sim.Option{sim.WithLogger(log), sim.WithMetrics(metrics)}
		if writer != nil {
			opts = append(opts, sim.WithWriter(writer))
		}
		engine, err := sim.New(cfg, reg, opts...)
		if err != nil {
			return err
		}
		engine.Start(ctx)
		defer engine.Stop()

		srv := api.New(engine, api.Options{
			Server:  cfg.Server,
			Derive:  cfg.Derive,
			Metrics: metrics,
			Logger:  log,
		})
		_, errc, err := srv.Start(ctx)
		if err != nil {
			return err
		}
		select {
		case err, ok := <-errc:
			if ok && err != nil {
				return err
			}
		case <-ctx.Done():
			// wait for Shutdown to drain open requests
			<-errc
		}
		log.Info("sentinel-sim stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveStdout, "stdout", "", "Mirror telemetry to STDOUT: json, color or auto")
	serveCmd.Flags().StringVar(&serveFile, "log-file", "", "Path to export telemetry, alert and state logs (JSONL)")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sentinel-sim/internal/api"
	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/sim"
	"sentinel-sim/internal/tui"
)

var (
	watchURL   string
	watchRetry time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the live fleet board in the terminal",
	Long: "watch runs a local engine and draws it as a terminal board. With --url it follows " +
		"a running server's stream instead and the board is read-only.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal(os.Stdout) {
			return errors.New("watch needs an interactive terminal")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if watchURL != "" {
			base := strings.TrimRight(watchURL, "/")
			board := tui.New(tui.Options{Source: base, TTL: cfg.Derive.OnlineTTL})
			go follow(ctx, api.NewStreamClient(base), board, base, watchRetry)
			return runBoard(ctx, cancel, board)
		}

		reg, err := buildWorld(cfg)
		if err != nil {
			return err
		}
		// the board owns the terminal, so the engine stays quiet
		engine, err := sim.New(cfg, reg, sim.WithLogger(logging.Discard()))
		if err != nil {
			return err
		}
		board := tui.New(tui.Options{
			Source:     fmt.Sprintf("local scale=%d seed=%d", cfg.World.Scale, cfg.World.Seed),
			TTL:        cfg.Derive.OnlineTTL,
			Connected:  true,
			Controller: engine,
		})
		unsubscribe := engine.Subscribe(board.Deliver)
		defer unsubscribe()
		engine.Start(ctx)
		defer engine.Stop()
		return runBoard(ctx, cancel, board)
	},
}

// runBoard blocks on the board and closes it when ctx ends first.
func runBoard(ctx context.Context, cancel context.CancelFunc, board *tui.Board) error {
	go func() {
		select {
		case <-ctx.Done():
			board.Close()
		case <-board.Done():
		}
	}()
	err := board.Run()
	cancel()
	return err
}

// follow streams snapshots from client into board, reconnecting after retry
// until ctx ends or the board quits.
func follow(ctx context.Context, client *api.StreamClient, board *tui.Board, label string, retry time.Duration) {
	for {
		connected := false
		err := client.Stream(ctx, func(s sim.Snapshot) error {
			if !connected {
				connected = true
				board.SetConnected(label, true)
			}
			return board.Deliver(s)
		})
		if ctx.Err() != nil || errors.Is(err, sim.ErrSubscriberClosed) {
			return
		}
		board.SetConnected(label, false)
		if err != nil {
			board.Notify(err.Error())
		}
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "Follow a running server (e.g. http://localhost:8080) instead of a local engine")
	watchCmd.Flags().DurationVar(&watchRetry, "retry", 2*time.Second, "Reconnect delay for --url")
}

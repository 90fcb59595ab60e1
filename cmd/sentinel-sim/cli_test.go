package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sentinel-sim/internal/dashboard"
	"sentinel-sim/internal/scenario"
	"sentinel-sim/internal/world"
)

// resetFlags restores every flag of cmd and its subcommands to its default.
// rootCmd is shared by all tests, so values and Changed marks would
// otherwise leak from one run into the next.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		if err := f.Value.Set(f.DefValue); err != nil {
			t.Fatalf("reset --%s: %v", f.Name, err)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(t, sub)
	}
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"SENTINEL_SCALE", "SENTINEL_SEED", "TICK_INTERVAL", "GREPTIMEDB_ENDPOINT", "NATS_URL"} {
		t.Setenv(k, "")
	}
	resetFlags(t, rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestWorldCommandMatchesBuilder(t *testing.T) {
	out, err := run(t, "world", "--scale", "10", "--seed", "3")
	if err != nil {
		t.Fatalf("world failed: %v\n%s", err, out)
	}
	var got world.Registry
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("world output is not a registry: %v", err)
	}
	want, err := world.Build(world.ScaleSmall, 3, scenario.BuiltIn())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(got.Gateways) != len(want.Gateways) || len(got.Nodes) != len(want.Nodes) {
		t.Fatalf("registry size %d/%d, want %d/%d", len(got.Gateways), len(got.Nodes), len(want.Gateways), len(want.Nodes))
	}
	for i := range want.Nodes {
		if got.Nodes[i].NodeID != want.Nodes[i].NodeID || got.Nodes[i].GatewayID != want.Nodes[i].GatewayID {
			t.Fatalf("node %d differs: %s/%s", i, got.Nodes[i].NodeID, got.Nodes[i].GatewayID)
		}
	}
}

func TestWorldCommandSummary(t *testing.T) {
	out, err := run(t, "world", "--scale", "10", "--seed", "3", "--summary")
	if err != nil {
		t.Fatalf("world failed: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[0], "scale=10 seed=3 ") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if len(lines) < 2 || !strings.HasPrefix(lines[1], "sentinel-gw") {
		t.Fatalf("expected one line per gateway:\n%s", out)
	}
}

func TestInvalidScaleFlag(t *testing.T) {
	if _, err := run(t, "world", "--scale", "50"); err == nil {
		t.Fatalf("expected error for unsupported scale")
	}
}

func TestDashboardCommand(t *testing.T) {
	t.Setenv(dashboard.DatasourceEnv, "uid1")
	dir := t.TempDir()
	out, err := run(t, "dashboard", "--out", dir)
	if err != nil {
		t.Fatalf("dashboard failed: %v\n%s", err, out)
	}
	if strings.TrimSpace(out) != filepath.Join(dir, "sentinel-dashboard.json") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFlagsDoNotLeakBetweenRuns(t *testing.T) {
	if _, err := run(t, "world", "--scale", "50"); err == nil {
		t.Fatalf("expected error for unsupported scale")
	}
	out, err := run(t, "world", "--summary")
	if err != nil {
		t.Fatalf("scale from the previous run leaked: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "scale=10 seed=0 ") {
		t.Fatalf("expected default scale and seed, got %q", strings.SplitN(out, "\n", 2)[0])
	}
}

func TestReplayRequiresInput(t *testing.T) {
	if _, err := run(t, "replay"); err == nil {
		t.Fatalf("expected error without --input")
	}
}

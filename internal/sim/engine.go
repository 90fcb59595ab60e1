// Package sim is the tick-driven world engine: it owns the mutable world,
// evolves it on a schedule and broadcasts consistent snapshots.
package sim

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sentinel-sim/internal/clock"
	"sentinel-sim/internal/config"
	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/observability"
	"sentinel-sim/internal/telemetry"
	"sentinel-sim/internal/world"
)

var (
	// ErrNotFound marks a command whose target does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks a malformed command.
	ErrInvalid = errors.New("invalid request")
	// ErrConflict marks a command that clashes with existing state.
	ErrConflict = errors.New("conflict")
)

// maxInitialUptime bounds the uptime nodes report before their first reboot.
const maxInitialUptime = 72 * time.Hour

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithRand replaces the engine's random source.
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rand = r } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithWriter sets the export sink. It may also implement AlertWriter and
// StateWriter.
func WithWriter(w TelemetryWriter) Option { return func(e *Engine) { e.writer = w } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option { return func(e *Engine) { e.metrics = m } }

// WithTracer sets the tracer used for tick and command spans.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// Engine is one simulation instance. All world state is guarded by mu;
// snapshots are published after mu is released.
type Engine struct {
	cfg     *config.SimulationConfig
	scale   world.Scale
	tick    time.Duration
	clock   clock.Clock
	rand    *rand.Rand
	log     *slog.Logger
	writer  TelemetryWriter
	metrics MetricsRecorder
	tracer  trace.Tracer

	synth  *telemetry.Synthesizer
	health *telemetry.HealthTracker
	bcast  *Broadcaster

	tickMu sync.Mutex // serialises Tick end to end

	mu        sync.Mutex
	gateways  []telemetry.GatewayRegistryItem // replaced, never edited in place
	nodes     []telemetry.NodeRegistryItem    // replaced, never edited in place
	gwStatus  map[string]GatewayStatus
	lastSeen  map[string]time.Time
	latest    map[string]telemetry.TelemetryMessage
	seq       map[string]uint64
	bootedAt  map[string]time.Time
	disabled  map[string]struct{}
	rebooting map[string]struct{}
	timers    map[string]clock.Timer
	alerts    []Alert
	settings  Settings
	startedAt time.Time
	ticks     uint64
	version   uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an engine over reg. The registry is copied.
func New(cfg *config.SimulationConfig, reg world.Registry, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if _, err := cfg.Scale().Profile(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		scale:     cfg.Scale(),
		tick:      cfg.Tick(),
		clock:     clock.Real(),
		gateways:  append([]telemetry.GatewayRegistryItem(nil), reg.Gateways...),
		nodes:     append([]telemetry.NodeRegistryItem(nil), reg.Nodes...),
		gwStatus:  make(map[string]GatewayStatus, len(reg.Gateways)),
		lastSeen:  make(map[string]time.Time, len(reg.Gateways)),
		latest:    make(map[string]telemetry.TelemetryMessage, len(reg.Nodes)),
		seq:       make(map[string]uint64, len(reg.Nodes)),
		bootedAt:  make(map[string]time.Time, len(reg.Nodes)),
		disabled:  make(map[string]struct{}),
		rebooting: make(map[string]struct{}),
		timers:    make(map[string]clock.Timer),
		settings: Settings{
			LowBatteryVolts:         cfg.Settings.LowBatteryVolts,
			HeartbeatMissingMinutes: cfg.Settings.HeartbeatMissingMinutes,
		},
	}
	for _, o := range opts {
		o(e)
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(engineSeed(e.scale, cfg.World.Seed)))
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.tracer == nil {
		e.tracer = observability.Tracer()
	}
	e.synth = telemetry.NewSynthesizer(e.rand, cfg.Engine.Flags)
	e.health = telemetry.NewHealthTracker(cfg.Health(), e.rand)
	e.bcast = NewBroadcaster(e.log, e.metrics)

	now := e.clock.Now()
	e.startedAt = now
	for _, g := range e.gateways {
		e.gwStatus[g.GatewayID] = GatewayOnline
		e.lastSeen[g.GatewayID] = now
	}
	ids := make([]string, len(e.nodes))
	for i, n := range e.nodes {
		ids[i] = n.NodeID
		e.bootedAt[n.NodeID] = now.Add(-time.Duration(e.rand.Int63n(int64(maxInitialUptime))))
	}
	e.health.Init(ids)
	return e, nil
}

func engineSeed(scale world.Scale, seed int64) int64 {
	return 2654435761*seed + 31*int64(scale) + 1
}

// Start launches the scheduler goroutine. Calling Start on a running engine
// is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
}

// Stop halts the scheduler, waits for it to exit and cancels pending reboot
// timers. It is safe to call more than once.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.runMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	e.mu.Lock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	e.mu.Unlock()
}

// Run ticks once immediately and then on every scheduler beat until ctx is
// done.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("starting engine", "scale", e.scale, "tick_interval", e.tick,
		"gateways", len(e.gateways), "nodes", len(e.nodes))
	ticker := e.clock.NewTicker(e.tick)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ticker.C():
			e.Tick(ctx)
		case <-ctx.Done():
			e.log.Info("stopping engine")
			return
		}
	}
}

// Tick advances the world one step, exports the emitted messages and
// publishes the resulting snapshot, which it also returns.
func (e *Engine) Tick(ctx context.Context) Snapshot {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	_, span := e.tracer.Start(ctx, "sentinel.tick")
	defer span.End()
	began := time.Now()

	e.mu.Lock()
	now := e.clock.Now()
	e.ticks++
	e.refreshGatewaysLocked(now)
	e.health.Step(e.nodeIDsLocked())
	batch, thinned := e.synthesizeLocked(now)
	raised := e.evaluateAlertsLocked(now, batch)
	offline, degraded := e.health.Counts()
	snap := e.snapshotLocked(now)
	row := telemetry.SimulationStateRow{
		Scale:     int(e.scale),
		Tick:      e.ticks,
		Nodes:     len(e.nodes),
		Emitted:   len(batch),
		Thinned:   thinned,
		Offline:   offline,
		Degraded:  degraded,
		Alerts:    len(e.alerts),
		Timestamp: now.UTC(),
	}
	gateways := len(e.gateways)
	e.mu.Unlock()

	row.Subscribers = e.bcast.Len()
	row.DurationMS = float64(time.Since(began).Microseconds()) / 1000
	e.export(batch, raised, row)

	e.metrics.ObserveTick(time.Since(began), len(batch), thinned)
	e.metrics.SetWorld(gateways, row.Nodes, offline, degraded)
	for _, a := range raised {
		e.metrics.IncAlert(string(a.Rule))
	}
	span.SetAttributes(
		attribute.Int64("sentinel.tick", int64(row.Tick)),
		attribute.Int("sentinel.emitted", len(batch)),
		attribute.Int("sentinel.alerts_raised", len(raised)),
	)

	e.bcast.Publish(snap)
	return snap
}

// refreshGatewaysLocked regenerates last-seen for online gateways.
func (e *Engine) refreshGatewaysLocked(now time.Time) {
	jitter := e.cfg.Engine.FreshnessJitter
	for _, g := range e.gateways {
		if e.gwStatus[g.GatewayID] != GatewayOnline {
			continue
		}
		var back time.Duration
		if jitter > 0 {
			back = time.Duration(e.rand.Int63n(int64(jitter)))
		}
		e.lastSeen[g.GatewayID] = now.Add(-back)
	}
}

// synthesizeLocked produces this tick's messages. Offline nodes and nodes
// behind a gateway that is not online stay silent.
func (e *Engine) synthesizeLocked(now time.Time) (batch []telemetry.TelemetryMessage, thinned int) {
	elapsed := now.Sub(e.startedAt)
	fleet := len(e.nodes)
	for _, n := range e.nodes {
		if e.gwStatus[n.GatewayID] != GatewayOnline {
			continue
		}
		state := e.health.State(n.NodeID)
		if state == telemetry.StateOffline {
			continue
		}
		if !e.synth.Keep(fleet, e.cfg.Engine.Thinning) {
			thinned++
			continue
		}
		e.seq[n.NodeID]++
		msg := e.synth.Generate(telemetry.NodeInput{
			Node:     n,
			State:    state,
			Seq:      e.seq[n.NodeID],
			BootedAt: e.bootedAt[n.NodeID],
		}, now, elapsed, e.settings.LowBatteryVolts)
		e.latest[n.NodeID] = msg
		batch = append(batch, msg)
	}
	return batch, thinned
}

// export hands the tick output to the configured sink. Failures are logged
// and counted, never fatal.
func (e *Engine) export(batch []telemetry.TelemetryMessage, raised []Alert, row telemetry.SimulationStateRow) {
	if e.writer == nil {
		return
	}
	if len(batch) > 0 {
		if err := writeAll(e.writer, batch); err != nil {
			e.metrics.IncExportError("telemetry")
			e.log.Error("telemetry export failed", "err", err, "rows", len(batch))
		}
	}
	if aw, ok := e.writer.(AlertWriter); ok {
		for _, a := range raised {
			if err := aw.WriteAlert(a); err != nil {
				e.metrics.IncExportError("alerts")
				e.log.Error("alert export failed", "alert_id", a.ID, "err", err)
			}
		}
	}
	if sw, ok := e.writer.(StateWriter); ok {
		if err := sw.WriteState(row); err != nil {
			e.metrics.IncExportError("state")
			e.log.Error("state export failed", "err", err)
		}
	}
}

// Snapshot returns the current world view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock.Now())
}

// Subscribe registers fn for every future publish.
func (e *Engine) Subscribe(fn Subscriber) (unsubscribe func()) { return e.bcast.Subscribe(fn) }

// SubscriberCount returns the number of live subscribers.
func (e *Engine) SubscriberCount() int { return e.bcast.Len() }

// Scale returns the engine's world scale.
func (e *Engine) Scale() world.Scale { return e.scale }

// Interval returns the tick cadence.
func (e *Engine) Interval() time.Duration { return e.tick }

// Registry returns the current registry. The slices must not be modified.
func (e *Engine) Registry() world.Registry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return world.Registry{Gateways: e.gateways, Nodes: e.nodes}
}

func (e *Engine) nodeIDsLocked() []string {
	ids := make([]string, len(e.nodes))
	for i, n := range e.nodes {
		ids[i] = n.NodeID
	}
	return ids
}

func (e *Engine) nodeLocked(id string) (telemetry.NodeRegistryItem, bool) {
	for _, n := range e.nodes {
		if n.NodeID == id {
			return n, true
		}
	}
	return telemetry.NodeRegistryItem{}, false
}

func (e *Engine) gatewayIndexLocked(id string) int {
	for i, g := range e.gateways {
		if g.GatewayID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) nodeIndexLocked(id string) int {
	for i, n := range e.nodes {
		if n.NodeID == id {
			return i
		}
	}
	return -1
}

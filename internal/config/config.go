// Package config loads the simulation configuration from YAML, validating it
// against a CUE schema before decoding.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sentinel-sim/internal/observability"
	"sentinel-sim/internal/telemetry"
	"sentinel-sim/internal/world"
)

// ErrInvalid marks a configuration that decodes but cannot drive a run.
var ErrInvalid = errors.New("invalid configuration")

// WorldConfig selects the generated world.
type WorldConfig struct {
	Scale     int    `yaml:"scale"`
	Seed      int64  `yaml:"seed"`
	Catalogue string `yaml:"catalogue"` // optional YAML template override
}

// EngineConfig tunes the tick loop and the synthesizer.
type EngineConfig struct {
	// TickInterval overrides the scale's tick cadence when non-zero.
	TickInterval    time.Duration               `yaml:"tick_interval"`
	FlipProbability float64                     `yaml:"flip_probability"`
	OfflinePct      *float64                    `yaml:"offline_pct"`
	DegradedPct     *float64                    `yaml:"degraded_pct"`
	Flags           telemetry.FlagProbabilities `yaml:"flags"`
	Thinning        []telemetry.ThinningRule    `yaml:"thinning"`
	RebootDelay     time.Duration               `yaml:"reboot_delay"`
	FreshnessJitter time.Duration               `yaml:"freshness_jitter"`
}

// AlertConfig holds the alert heuristic rates and retention.
type AlertConfig struct {
	LowBatteryProbability       float64       `yaml:"low_battery_probability"`
	MissingHeartbeatProbability float64       `yaml:"missing_heartbeat_probability"`
	AnomalyProbability          float64       `yaml:"anomaly_probability"`
	DedupWindow                 time.Duration `yaml:"dedup_window"`
	MaxAlerts                   int           `yaml:"max_alerts"`
}

// SettingsConfig seeds the operator-editable settings.
type SettingsConfig struct {
	LowBatteryVolts         float64 `yaml:"low_battery_volts"`
	HeartbeatMissingMinutes int     `yaml:"heartbeat_missing_minutes"`
}

// DeriveConfig parameterises the read-side derivations.
type DeriveConfig struct {
	OnlineTTL     time.Duration `yaml:"online_ttl"`
	SeriesBuckets int           `yaml:"series_buckets"`
	SeriesStep    time.Duration `yaml:"series_step"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GreptimeConfig configures the GreptimeDB export sink. Empty Endpoint
// disables it.
type GreptimeConfig struct {
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// NATSConfig configures the NATS export sink. Empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SinksConfig lists the enabled export sinks.
type SinksConfig struct {
	File     string         `yaml:"file"`   // JSONL path
	Stdout   string         `yaml:"stdout"` // "", json, color or auto
	Greptime GreptimeConfig `yaml:"greptime"`
	NATS     NATSConfig     `yaml:"nats"`
}

// SimulationConfig is the root configuration.
type SimulationConfig struct {
	World    WorldConfig                 `yaml:"world"`
	Engine   EngineConfig                `yaml:"engine"`
	Alerts   AlertConfig                 `yaml:"alerts"`
	Settings SettingsConfig              `yaml:"settings"`
	Derive   DeriveConfig                `yaml:"derive"`
	Server   ServerConfig                `yaml:"server"`
	Logging  LoggingConfig               `yaml:"logging"`
	Tracing  observability.TracingConfig `yaml:"tracing"`
	Sinks    SinksConfig                 `yaml:"sinks"`
}

// Default returns the stock configuration: the small world, seed 0, every
// export sink off.
func Default() *SimulationConfig {
	return &SimulationConfig{
		World: WorldConfig{Scale: int(world.ScaleSmall)},
		Engine: EngineConfig{
			FlipProbability: 0.03,
			Flags:           telemetry.DefaultFlagProbabilities(),
			Thinning:        telemetry.DefaultThinning(),
			RebootDelay:     1500 * time.Millisecond,
			FreshnessJitter: 15 * time.Second,
		},
		Alerts: AlertConfig{
			LowBatteryProbability:       0.25,
			MissingHeartbeatProbability: 0.18,
			AnomalyProbability:          0.06,
			DedupWindow:                 30 * time.Second,
			MaxAlerts:                   80,
		},
		Settings: SettingsConfig{LowBatteryVolts: 3.55, HeartbeatMissingMinutes: 10},
		Derive: DeriveConfig{
			OnlineTTL:     12 * time.Second,
			SeriesBuckets: 24,
			SeriesStep:    5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracing(),
		Sinks: SinksConfig{
			Greptime: GreptimeConfig{Port: 4001, Database: "public", Table: "sentinel_telemetry"},
			NATS:     NATSConfig{SubjectPrefix: "sentinel"},
		},
	}
}

// Load reads configPath (if non-empty), validates it against the CUE schema
// at schemaPath (or the embedded schema when empty), decodes it over the
// defaults, applies environment overrides and checks the result.
func Load(configPath, schemaPath string) (*SimulationConfig, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		schema := embeddedSchema
		if schemaPath != "" {
			if schema, err = os.ReadFile(schemaPath); err != nil {
				return nil, fmt.Errorf("read schema: %w", err)
			}
		}
		if err := ValidateWithCue(configPath, data, schema); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the supported environment variables using getenv.
func (c *SimulationConfig) ApplyEnv(getenv func(string) string) error {
	if v := getenv("SENTINEL_SCALE"); v != "" {
		s, err := world.ParseScale(v)
		if err != nil {
			return fmt.Errorf("SENTINEL_SCALE: %w", err)
		}
		c.World.Scale = int(s)
	}
	if v := getenv("SENTINEL_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SENTINEL_SEED: %w", err)
		}
		c.World.Seed = n
	}
	if v := getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		c.Engine.TickInterval = d
	}
	if v := getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Sinks.Greptime.Endpoint = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("GREPTIMEDB_ENDPOINT: %w", err)
			}
			c.Sinks.Greptime.Port = p
		}
	}
	if v := getenv("GREPTIMEDB_DATABASE"); v != "" {
		c.Sinks.Greptime.Database = v
	}
	if v := getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Sinks.Greptime.Table = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.Sinks.NATS.URL = v
	}
	if v := getenv("SENTINEL_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = strings.EqualFold(v, "true")
	}
	if v := getenv("SENTINEL_TRACING_EXPORTER"); v != "" {
		c.Tracing.Exporter = strings.ToLower(v)
	}
	if v := getenv("SENTINEL_TRACING_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if v := getenv("SENTINEL_TRACING_SAMPLE_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SENTINEL_TRACING_SAMPLE_RATIO: %w", err)
		}
		c.Tracing.SampleRatio = r
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *SimulationConfig) Validate() error {
	if !world.Scale(c.World.Scale).Valid() {
		return fmt.Errorf("%w: world.scale %d (want 10, 100 or 1000)", ErrInvalid, c.World.Scale)
	}
	if c.World.Seed < 0 || c.World.Seed > math.MaxUint32 {
		return fmt.Errorf("%w: world.seed %d out of range", ErrInvalid, c.World.Seed)
	}
	probs := map[string]float64{
		"engine.flip_probability":              c.Engine.FlipProbability,
		"engine.flags.sensor_fault":            c.Engine.Flags.SensorFault,
		"engine.flags.tamper":                  c.Engine.Flags.Tamper,
		"engine.flags.time_unsynced":           c.Engine.Flags.TimeUnsynced,
		"engine.flags.memory_low":              c.Engine.Flags.MemoryLow,
		"engine.flags.domain_off":              c.Engine.Flags.DomainOff,
		"alerts.low_battery_probability":       c.Alerts.LowBatteryProbability,
		"alerts.missing_heartbeat_probability": c.Alerts.MissingHeartbeatProbability,
		"alerts.anomaly_probability":           c.Alerts.AnomalyProbability,
		"tracing.sample_ratio":                 c.Tracing.SampleRatio,
	}
	if c.Engine.OfflinePct != nil {
		probs["engine.offline_pct"] = *c.Engine.OfflinePct
	}
	if c.Engine.DegradedPct != nil {
		probs["engine.degraded_pct"] = *c.Engine.DegradedPct
	}
	for name, p := range probs {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: %s %.4f outside [0, 1]", ErrInvalid, name, p)
		}
	}
	for i, r := range c.Engine.Thinning {
		if r.MinNodes < 0 || r.KeepProbability < 0 || r.KeepProbability > 1 {
			return fmt.Errorf("%w: engine.thinning[%d] %+v", ErrInvalid, i, r)
		}
	}
	if c.Engine.TickInterval < 0 || c.Engine.RebootDelay < 0 || c.Engine.FreshnessJitter < 0 {
		return fmt.Errorf("%w: engine durations must not be negative", ErrInvalid)
	}
	if c.Alerts.MaxAlerts <= 0 {
		return fmt.Errorf("%w: alerts.max_alerts must be positive", ErrInvalid)
	}
	if c.Settings.LowBatteryVolts <= 0 || c.Settings.HeartbeatMissingMinutes <= 0 {
		return fmt.Errorf("%w: settings must be positive", ErrInvalid)
	}
	if c.Derive.OnlineTTL <= 0 || c.Derive.SeriesBuckets <= 0 || c.Derive.SeriesStep <= 0 {
		return fmt.Errorf("%w: derive settings must be positive", ErrInvalid)
	}
	if c.Derive.SeriesStep < time.Millisecond {
		return fmt.Errorf("%w: derive.series_step must be at least 1ms", ErrInvalid)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is empty", ErrInvalid)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalid, c.Logging.Format)
	}
	switch c.Sinks.Stdout {
	case "", "json", "color", "auto":
	default:
		return fmt.Errorf("%w: sinks.stdout %q", ErrInvalid, c.Sinks.Stdout)
	}
	return nil
}

// Scale returns the configured world scale.
func (c *SimulationConfig) Scale() world.Scale { return world.Scale(c.World.Scale) }

// Tick returns the effective tick interval.
func (c *SimulationConfig) Tick() time.Duration {
	if c.Engine.TickInterval > 0 {
		return c.Engine.TickInterval
	}
	p, err := c.Scale().Profile()
	if err != nil {
		return time.Second
	}
	return p.Tick
}

// Health returns the health tracker parameters, falling back to the scale's
// offline and degraded shares.
func (c *SimulationConfig) Health() telemetry.HealthConfig {
	p, _ := c.Scale().Profile()
	h := telemetry.HealthConfig{
		OfflinePct:      p.OfflinePct,
		DegradedPct:     p.DegradedPct,
		FlipProbability: c.Engine.FlipProbability,
	}
	if c.Engine.OfflinePct != nil {
		h.OfflinePct = *c.Engine.OfflinePct
	}
	if c.Engine.DegradedPct != nil {
		h.DegradedPct = *c.Engine.DegradedPct
	}
	return h
}

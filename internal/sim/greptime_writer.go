package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"sentinel-sim/internal/config"
	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/telemetry"
)

const greptimeWriteTimeout = 5 * time.Second

// greptimeClient is the part of the ingester client the writer uses.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes telemetry, alerts and state rows to GreptimeDB via
// the ingester client. Tables are created on first write.
type GreptimeDBWriter struct {
	client     greptimeClient
	table      string
	alertTable string
	stateTable string
	log        *slog.Logger
}

// NewGreptimeDBWriter connects to the configured GreptimeDB endpoint.
func NewGreptimeDBWriter(cfg config.GreptimeConfig, log *slog.Logger) (*GreptimeDBWriter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("greptime: endpoint required")
	}
	gc := greptime.NewConfig(cfg.Endpoint).WithDatabase(cfg.Database)
	if cfg.Port > 0 {
		gc = gc.WithPort(cfg.Port)
	}
	client, err := greptime.NewClient(gc)
	if err != nil {
		return nil, fmt.Errorf("greptime: %w", err)
	}
	if log == nil {
		log = logging.Discard()
	}
	name := cfg.Table
	if name == "" {
		name = "sentinel_telemetry"
	}
	return &GreptimeDBWriter{
		client:     client,
		table:      name,
		alertTable: name + "_alerts",
		stateTable: name + "_state",
		log:        log.With("sink", "greptime"),
	}, nil
}

// Write inserts a single telemetry message.
func (w *GreptimeDBWriter) Write(m telemetry.TelemetryMessage) error {
	return w.WriteBatch([]telemetry.TelemetryMessage{m})
}

// WriteBatch inserts multiple telemetry messages in one request.
func (w *GreptimeDBWriter) WriteBatch(ms []telemetry.TelemetryMessage) error {
	if len(ms) == 0 {
		return nil
	}
	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	cols := []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"gateway_id", true, types.STRING},
		{"node_id", true, types.STRING},
		{"profile", true, types.STRING},
		{"seq", false, types.INT64},
		{"battery_v", false, types.FLOAT64},
		{"uptime_s", false, types.INT64},
		{"status_flags", false, types.INT64},
		{"temperature_c", false, types.FLOAT64},
		{"humidity_rh", false, types.FLOAT64},
		{"rssi_dbm", false, types.FLOAT64},
		{"snr_db", false, types.FLOAT64},
		{"lqi", false, types.INT64},
		{"payload", false, types.JSON},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	for _, m := range ms {
		payload, err := json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", m.NodeID, err)
		}
		var rssi, snr float64
		var lqi int64
		if v, ok := m.RSSI(); ok {
			rssi = float64(v)
		}
		if m.Links.LoRa != nil {
			snr = m.Links.LoRa.SNRdB
		}
		if m.Links.Mesh != nil {
			lqi = int64(m.Links.Mesh.LQI)
		}
		if err := tbl.AddRow(
			m.GatewayID, m.NodeID, string(m.Profile),
			int64(m.Seq), m.BatteryV, m.UptimeS, int64(m.StatusFlags),
			m.TemperatureC, m.HumidityRH, rssi, snr, lqi,
			string(payload), m.Timestamp,
		); err != nil {
			return err
		}
	}
	return w.send(w.table, tbl, len(ms))
}

// WriteAlert inserts one alert row.
func (w *GreptimeDBWriter) WriteAlert(a Alert) error {
	tbl, err := table.New(w.alertTable)
	if err != nil {
		return err
	}
	for _, c := range []string{"gateway_id", "node_id", "rule"} {
		if err := tbl.AddTagColumn(c, types.STRING); err != nil {
			return err
		}
	}
	for _, c := range []string{"id", "severity", "message"} {
		if err := tbl.AddFieldColumn(c, types.STRING); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(a.GatewayID, a.NodeID, string(a.Rule), a.ID, string(a.Severity), a.Message, a.TS); err != nil {
		return err
	}
	return w.send(w.alertTable, tbl, 1)
}

// WriteState inserts one engine state row.
func (w *GreptimeDBWriter) WriteState(row telemetry.SimulationStateRow) error {
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("scale", types.STRING); err != nil {
		return err
	}
	for _, c := range []string{"tick", "nodes", "emitted", "thinned", "offline", "degraded", "alerts", "subscribers"} {
		if err := tbl.AddFieldColumn(c, types.INT64); err != nil {
			return err
		}
	}
	if err := tbl.AddFieldColumn("duration_ms", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(fmt.Sprint(row.Scale), int64(row.Tick), int64(row.Nodes), int64(row.Emitted),
		int64(row.Thinned), int64(row.Offline), int64(row.Degraded), int64(row.Alerts),
		int64(row.Subscribers), row.DurationMS, row.Timestamp); err != nil {
		return err
	}
	return w.send(w.stateTable, tbl, 1)
}

func (w *GreptimeDBWriter) send(name string, tbl *table.Table, rows int) error {
	ctx, cancel := context.WithTimeout(context.Background(), greptimeWriteTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write %s: %w", name, err)
	}
	w.log.Debug("wrote rows", "table", name, "rows", rows)
	return nil
}

package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"sentinel-sim/internal/logging"
	"sentinel-sim/internal/telemetry"
)

type mockGreptimeClient struct {
	tables []*table.Table
	err    error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, m.err
}

func newMockGreptimeWriter(m *mockGreptimeClient) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:     m,
		table:      "sentinel_telemetry",
		alertTable: "sentinel_telemetry_alerts",
		stateTable: "sentinel_telemetry_state",
		log:        logging.Discard(),
	}
}

func TestGreptimeWriterTelemetryRows(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newMockGreptimeWriter(m)
	ts := time.Unix(100, 0).UTC()
	if err := w.WriteBatch([]telemetry.TelemetryMessage{sampleMessage("node-1", ts), sampleMessage("node-2", ts)}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(m.tables) != 1 {
		t.Fatalf("expected one table per batch, got %d", len(m.tables))
	}
	rows := m.tables[0].GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	schema := rows.Schema
	if schema[0].ColumnName != "gateway_id" || schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("first column = %+v", schema[0])
	}
	var payloadIdx = -1
	for i, c := range schema {
		if c.ColumnName == "payload" {
			payloadIdx = i
			if c.Datatype != gpb.ColumnDataType_JSON {
				t.Fatalf("payload type = %v, want JSON", c.Datatype)
			}
		}
	}
	if payloadIdx < 0 {
		t.Fatalf("payload column missing")
	}
	if got := rows.Rows[1].Values[1].GetStringValue(); got != "node-2" {
		t.Fatalf("node_id = %s, want node-2", got)
	}
	want := `{"pga_g":0.02,"pgv_cms":0.4,"dominant_freq_hz":3.1,"triggered":false}`
	if got := rows.Rows[0].Values[payloadIdx].GetStringValue(); got != want {
		t.Fatalf("payload = %s, want %s", got, want)
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	if err := newMockGreptimeWriter(m).WriteBatch(nil); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(m.tables) != 0 {
		t.Fatalf("empty batch should not reach the client")
	}
}

func TestGreptimeWriterAlertAndState(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newMockGreptimeWriter(m)
	ts := time.Unix(5, 0).UTC()
	if err := w.WriteAlert(Alert{ID: "AL-0000ABCD", Rule: RuleLowBattery, Severity: SeverityWarn, GatewayID: "gw-a", NodeID: "node-1", TS: ts}); err != nil {
		t.Fatalf("WriteAlert: %v", err)
	}
	if err := w.WriteState(telemetry.SimulationStateRow{Scale: 100, Tick: 4, Timestamp: ts}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}
	if len(m.tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(m.tables))
	}
	if got := m.tables[0].GetRows().Rows[0].Values[3].GetStringValue(); got != "AL-0000ABCD" {
		t.Fatalf("alert id = %s", got)
	}
	if got := m.tables[1].GetRows().Rows[0].Values[0].GetStringValue(); got != "100" {
		t.Fatalf("scale tag = %s", got)
	}
}

func TestGreptimeWriterWrapsClientError(t *testing.T) {
	boom := errors.New("unavailable")
	w := newMockGreptimeWriter(&mockGreptimeClient{err: boom})
	if err := w.Write(sampleMessage("node-1", time.Unix(0, 0))); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped client error", err)
	}
}

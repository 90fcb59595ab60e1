package telemetry

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestMessageJSONKeepsPayloadType(t *testing.T) {
	tilt := 1.4
	in := TelemetryMessage{
		NodeID:      "node-0007",
		GatewayID:   "sentinel-gw02",
		Timestamp:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Seq:         12,
		Profile:     ProfileSSS,
		Role:        RoleSensor,
		Networks:    []Network{NetworkLoRa},
		BatteryV:    3.812,
		StatusFlags: FlagTamper | FlagLowBattery,
		Links:       Links{LoRa: &LoRaLink{RSSIdBm: -80, SNRdB: 4.5, FreqMHz: 868.1, SF: 7, BWkHz: 125}},
		Payload:     SoilPayload{Classifier: ClassGeohazard, SoilMoistureVWC: 0.2, TiltDeg: &tilt},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out TelemetryMessage
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("decoded message differs:\n in=%+v\nout=%+v", in, out)
	}
}

func TestDecodePayloadUnknownProfile(t *testing.T) {
	_, err := DecodePayload("xyz", []byte(`{}`))
	if !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestStatusFlagNames(t *testing.T) {
	f := FlagDomainOff | FlagLinkDegraded | FlagMemoryLow
	got := f.Names()
	want := []string{"DOMAIN_OFF", "LINK_DEGRADED", "MEMORY_LOW"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if f.Has(FlagTamper) {
		t.Fatalf("unexpected tamper bit")
	}
}

func TestSeismicTriggered(t *testing.T) {
	if !SeismicTriggered(SeismicPayload{Triggered: true}) {
		t.Errorf("triggered seismic payload not detected")
	}
	if SeismicTriggered(VibrationPayload{}) || SeismicTriggered(nil) {
		t.Errorf("non-seismic payloads never trigger")
	}
}

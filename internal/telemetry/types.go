// Registry and telemetry message types shared by the world builder, engine and consumers
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Profile is the sensing specialization of a node.
type Profile string

const (
	ProfileSVS Profile = "svs" // structural vibration
	ProfileAAQ Profile = "aaq" // ambient air quality
	ProfileSMS Profile = "sms" // seismic motion
	ProfileSSS Profile = "sss" // soil / slope sensing
	ProfileTSR Profile = "tsr" // timing & radio relay
)

// Profiles lists every profile in canonical order.
var Profiles = []Profile{ProfileSVS, ProfileAAQ, ProfileSMS, ProfileSSS, ProfileTSR}

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	switch p {
	case ProfileSVS, ProfileAAQ, ProfileSMS, ProfileSSS, ProfileTSR:
		return true
	}
	return false
}

// Role of a node within its site mesh.
type Role string

const (
	RoleSensor Role = "sensor"
	RoleBridge Role = "bridge"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleSensor || r == RoleBridge }

// Network is a node-side transport.
type Network string

const (
	NetworkLoRa Network = "lora"
	NetworkMesh Network = "mesh"
)

// Valid reports whether n is a known network.
func (n Network) Valid() bool { return n == NetworkLoRa || n == NetworkMesh }

// Backhaul is the gateway uplink class.
type Backhaul string

const (
	Backhaul4G       Backhaul = "4g"
	BackhaulWiFi     Backhaul = "wifi"
	BackhaulEthernet Backhaul = "ethernet"
	BackhaulSat      Backhaul = "sat"
)

// Valid reports whether b is a known backhaul class.
func (b Backhaul) Valid() bool {
	switch b {
	case Backhaul4G, BackhaulWiFi, BackhaulEthernet, BackhaulSat:
		return true
	}
	return false
}

// Location is a WGS84 position with optional altitude and accuracy.
type Location struct {
	Lat       float64 `json:"lat" yaml:"lat"`
	Lon       float64 `json:"lon" yaml:"lon"`
	AltM      float64 `json:"alt_m,omitempty" yaml:"alt_m,omitempty"`
	AccuracyM float64 `json:"accuracy_m,omitempty" yaml:"accuracy_m,omitempty"`
}

// Structure annotates a node mounted on a monitored asset.
type Structure struct {
	StructureID string `json:"structure_id" yaml:"structure_id"`
	AssetType   string `json:"asset_type,omitempty" yaml:"asset_type,omitempty"` // bridge | building | slope | field
	Note        string `json:"note,omitempty" yaml:"note,omitempty"`
}

// GatewayRegistryItem describes one gateway. Values are never mutated after
// generation; edits replace the item.
type GatewayRegistryItem struct {
	GatewayID   string   `json:"gateway_id"`
	DisplayName string   `json:"display_name"`
	Region      string   `json:"region"`
	Scenario    string   `json:"scenario,omitempty"`
	Backhaul    Backhaul `json:"backhaul"`
	Location    Location `json:"location"`
}

// NodeRegistryItem describes one sensor node attached to a gateway.
type NodeRegistryItem struct {
	NodeID      string     `json:"node_id"`
	DisplayName string     `json:"display_name"`
	Profile     Profile    `json:"profile"`
	Role        Role       `json:"role"`
	Networks    []Network  `json:"networks"`
	GatewayID   string     `json:"gateway_id"`
	SiteID      string     `json:"site_id"`
	Location    Location   `json:"location"`
	Structure   *Structure `json:"structure,omitempty"`
}

// HasNetwork reports whether the node is attached to net.
func (n NodeRegistryItem) HasNetwork(net Network) bool {
	for _, x := range n.Networks {
		if x == net {
			return true
		}
	}
	return false
}

// StatusFlags is the 8-bit device condition mask. Bits are independent.
type StatusFlags uint8

const (
	FlagDomainOff StatusFlags = 1 << iota
	FlagLowBattery
	FlagCharging
	FlagSensorFault
	FlagTimeUnsynced
	FlagTamper
	FlagLinkDegraded
	FlagMemoryLow
)

var flagNames = []struct {
	bit  StatusFlags
	name string
}{
	{FlagDomainOff, "DOMAIN_OFF"},
	{FlagLowBattery, "LOW_BATTERY"},
	{FlagCharging, "CHARGING"},
	{FlagSensorFault, "SENSOR_FAULT"},
	{FlagTimeUnsynced, "TIME_UNSYNCED"},
	{FlagTamper, "TAMPER"},
	{FlagLinkDegraded, "LINK_DEGRADED"},
	{FlagMemoryLow, "MEMORY_LOW"},
}

// Has reports whether every bit in mask is set.
func (f StatusFlags) Has(mask StatusFlags) bool { return f&mask == mask }

// Names lists the set bits from least significant up.
func (f StatusFlags) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f.Has(fn.bit) {
			out = append(out, fn.name)
		}
	}
	return out
}

// LoRaLink holds LoRa radio metrics.
type LoRaLink struct {
	RSSIdBm int     `json:"rssi_dbm"`
	SNRdB   float64 `json:"snr_db"`
	FreqMHz float64 `json:"freq_mhz"`
	SF      int     `json:"sf"`
	BWkHz   int     `json:"bw_khz"`
}

// MeshLink holds 802.15.4 mesh metrics.
type MeshLink struct {
	RSSIdBm int `json:"rssi_dbm"`
	LQI     int `json:"lqi"`
	Channel int `json:"channel"`
}

// Links carries metrics for each network the node is attached to.
type Links struct {
	LoRa *LoRaLink `json:"lora,omitempty"`
	Mesh *MeshLink `json:"mesh,omitempty"`
}

// TelemetryMessage is one node's observation at one tick. It is a value
// object: the engine supersedes it with the next message, never edits it.
type TelemetryMessage struct {
	NodeID       string      `json:"node_id"`
	GatewayID    string      `json:"gateway_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Seq          uint64      `json:"seq"`
	Profile      Profile     `json:"profile"`
	Role         Role        `json:"role"`
	Networks     []Network   `json:"networks"`
	BatteryV     float64     `json:"battery_v"`
	UptimeS      int64       `json:"uptime_s"`
	StatusFlags  StatusFlags `json:"status_flags"`
	TemperatureC float64     `json:"temperature_c"`
	HumidityRH   float64     `json:"humidity_rh"`
	Links        Links       `json:"links"`
	Payload      Payload     `json:"payload"`
}

// RSSI returns the primary link RSSI, preferring LoRa over mesh.
func (m TelemetryMessage) RSSI() (int, bool) {
	switch {
	case m.Links.LoRa != nil:
		return m.Links.LoRa.RSSIdBm, true
	case m.Links.Mesh != nil:
		return m.Links.Mesh.RSSIdBm, true
	}
	return 0, false
}

// UnmarshalJSON decodes the payload into the concrete type named by profile.
func (m *TelemetryMessage) UnmarshalJSON(b []byte) error {
	type alias TelemetryMessage
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		m.Payload = nil
		return nil
	}
	p, err := DecodePayload(m.Profile, aux.Payload)
	if err != nil {
		return fmt.Errorf("node %s: %w", m.NodeID, err)
	}
	m.Payload = p
	return nil
}

package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownProfile is returned when a payload cannot be matched to a profile.
var ErrUnknownProfile = errors.New("unknown profile")

// Payload is the profile-specific part of a TelemetryMessage. The set of
// implementations is closed: VibrationPayload, AirQualityPayload,
// SeismicPayload, SoilPayload and RadioPayload.
type Payload interface {
	Profile() Profile
	isPayload()
}

// Bandpower is the spectral energy split of a vibration window.
type Bandpower struct {
	BP0to10   int `json:"bp_0_10"`
	BP10to50  int `json:"bp_10_50"`
	BP50to200 int `json:"bp_50_200"`
}

// VibrationPayload is emitted by svs nodes.
type VibrationPayload struct {
	AccelRMSg      float64   `json:"accel_rms_g"`
	AccelPeakg     float64   `json:"accel_peak_g"`
	DominantFreqHz float64   `json:"dominant_freq_hz"`
	TiltXDeg       float64   `json:"tilt_x_deg"`
	TiltYDeg       float64   `json:"tilt_y_deg"`
	StrainUE       int       `json:"strain_ue"`
	Bandpower      Bandpower `json:"bandpower"`
}

// AirQualityPayload is emitted by aaq nodes.
type AirQualityPayload struct {
	VOCIndex   int     `json:"voc_index"`
	PM1ugm3    float64 `json:"pm1_0_ugm3"`
	PM25ugm3   float64 `json:"pm2_5_ugm3"`
	PM10ugm3   float64 `json:"pm10_ugm3"`
	CO2ppm     int     `json:"co2_ppm"`
	SmokeScore int     `json:"smoke_score"`
}

// SeismicPayload is emitted by sms nodes.
type SeismicPayload struct {
	PGAg           float64 `json:"pga_g"`
	PGVcms         float64 `json:"pgv_cms"`
	DominantFreqHz float64 `json:"dominant_freq_hz"`
	Triggered      bool    `json:"triggered"`
}

// Soil classifier values.
const (
	ClassAgriculture = "agriculture"
	ClassGeohazard   = "geohazard"
)

// SoilPayload is emitted by sss nodes. TiltDeg is only reported on
// geohazard sites.
type SoilPayload struct {
	Classifier      string   `json:"classifier"`
	SoilMoistureVWC float64  `json:"soil_moisture_vwc"`
	SoilTempC       float64  `json:"soil_temp_c"`
	SoilECmScm      float64  `json:"soil_ec_ms_cm"`
	SpkLevels       [8]int   `json:"spk_levels"`
	TiltDeg         *float64 `json:"tilt_deg,omitempty"`
}

// RadioPayload is emitted by tsr nodes.
type RadioPayload struct {
	Kind      string  `json:"kind"`
	PacketsRX int     `json:"packets_rx"`
	PacketsTX int     `json:"packets_tx"`
	RXRateS   float64 `json:"rx_rate_s"`
}

func (VibrationPayload) Profile() Profile  { return ProfileSVS }
func (AirQualityPayload) Profile() Profile { return ProfileAAQ }
func (SeismicPayload) Profile() Profile    { return ProfileSMS }
func (SoilPayload) Profile() Profile       { return ProfileSSS }
func (RadioPayload) Profile() Profile      { return ProfileTSR }

func (VibrationPayload) isPayload()  {}
func (AirQualityPayload) isPayload() {}
func (SeismicPayload) isPayload()    {}
func (SoilPayload) isPayload()       {}
func (RadioPayload) isPayload()      {}

// DecodePayload unmarshals raw into the payload shape for profile.
func DecodePayload(profile Profile, raw []byte) (Payload, error) {
	switch profile {
	case ProfileSVS:
		var p VibrationPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case ProfileAAQ:
		var p AirQualityPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case ProfileSMS:
		var p SeismicPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case ProfileSSS:
		var p SoilPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case ProfileTSR:
		var p RadioPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
}

// SeismicTriggered reports whether p is a seismic payload over the trigger
// threshold.
func SeismicTriggered(p Payload) bool {
	switch v := p.(type) {
	case SeismicPayload:
		return v.Triggered
	case VibrationPayload, AirQualityPayload, SoilPayload, RadioPayload, nil:
		return false
	default:
		panic(fmt.Sprintf("telemetry: unhandled payload %T", p))
	}
}

// Summary renders the headline reading of a payload for terminal output.
func Summary(p Payload) string {
	switch v := p.(type) {
	case VibrationPayload:
		return fmt.Sprintf("rms=%.3fg f=%.1fHz", v.AccelRMSg, v.DominantFreqHz)
	case AirQualityPayload:
		return fmt.Sprintf("pm2.5=%.1f voc=%d", v.PM25ugm3, v.VOCIndex)
	case SeismicPayload:
		s := fmt.Sprintf("pga=%.3fg", v.PGAg)
		if v.Triggered {
			s += " TRIGGERED"
		}
		return s
	case SoilPayload:
		return fmt.Sprintf("vwc=%.3f %s", v.SoilMoistureVWC, v.Classifier)
	case RadioPayload:
		return fmt.Sprintf("rx=%d tx=%d", v.PacketsRX, v.PacketsTX)
	case nil:
		return ""
	default:
		panic(fmt.Sprintf("telemetry: unhandled payload %T", p))
	}
}

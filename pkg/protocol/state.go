package protocol

import "fmt"

// =============================================================================
// State snapshot (GET /api/state and pushed on the channel)
// =============================================================================

// Snapshot is the full panel state.
type Snapshot struct {
	Calibrated     bool            `json:"calibrated"`
	Devices        []Device        `json:"devices"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	UserUUID       string          `json:"user_uuid,omitempty"`
}

// Device is one controllable appliance.
type Device struct {
	DeviceID     string      `json:"device_id"`
	DisplayName  string      `json:"display_name,omitempty"`
	Name         string      `json:"name,omitempty"`
	DeviceType   string      `json:"device_type"`
	CurrentState DeviceState `json:"current_state"`
}

// DeviceState is the reported state of a device. Optional readings are
// nil when the device does not report them.
type DeviceState struct {
	IsOn        bool     `json:"is_on"`
	Temperature *float64 `json:"temperature,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`
	Mode        string   `json:"mode,omitempty"`
}

// Label returns the name to show for the device.
func (d Device) Label() string {
	switch {
	case d.DisplayName != "":
		return d.DisplayName
	case d.Name != "":
		return d.Name
	default:
		return d.DeviceID
	}
}

// Details returns a short human readable summary of the device state.
func (s DeviceState) Details() string {
	out := "off"
	if s.IsOn {
		out = "on"
	}
	if s.Temperature != nil {
		out += fmt.Sprintf(" · %.1f°C", *s.Temperature)
	}
	if s.Brightness != nil {
		out += fmt.Sprintf(" · %.0f%%", *s.Brightness)
	}
	if s.Mode != "" {
		out += " · " + s.Mode
	}
	return out
}

// DefaultRecommendationText is shown when a recommendation has no text.
const DefaultRecommendationText = "A recommendation is available."

// Recommendation is a yes/no prompt proposed by the server.
type Recommendation struct {
	ID         string             `json:"recommendation_id,omitempty"`
	PromptText string             `json:"prompt_text,omitempty"`
	Message    string             `json:"message,omitempty"`
	DeviceID   string             `json:"device_id,omitempty"`
	Action     *RecommendedAction `json:"action,omitempty"`
}

// RecommendedAction is executed server-side when the user answers YES.
type RecommendedAction struct {
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Text returns the prompt to display.
func (r Recommendation) Text() string {
	switch {
	case r.PromptText != "":
		return r.PromptText
	case r.Message != "":
		return r.Message
	default:
		return DefaultRecommendationText
	}
}

// Key identifies a recommendation for de-duplication. Servers that omit
// the ID are keyed by text.
func (r Recommendation) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Text()
}

// =============================================================================
// Calibration
// =============================================================================

// CalibrationProgress is the server's view of the running calibration.
type CalibrationProgress struct {
	CurrentTarget   int        `json:"current_target"`
	TotalTargets    int        `json:"total_targets"`
	CurrentSamples  int        `json:"current_samples"`
	RequiredSamples int        `json:"required_samples"`
	TargetPosition  [2]float64 `json:"target_position"`
	IsComplete      bool       `json:"is_complete"`
}

// Percent returns sample collection progress for the current target.
// It may exceed 100 when the server collected more than required.
func (p CalibrationProgress) Percent() float64 {
	if p.RequiredSamples <= 0 {
		return 100
	}
	return float64(p.CurrentSamples) / float64(p.RequiredSamples) * 100
}

// TargetReady reports whether enough samples were collected to advance.
func (p CalibrationProgress) TargetReady() bool {
	return p.CurrentSamples >= p.RequiredSamples
}

// =============================================================================
// HTTP request and response bodies
// =============================================================================

// Answers accepted by POST /api/recommendation/respond.
const (
	AnswerYes = "YES"
	AnswerNo  = "NO"
)

// ActionToggle is the only device action the panel issues.
const ActionToggle = "toggle"

// DwellTimeRequest is the body of POST /api/dwell-time.
type DwellTimeRequest struct {
	DwellTime float64 `json:"dwell_time"`
}

// ClickModeRequest is the body of POST /api/click-mode.
type ClickModeRequest struct {
	ClickMode string `json:"click_mode"`
}

// ControlRequest is the body of POST /api/devices/{id}/control.
type ControlRequest struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RespondRequest is the body of POST /api/recommendation/respond.
type RespondRequest struct {
	Answer string `json:"answer"`
}

// Result is the free-form JSON object most endpoints answer with.
type Result map[string]any

// ErrorMessage returns the "error" field when the server reported one.
func (r Result) ErrorMessage() string {
	if v, ok := r["error"].(string); ok {
		return v
	}
	return ""
}

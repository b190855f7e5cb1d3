// Package sim is a local stand-in for the edge server: it serves every
// HTTP endpoint the panel consumes plus the /ws channel, and streams a
// synthetic gaze path so the panel can be exercised without a camera.
package sim

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// SamplesPerTarget is the number of samples collected per target.
const SamplesPerTarget = 30

// calibrationTargets are normalized viewport positions.
var calibrationTargets = [...]geom.Point{
	{X: 0.1, Y: 0.1},
	{X: 0.9, Y: 0.1},
	{X: 0.5, Y: 0.5},
	{X: 0.1, Y: 0.9},
	{X: 0.9, Y: 0.9},
}

var (
	ErrUnknownDevice      = errors.New("device not found")
	ErrNoRecommendation   = errors.New("no pending recommendation")
	ErrNotCalibrating     = errors.New("calibration not running")
	ErrInvalidClickMode   = errors.New("invalid click mode, must be dwell, blink or both")
	ErrInvalidDwellTime   = errors.New("dwell time must be positive")
	ErrUnsupportedCommand = errors.New("unsupported command")
)

type calibrationSession struct {
	active  bool
	target  int
	samples [len(calibrationTargets)]int
}

// Backend is the simulated server state.
type Backend struct {
	mu       sync.Mutex
	viewport geom.Size
	user     string

	devices        []protocol.Device
	recommendation *protocol.Recommendation
	queue          []protocol.Recommendation
	next           int

	calibrated bool
	cal        calibrationSession

	dwellTime float64
	clickMode string
}

// NewBackend creates a backend with a small device set and a rotating
// recommendation queue.
func NewBackend(viewport geom.Size) *Backend {
	return &Backend{
		viewport:  viewport,
		user:      uuid.NewString(),
		devices:   defaultDevices(),
		queue:     defaultRecommendations(),
		dwellTime: 0.8,
		clickMode: "dwell",
	}
}

func ptr(v float64) *float64 { return &v }

func defaultDevices() []protocol.Device {
	return []protocol.Device{
		{
			DeviceID:     "ac_living_room",
			DisplayName:  "Living room AC",
			DeviceType:   "air_conditioner",
			CurrentState: protocol.DeviceState{Temperature: ptr(24), Mode: "cool"},
		},
		{
			DeviceID:     "air_purifier_living_room",
			DisplayName:  "Air purifier",
			DeviceType:   "air_purifier",
			CurrentState: protocol.DeviceState{Mode: "auto"},
		},
		{
			DeviceID:     "light_bedroom",
			Name:         "Bedroom light",
			DeviceType:   "light",
			CurrentState: protocol.DeviceState{IsOn: true, Brightness: ptr(70)},
		},
	}
}

func defaultRecommendations() []protocol.Recommendation {
	return []protocol.Recommendation{
		{
			ID:         "rec_001",
			DeviceID:   "ac_living_room",
			PromptText: "It is getting warm. Turn on the AC?",
			Action: &protocol.RecommendedAction{
				DeviceID:   "ac_living_room",
				Command:    "turn_on",
				Parameters: map[string]any{"temperature": 22.0, "mode": "cool"},
			},
		},
		{
			ID:         "rec_002",
			DeviceID:   "air_purifier_living_room",
			PromptText: "Fine dust is high. Turn on the air purifier?",
			Action: &protocol.RecommendedAction{
				DeviceID:   "air_purifier_living_room",
				Command:    "turn_on",
				Parameters: map[string]any{"mode": "auto"},
			},
		},
		{
			ID:       "rec_003",
			DeviceID: "light_bedroom",
			Message:  "Dim the bedroom light for the evening?",
			Action: &protocol.RecommendedAction{
				DeviceID:   "light_bedroom",
				Command:    "set_brightness",
				Parameters: map[string]any{"brightness": 30.0},
			},
		},
	}
}

// Snapshot returns the full state.
func (b *Backend) Snapshot() protocol.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := protocol.Snapshot{
		Calibrated: b.calibrated,
		Devices:    make([]protocol.Device, len(b.devices)),
		UserUUID:   b.user,
	}
	copy(s.Devices, b.devices)
	if b.recommendation != nil {
		rec := *b.recommendation
		s.Recommendation = &rec
	}
	return s
}

// Devices returns a copy of the device list.
func (b *Backend) Devices() []protocol.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocol.Device(nil), b.devices...)
}

// Calibrated reports whether a calibration completed.
func (b *Backend) Calibrated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calibrated
}

// Settings returns the dwell time in seconds and the click mode.
func (b *Backend) Settings() (float64, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dwellTime, b.clickMode
}

// SetDwellTime sets the dwell click time in seconds.
func (b *Backend) SetDwellTime(seconds float64) error {
	if seconds <= 0 {
		return ErrInvalidDwellTime
	}
	b.mu.Lock()
	b.dwellTime = seconds
	b.mu.Unlock()
	return nil
}

// SetClickMode sets how clicks are detected.
func (b *Backend) SetClickMode(mode string) error {
	switch mode {
	case "dwell", "blink", "both":
	default:
		return ErrInvalidClickMode
	}
	b.mu.Lock()
	b.clickMode = mode
	b.mu.Unlock()
	return nil
}

// Control applies a device action and returns the updated device.
func (b *Backend) Control(deviceID, action string, params map[string]any) (protocol.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.device(deviceID)
	if d == nil {
		return protocol.Device{}, ErrUnknownDevice
	}
	if err := apply(d, action, params); err != nil {
		return protocol.Device{}, err
	}
	return *d, nil
}

// Refresh reloads the device list and returns its size.
func (b *Backend) Refresh() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.devices)
}

// Recommend makes the next queued recommendation pending. It reports
// false when one is already pending.
func (b *Backend) Recommend() (protocol.Recommendation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recommendation != nil || len(b.queue) == 0 {
		return protocol.Recommendation{}, false
	}
	rec := b.queue[b.next%len(b.queue)]
	b.next++
	b.recommendation = &rec
	return rec, true
}

// Respond answers the pending recommendation. A YES runs its action.
func (b *Backend) Respond(answer string) (protocol.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.recommendation
	if rec == nil {
		return nil, ErrNoRecommendation
	}
	b.recommendation = nil

	yes := strings.EqualFold(answer, protocol.AnswerYes)
	res := protocol.Result{"status": "ok", "recommendation_id": rec.ID, "answer": strings.ToUpper(answer)}
	if yes && rec.Action != nil {
		if d := b.device(rec.Action.DeviceID); d != nil {
			if err := apply(d, rec.Action.Command, rec.Action.Parameters); err != nil {
				res["action_error"] = err.Error()
			} else {
				res["executed"] = rec.Action.Command
			}
		}
	}
	return res, nil
}

// StartCalibration resets and starts a calibration session.
func (b *Backend) StartCalibration() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cal = calibrationSession{active: true}
}

// Progress returns the calibration progress.
func (b *Backend) Progress() protocol.CalibrationProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := protocol.CalibrationProgress{
		CurrentTarget:   b.cal.target,
		TotalTargets:    len(calibrationTargets),
		RequiredSamples: SamplesPerTarget,
		IsComplete:      b.cal.target >= len(calibrationTargets),
	}
	if !p.IsComplete {
		p.CurrentSamples = b.cal.samples[b.cal.target]
		t := calibrationTargets[b.cal.target]
		p.TargetPosition = [2]float64{t.X * b.viewport.W, t.Y * b.viewport.H}
	}
	return p
}

// AddSample records one sample for the current target and reports
// whether the target has enough.
func (b *Backend) AddSample() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.cal.active || b.cal.target >= len(calibrationTargets) {
		return false, ErrNotCalibrating
	}
	b.cal.samples[b.cal.target]++
	return b.cal.samples[b.cal.target] >= SamplesPerTarget, nil
}

// NextTarget advances to the next target and reports whether all targets
// are done.
func (b *Backend) NextTarget() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.cal.active {
		return false, ErrNotCalibrating
	}
	b.cal.target++
	if b.cal.target >= len(calibrationTargets) {
		b.cal.active = false
		b.calibrated = true
		return true, nil
	}
	return false, nil
}

func (b *Backend) device(id string) *protocol.Device {
	for i := range b.devices {
		if b.devices[i].DeviceID == id {
			return &b.devices[i]
		}
	}
	return nil
}

func apply(d *protocol.Device, command string, params map[string]any) error {
	st := &d.CurrentState
	switch command {
	case protocol.ActionToggle:
		st.IsOn = !st.IsOn
	case "turn_on":
		st.IsOn = true
	case "turn_off":
		st.IsOn = false
	case "set_brightness":
		st.IsOn = true
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, command)
	}
	if v, ok := params["temperature"].(float64); ok {
		st.Temperature = ptr(v)
	}
	if v, ok := params["brightness"].(float64); ok {
		st.Brightness = ptr(v)
	}
	if v, ok := params["mode"].(string); ok {
		st.Mode = v
	}
	return nil
}

// Package panel wires the gaze interaction engine together. It is the
// protocol.Handler for the event channel: every pointer update goes to
// the renderer and then to the hover detector, and the remaining event
// kinds drive click, dwell and snapshot feedback.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/calibration"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/hover"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
	"github.com/teslashibe/go-gazepanel/pkg/snapshot"
)

// Feedback durations.
const (
	ClickFlash      = 200 * time.Millisecond
	DeviceHighlight = 500 * time.Millisecond
)

// Button names used in region IDs.
const (
	ButtonCalibrate = "calibrate"
	ButtonAbort     = "abort"
	ButtonRefresh   = "refresh"
	ButtonYes       = "yes"
	ButtonNo        = "no"
)

// Feedback shows transient, non-state feedback.
type Feedback interface {
	FlashPointer(d time.Duration)
	HighlightDevice(deviceID string, d time.Duration)
	ShowDwell(p geom.Point, progress float64)
	HideDwell()
	SetConnected(connected bool)
}

// Actions are the server commands the panel issues directly.
type Actions interface {
	ToggleDevice(ctx context.Context, deviceID string) (protocol.Result, error)
	RefreshDevices(ctx context.Context) (protocol.Result, error)
	SetDwellTime(ctx context.Context, seconds float64) (protocol.Result, error)
	SetClickMode(ctx context.Context, mode string) (protocol.Result, error)
}

// PointerSink consumes pointer updates.
type PointerSink interface {
	OnPointer(p *geom.Point)
}

// Refresher requests an immediate state fetch.
type Refresher interface {
	Refresh()
}

// Deps are the components the panel drives.
type Deps struct {
	Renderer    PointerSink
	Detector    *hover.Detector
	Presenter   *snapshot.Presenter
	Calibration *calibration.Controller
	Feedback    Feedback
	Actions     Actions
	Refresher   Refresher
	Logger      *slog.Logger
}

// Panel serializes event handling so each event fully updates derived
// visual state before the next one is processed.
type Panel struct {
	mu   sync.Mutex
	deps Deps

	calWG sync.WaitGroup
}

var _ protocol.Handler = (*Panel)(nil)

// New creates a panel.
func New(deps Deps) *Panel {
	if deps.Logger == nil {
		deps.Logger = log.Component("panel")
	}
	return &Panel{deps: deps}
}

// HandleGaze renders the pointer and then updates hover state.
func (p *Panel) HandleGaze(e protocol.GazeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deps.Renderer.OnPointer(e.Position)
	p.deps.Detector.OnPointer(e.Position)
}

// HandleDwell shows the dwell progress ring.
func (p *Panel) HandleDwell(e protocol.DwellEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.Position == nil || e.Progress <= 0 {
		p.deps.Feedback.HideDwell()
		return
	}
	progress := e.Progress
	if progress > 1 {
		progress = 1
	}
	p.deps.Feedback.ShowDwell(*e.Position, progress)
}

// HandleClick flashes the pointer and highlights the clicked device.
func (p *Panel) HandleClick(e protocol.ClickEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deps.Logger.Debug("gaze click", "device", e.DeviceID, "name", e.DeviceName, "method", e.Method)
	p.deps.Feedback.FlashPointer(ClickFlash)
	if e.DeviceID != "" {
		p.deps.Feedback.HighlightDevice(e.DeviceID, DeviceHighlight)
	}
}

// HandleRecommendation shows a recommendation prompt.
func (p *Panel) HandleRecommendation(e protocol.RecommendationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deps.Presenter.ShowRecommendation(e.Recommendation)
}

// HandleSnapshot presents a pushed snapshot.
func (p *Panel) HandleSnapshot(e protocol.SnapshotEvent) {
	p.ApplySnapshot(e.Snapshot)
}

// ApplySnapshot presents a pulled or pushed snapshot.
func (p *Panel) ApplySnapshot(s protocol.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deps.Presenter.Apply(s)
}

// SetConnected reflects the channel state.
func (p *Panel) SetConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deps.Feedback.SetConnected(connected)
	if !connected {
		// No more samples are coming; drop the pointer and hover.
		p.deps.Renderer.OnPointer(nil)
		p.deps.Detector.OnPointer(nil)
		p.deps.Feedback.HideDwell()
	}
}

// Configure pushes client-side gaze settings to the server. Zero values
// are skipped.
func (p *Panel) Configure(ctx context.Context, dwellTime float64, clickMode string) error {
	var errs []error
	if dwellTime > 0 {
		if _, err := p.deps.Actions.SetDwellTime(ctx, dwellTime); err != nil {
			errs = append(errs, fmt.Errorf("dwell time: %w", err))
		}
	}
	if clickMode != "" {
		if _, err := p.deps.Actions.SetClickMode(ctx, clickMode); err != nil {
			errs = append(errs, fmt.Errorf("click mode: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StartCalibration starts a calibration session in the background. It
// returns calibration.ErrRunning when one is already running.
func (p *Panel) StartCalibration(ctx context.Context) error {
	if err := p.deps.Calibration.Begin(); err != nil {
		return err
	}
	p.calWG.Add(1)
	go func() {
		defer p.calWG.Done()
		err := p.deps.Calibration.Run(ctx)
		switch {
		case err == nil:
			p.deps.Presenter.SetCalibrated(true)
		case errors.Is(err, calibration.ErrAborted), errors.Is(err, context.Canceled):
		default:
			p.deps.Logger.Warn("calibration ended", "error", err)
		}
	}()
	return nil
}

// AbortCalibration aborts the running session.
func (p *Panel) AbortCalibration() bool {
	return p.deps.Calibration.Abort()
}

// WaitCalibration blocks until a background calibration session ends.
func (p *Panel) WaitCalibration() {
	p.calWG.Wait()
}

// Respond answers the pending recommendation and refetches state.
func (p *Panel) Respond(ctx context.Context, yes bool) error {
	if _, err := p.deps.Presenter.Respond(ctx, yes); err != nil {
		return err
	}
	p.refresh()
	return nil
}

// RefreshDevices asks the server to reload devices and refetches state.
func (p *Panel) RefreshDevices(ctx context.Context) error {
	if _, err := p.deps.Actions.RefreshDevices(ctx); err != nil {
		p.deps.Logger.Warn("device refresh failed", "error", err)
		return err
	}
	p.refresh()
	return nil
}

// ToggleDevice toggles a device and refetches state.
func (p *Panel) ToggleDevice(ctx context.Context, deviceID string) error {
	if _, err := p.deps.Actions.ToggleDevice(ctx, deviceID); err != nil {
		p.deps.Logger.Warn("device control failed", "device", deviceID, "error", err)
		return err
	}
	p.refresh()
	return nil
}

// Activate runs the action of the hovered region. It reports false when
// nothing is hovered.
func (p *Panel) Activate(ctx context.Context) (bool, error) {
	st := p.deps.Detector.State()
	if !st.Hovered() {
		return false, nil
	}
	return true, p.ActivateRegion(ctx, st.RegionID)
}

// ActivateRegion runs the action bound to a region ID.
func (p *Panel) ActivateRegion(ctx context.Context, regionID string) error {
	kind, name, ok := hover.ParseRegionID(regionID)
	if !ok {
		return fmt.Errorf("panel: unknown region %q", regionID)
	}
	if kind == hover.KindDeviceCard {
		return p.ToggleDevice(ctx, name)
	}
	switch name {
	case ButtonCalibrate:
		return p.StartCalibration(ctx)
	case ButtonAbort:
		p.AbortCalibration()
		return nil
	case ButtonRefresh:
		return p.RefreshDevices(ctx)
	case ButtonYes:
		return p.Respond(ctx, true)
	case ButtonNo:
		return p.Respond(ctx, false)
	default:
		return fmt.Errorf("panel: unknown button %q", name)
	}
}

func (p *Panel) refresh() {
	if p.deps.Refresher != nil {
		p.deps.Refresher.Refresh()
	}
}

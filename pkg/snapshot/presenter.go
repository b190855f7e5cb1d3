// Package snapshot presents the periodic full-state snapshots: the device
// grid, the calibration indicator, the user label and the recommendation
// prompt.
package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

// ErrNoPrompt is returned by Respond when nothing is pending.
var ErrNoPrompt = errors.New("snapshot: no pending recommendation")

// Prompt is a pending recommendation.
type Prompt struct {
	ID       string
	Text     string
	Answered bool
}

// View renders snapshot state.
type View interface {
	RenderDevices(devices []protocol.Device)
	SetCalibrated(calibrated bool)
	SetUser(userUUID string)
	ShowPrompt(p Prompt)
	HidePrompt()
}

// Responder sends the user's answer to the server.
type Responder interface {
	RespondRecommendation(ctx context.Context, yes bool) (protocol.Result, error)
}

// Presenter owns the presented state.
type Presenter struct {
	view      View
	responder Responder
	logger    *slog.Logger

	mu         sync.Mutex
	devices    []protocol.Device
	calibrated bool
	user       string
	prompt     *Prompt
}

// NewPresenter creates a presenter rendering to view.
func NewPresenter(view View, responder Responder, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = log.Component("snapshot")
	}
	return &Presenter{view: view, responder: responder, logger: logger}
}

// Apply presents a full state snapshot.
func (p *Presenter) Apply(s protocol.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Partial pushes omit fields; only a positive flag is applied.
	if s.Calibrated && !p.calibrated {
		p.calibrated = true
		p.view.SetCalibrated(true)
	}

	if s.Devices != nil {
		p.devices = append([]protocol.Device(nil), s.Devices...)
		p.view.RenderDevices(p.devices)
	}

	switch {
	case s.Recommendation != nil && p.prompt == nil:
		p.show(*s.Recommendation)
	case s.Recommendation == nil && p.prompt != nil:
		p.logger.Debug("recommendation withdrawn", "id", p.prompt.ID)
		p.dismiss()
	}

	if s.UserUUID != "" && s.UserUUID != p.user {
		p.user = s.UserUUID
		p.view.SetUser(s.UserUUID)
	}
}

// ShowRecommendation presents a recommendation notice unless a prompt is
// already pending.
func (p *Presenter) ShowRecommendation(rec protocol.Recommendation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prompt != nil {
		return
	}
	p.show(rec)
}

// SetCalibrated updates the calibration indicator.
func (p *Presenter) SetCalibrated(calibrated bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calibrated == calibrated {
		return
	}
	p.calibrated = calibrated
	p.view.SetCalibrated(calibrated)
}

// Respond answers the pending prompt. On failure the prompt stays up.
func (p *Presenter) Respond(ctx context.Context, yes bool) (protocol.Result, error) {
	p.mu.Lock()
	if p.prompt == nil {
		p.mu.Unlock()
		return nil, ErrNoPrompt
	}
	id := p.prompt.ID
	p.mu.Unlock()

	res, err := p.responder.RespondRecommendation(ctx, yes)
	if err != nil {
		p.logger.Warn("recommendation response failed", "id", id, "error", err)
		return nil, err
	}

	p.mu.Lock()
	if p.prompt != nil && p.prompt.ID == id {
		p.prompt.Answered = true
		p.dismiss()
	}
	p.mu.Unlock()
	p.logger.Info("recommendation answered", "id", id, "yes", yes)
	return res, nil
}

// Devices returns the presented devices.
func (p *Presenter) Devices() []protocol.Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Device(nil), p.devices...)
}

// Device looks up a presented device by ID.
func (p *Presenter) Device(id string) (protocol.Device, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return protocol.Device{}, false
}

// Calibrated reports the calibration indicator.
func (p *Presenter) Calibrated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calibrated
}

// Prompt returns the pending prompt, if any.
func (p *Presenter) Prompt() (Prompt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prompt == nil {
		return Prompt{}, false
	}
	return *p.prompt, true
}

func (p *Presenter) show(rec protocol.Recommendation) {
	p.prompt = &Prompt{ID: rec.Key(), Text: rec.Text()}
	p.view.ShowPrompt(*p.prompt)
	p.logger.Info("recommendation shown", "id", p.prompt.ID)
}

func (p *Presenter) dismiss() {
	p.prompt = nil
	p.view.HidePrompt()
}

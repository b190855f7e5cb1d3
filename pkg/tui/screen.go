// Package tui draws the gaze panel in a terminal. Screen implements every
// surface the engine renders to; Model is the bubbletea program that
// repaints it and maps keys to panel commands.
package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-gazepanel/pkg/calibration"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
	"github.com/teslashibe/go-gazepanel/pkg/hover"
	"github.com/teslashibe/go-gazepanel/pkg/panel"
	"github.com/teslashibe/go-gazepanel/pkg/pointer"
	"github.com/teslashibe/go-gazepanel/pkg/protocol"
	"github.com/teslashibe/go-gazepanel/pkg/snapshot"
)

// noticeFor is how long one-shot notices stay in the header.
const noticeFor = 3 * time.Second

var (
	_ pointer.Surface    = (*Screen)(nil)
	_ hover.Styler       = (*Screen)(nil)
	_ hover.Registry     = (*Screen)(nil)
	_ calibration.UI     = (*Screen)(nil)
	_ snapshot.View      = (*Screen)(nil)
	_ panel.Feedback     = (*Screen)(nil)
	_ pointer.AuxSurface = (*Preview)(nil)
)

// Screen holds everything drawn on the terminal. All methods are safe
// for concurrent use; the model repaints from it on every frame.
type Screen struct {
	mu  sync.Mutex
	now func() time.Time
	g   grid

	pointer    *geom.Point
	flashUntil time.Time
	dwell      *geom.Point
	dwellPct   float64
	highlights map[string]time.Time
	intensity  map[string]hover.Intensity

	connected  bool
	calibrated bool
	user       string
	devices    []protocol.Device
	prompt     *snapshot.Prompt

	calibrating bool
	calView     *calibration.View
	aux         *geom.Point
	auxScale    float64

	notice      string
	noticeUntil time.Time
}

// NewScreen creates a screen for gaze coordinates in a viewport of the
// given pixel size.
func NewScreen(viewport geom.Size) *Screen {
	return &Screen{
		now:        time.Now,
		g:          grid{viewport: viewport},
		highlights: make(map[string]time.Time),
		intensity:  make(map[string]hover.Intensity),
	}
}

// Resize sets the drawable size in cells.
func (s *Screen) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.cols, s.g.rows = cols, rows
}

// Preview returns the calibration preview surface.
func (s *Screen) Preview() *Preview { return &Preview{s: s} }

func (s *Screen) layoutLocked() layout {
	return computeLayout(s.g.cols, s.g.rows, s.devices, s.prompt != nil, s.calibrating)
}

// Regions returns the interactive regions in viewport pixels.
func (s *Screen) Regions() []hover.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.g.valid() {
		return nil
	}
	l := s.layoutLocked()
	regions := make([]hover.Region, 0, len(l.elements))
	for _, e := range l.elements {
		regions = append(regions, hover.Region{ID: e.id, Kind: e.kind, Bounds: s.g.toPixels(e.rect)})
	}
	return regions
}

// ShowPointer implements pointer.Surface.
func (s *Screen) ShowPointer(p geom.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.g.valid() {
		return pointer.ErrSurfaceDetached
	}
	s.pointer = &p
	return nil
}

// HidePointer implements pointer.Surface.
func (s *Screen) HidePointer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = nil
	return nil
}

// SetIntensity implements hover.Styler.
func (s *Screen) SetIntensity(regionID string, level hover.Intensity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level == hover.None {
		delete(s.intensity, regionID)
		return
	}
	s.intensity[regionID] = level
}

// ClearHover implements hover.Styler.
func (s *Screen) ClearHover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.intensity)
}

// ShowCalibration implements calibration.UI.
func (s *Screen) ShowCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrating = true
	s.calView = nil
	s.aux = nil
}

// RenderProgress implements calibration.UI.
func (s *Screen) RenderProgress(v calibration.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calView = &v
}

// HideCalibration implements calibration.UI.
func (s *Screen) HideCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrating = false
	s.calView = nil
	s.aux = nil
}

// CalibrationComplete implements calibration.UI.
func (s *Screen) CalibrationComplete() {
	s.Notify("Calibration complete")
}

// CalibrationView returns the last progress shown while calibrating.
func (s *Screen) CalibrationView() (calibration.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.calibrating || s.calView == nil {
		return calibration.View{}, false
	}
	return *s.calView, true
}

// RenderDevices implements snapshot.View.
func (s *Screen) RenderDevices(devices []protocol.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices[:0:0], devices...)
}

// SetCalibrated implements snapshot.View.
func (s *Screen) SetCalibrated(calibrated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrated = calibrated
}

// SetUser implements snapshot.View.
func (s *Screen) SetUser(userUUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = userUUID
}

// ShowPrompt implements snapshot.View.
func (s *Screen) ShowPrompt(p snapshot.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt = &p
}

// HidePrompt implements snapshot.View.
func (s *Screen) HidePrompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt = nil
}

// FlashPointer implements panel.Feedback.
func (s *Screen) FlashPointer(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashUntil = s.now().Add(d)
}

// HighlightDevice implements panel.Feedback.
func (s *Screen) HighlightDevice(deviceID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlights[deviceID] = s.now().Add(d)
}

// ShowDwell implements panel.Feedback.
func (s *Screen) ShowDwell(p geom.Point, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dwell = &p
	s.dwellPct = progress
}

// HideDwell implements panel.Feedback.
func (s *Screen) HideDwell() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dwell = nil
	s.dwellPct = 0
}

// SetConnected implements panel.Feedback.
func (s *Screen) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// Notify shows a one-shot message in the header.
func (s *Screen) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = msg
	s.noticeUntil = s.now().Add(noticeFor)
}

// Preview is the scaled calibration preview. It is only attached while
// calibration is shown.
type Preview struct {
	s *Screen
}

// Bounds implements pointer.AuxSurface.
func (p *Preview) Bounds() (geom.Rect, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.calibrating || !s.g.valid() {
		return geom.Rect{}, pointer.ErrSurfaceDetached
	}
	return s.g.toPixels(s.layoutLocked().preview), nil
}

// Clear implements pointer.AuxSurface.
func (p *Preview) Clear() error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aux = nil
	return nil
}

// DrawPointer implements pointer.AuxSurface.
func (p *Preview) DrawPointer(pt geom.Point, scale float64) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.calibrating {
		return pointer.ErrSurfaceDetached
	}
	s.aux = &pt
	s.auxScale = scale
	return nil
}

// Render draws the screen. It returns an empty string before the first
// resize.
func (s *Screen) Render() string {
	c := s.draw()
	if c == nil {
		return ""
	}
	return c.String()
}

func (s *Screen) draw() *canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.g.valid() {
		return nil
	}
	now := s.now()
	c := newCanvas(s.g.cols, s.g.rows)
	l := s.layoutLocked()

	s.drawHeader(c, now)
	for _, e := range l.elements {
		s.drawElement(c, e, now)
	}
	if s.calibrating {
		s.drawCalibration(c, l)
	} else {
		if l.overflow > 0 {
			c.text(1, s.g.rows-1, fmt.Sprintf("+%d more", l.overflow), stDim)
		}
		if s.prompt != nil {
			c.box(l.prompt, stPrompt)
			c.clipped(l.prompt.x0+2, l.prompt.y0+1, l.prompt.width()-4, s.prompt.Text, stPrompt)
		}
		if len(s.devices) == 0 {
			c.text(1, cardsTop, "No devices", stDim)
		}
	}

	if s.dwell != nil {
		x, y := s.g.toCell(*s.dwell)
		c.set(x, y, dwellGlyph(s.dwellPct), stDwell)
	}
	if s.pointer != nil {
		x, y := s.g.toCell(*s.pointer)
		st := stPointer
		if now.Before(s.flashUntil) {
			st = stPointerFlash
		}
		c.set(x, y, '●', st)
	}
	return c
}

func (s *Screen) drawHeader(c *canvas, now time.Time) {
	x := c.text(1, 0, "Gaze Panel", stTitle)
	x += 2
	if s.connected {
		x = c.text(x, 0, "● connected", stOK)
	} else {
		x = c.text(x, 0, "○ disconnected", stWarn)
	}
	x += 2
	if s.calibrated {
		x = c.text(x, 0, "calibrated", stOK)
	} else {
		x = c.text(x, 0, "not calibrated", stWarn)
	}
	if s.user != "" {
		x = c.text(x+2, 0, "user "+shortID(s.user), stDim)
	}
	if s.notice != "" && now.Before(s.noticeUntil) {
		c.text(x+2, 0, s.notice, stPrompt)
	}
}

func (s *Screen) drawElement(c *canvas, e element, now time.Time) {
	hoverStyle := stPlain
	switch s.intensity[e.id] {
	case hover.Light:
		hoverStyle = stHoverLight
	case hover.Strong:
		hoverStyle = stHoverStrong
	}

	if e.kind == hover.KindButton {
		st := stButton
		if hoverStyle != stPlain {
			st = hoverStyle
		}
		c.text(e.rect.x0, e.rect.y0, e.label, st)
		return
	}

	border := stBorder
	if hoverStyle != stPlain {
		border = hoverStyle
	}
	c.box(e.rect, border)
	inner := e.rect.width() - 4
	c.clipped(e.rect.x0+2, e.rect.y0+1, inner, e.label, stTitle)
	if d := e.device; d != nil {
		st := stOff
		if d.CurrentState.IsOn {
			st = stOn
		}
		c.clipped(e.rect.x0+2, e.rect.y0+2, inner, d.CurrentState.Details(), st)
		if d.DeviceType != "" {
			c.clipped(e.rect.x0+2, e.rect.y0+3, inner, d.DeviceType, stDim)
		}
		if until, ok := s.highlights[d.DeviceID]; ok {
			if now.Before(until) {
				c.restyleRect(e.rect, stHighlight)
			} else {
				delete(s.highlights, d.DeviceID)
			}
		}
	}
}

func (s *Screen) drawCalibration(c *canvas, l layout) {
	c.box(l.preview, stBorder)
	c.text(l.preview.x0+1, l.preview.y0, " preview ", stDim)

	if s.calView != nil {
		v := s.calView
		x, y := s.g.toCell(v.Target)
		c.set(x, y, '◎', stTarget)
		c.text(l.preview.x0, l.preview.y1+1, v.Title(), stTitle)
		c.text(l.preview.x0, l.preview.y1+2, v.Guidance, stPlain)
	} else {
		c.text(l.preview.x0, l.preview.y1+1, "Starting calibration…", stDim)
	}

	if s.aux != nil {
		x, y := s.g.toCell(*s.aux)
		glyph := '●'
		if s.auxScale < 1 {
			glyph = '•'
		}
		// Points on the inclusive far edge map one cell past the box.
		c.set(min(l.preview.x0+x, l.preview.x1), min(l.preview.y0+y, l.preview.y1), glyph, stAuxPointer)
	}
}

func dwellGlyph(progress float64) rune {
	ring := []rune("◔◑◕●")
	i := int(progress * float64(len(ring)))
	if i >= len(ring) {
		i = len(ring) - 1
	}
	if i < 0 {
		i = 0
	}
	return ring[i]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Package pointer renders the gaze pointer on the primary overlay and,
// while calibration runs, on the scaled calibration preview surface.
package pointer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
)

// AuxGlyphScale is the size of the preview pointer relative to the
// primary one.
const AuxGlyphScale = 0.7

// ErrSurfaceDetached is returned by surfaces that are not attached to the
// screen yet. The renderer skips the frame.
var ErrSurfaceDetached = errors.New("pointer: surface not attached")

// Surface is the full-screen overlay. Coordinates are viewport pixels.
type Surface interface {
	ShowPointer(p geom.Point) error
	HidePointer() error
}

// AuxSurface is the calibration preview. It is redrawn in full on every
// update.
type AuxSurface interface {
	// Bounds returns the on-screen rect of the preview.
	Bounds() (geom.Rect, error)
	Clear() error
	// DrawPointer draws the glyph at p in surface-local pixels.
	DrawPointer(p geom.Point, scale float64) error
}

// State is the last known pointer position and visibility.
type State struct {
	Position geom.Point
	Visible  bool
}

// Renderer owns the pointer state.
type Renderer struct {
	mu       sync.Mutex
	state    State
	primary  Surface
	aux      AuxSurface
	viewport geom.Size
	active   func() bool

	logger  *slog.Logger
	skipLog rate.Sometimes
	skipped uint64
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithCalibrationActive sets the accessor consulted on every update to
// decide whether the preview surface is drawn.
func WithCalibrationActive(fn func() bool) Option {
	return func(r *Renderer) { r.active = fn }
}

// NewRenderer creates a renderer drawing on primary, whose size is
// viewport.
func NewRenderer(primary Surface, viewport geom.Size, opts ...Option) *Renderer {
	r := &Renderer{
		primary:  primary,
		viewport: viewport,
		active:   func() bool { return false },
		logger:   log.Component("pointer"),
		skipLog:  rate.Sometimes{Interval: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AttachAux sets the calibration preview surface. Pass nil to detach.
func (r *Renderer) AttachAux(aux AuxSurface) {
	r.mu.Lock()
	r.aux = aux
	r.mu.Unlock()
}

// SetViewport updates the primary surface size after a resize.
func (r *Renderer) SetViewport(size geom.Size) {
	r.mu.Lock()
	r.viewport = size
	r.mu.Unlock()
}

// State returns the current pointer state.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Skipped returns how many frames were skipped because a surface was not
// ready.
func (r *Renderer) Skipped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

// OnPointer applies one pointer update. A nil p hides the pointer.
func (r *Renderer) OnPointer(p *geom.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p == nil {
		r.state.Visible = false
		r.tolerate("primary", r.primary.HidePointer())
		if r.aux != nil {
			r.tolerate("aux", r.aux.Clear())
		}
		return
	}

	r.state = State{Position: *p, Visible: true}
	r.tolerate("primary", r.primary.ShowPointer(*p))

	if r.aux == nil || !r.active() {
		return
	}
	r.drawAux(*p)
}

func (r *Renderer) drawAux(p geom.Point) {
	// Clear first so a failed draw never leaves the previous glyph.
	if err := r.aux.Clear(); err != nil {
		r.tolerate("aux", err)
		return
	}
	bounds, err := r.aux.Bounds()
	if err != nil {
		r.tolerate("aux", err)
		return
	}
	local := geom.Scale(p, r.viewport, bounds.Size())
	r.tolerate("aux", r.aux.DrawPointer(local, AuxGlyphScale))
}

func (r *Renderer) tolerate(surface string, err error) {
	if err == nil {
		return
	}
	r.skipped++
	r.skipLog.Do(func() {
		r.logger.Debug("pointer frame skipped", "surface", surface, "error", err, "skipped", r.skipped)
	})
}

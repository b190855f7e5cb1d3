// Package hover hit-tests the gaze pointer against the interactive
// regions of the panel and escalates feedback the longer the gaze rests
// on one region.
//
// Each occupancy episode runs NONE → LIGHT on entry → STRONG once the
// gaze has stayed for the strong threshold, and collapses back to NONE on
// exit or gaze loss.
package hover

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-gazepanel/internal/log"
	"github.com/teslashibe/go-gazepanel/pkg/geom"
)

// DefaultStrongAfter is the dwell time after which feedback turns strong.
const DefaultStrongAfter = 300 * time.Millisecond

// Intensity is the hover feedback level.
type Intensity int

const (
	None Intensity = iota
	Light
	Strong
)

func (i Intensity) String() string {
	switch i {
	case Light:
		return "light"
	case Strong:
		return "strong"
	default:
		return "none"
	}
}

// RegionKind is the kind of element a region belongs to.
type RegionKind int

const (
	KindButton RegionKind = iota
	KindDeviceCard
)

func (k RegionKind) String() string {
	if k == KindDeviceCard {
		return "device-card"
	}
	return "button"
}

// Region is one interactive element and its current on-screen box.
type Region struct {
	ID     string
	Kind   RegionKind
	Bounds geom.Rect
}

// Registry reports the interactive regions of the current layout in
// document order. It is queried on every update and never cached.
type Registry interface {
	Regions() []Region
}

// RegistryFunc adapts a function to Registry.
type RegistryFunc func() []Region

// Regions calls f.
func (f RegistryFunc) Regions() []Region { return f() }

// Styler applies hover feedback to elements. Unknown IDs are ignored.
type Styler interface {
	SetIntensity(regionID string, level Intensity)
	// ClearHover removes hover feedback from every element.
	ClearHover()
}

// State is the hover state. An empty RegionID means nothing is hovered,
// in which case Start is zero and Intensity is None.
type State struct {
	RegionID  string
	Start     time.Time
	Intensity Intensity
}

// Hovered reports whether a region is hovered.
func (s State) Hovered() bool { return s.RegionID != "" }

// HitTest returns the first region in order whose bounds contain p.
func HitTest(regions []Region, p geom.Point) (Region, bool) {
	for _, r := range regions {
		if r.Bounds.Contains(p) {
			return r, true
		}
	}
	return Region{}, false
}

// Detector owns the hover state.
type Detector struct {
	mu          sync.Mutex
	registry    Registry
	styler      Styler
	strongAfter time.Duration
	now         func() time.Time
	logger      *slog.Logger

	state State
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithStrongAfter sets the dwell threshold for strong feedback.
func WithStrongAfter(after time.Duration) Option {
	return func(d *Detector) {
		if after > 0 {
			d.strongAfter = after
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a detector over reg, applying feedback through
// styler.
func NewDetector(reg Registry, styler Styler, opts ...Option) *Detector {
	d := &Detector{
		registry:    reg,
		styler:      styler,
		strongAfter: DefaultStrongAfter,
		now:         time.Now,
		logger:      log.Component("hover"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current hover state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// OnPointer applies one pointer update. A nil p means gaze was lost.
func (d *Detector) OnPointer(p *geom.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p == nil {
		d.clear()
		return
	}

	region, ok := HitTest(d.registry.Regions(), *p)
	id := ""
	if ok {
		id = region.ID
	}

	if id != d.state.RegionID {
		d.enter(id)
		return
	}
	if id == "" || d.state.Intensity == Strong {
		return
	}
	if d.now().Sub(d.state.Start) >= d.strongAfter {
		d.state.Intensity = Strong
		d.styler.SetIntensity(id, Strong)
		d.logger.Debug("hover strong", "region", id)
	}
}

// Reset clears hover state, e.g. when the layout is rebuilt.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear()
}

func (d *Detector) enter(id string) {
	if prev := d.state.RegionID; prev != "" {
		d.styler.SetIntensity(prev, None)
	}
	if id == "" {
		d.state = State{}
		return
	}
	d.state = State{RegionID: id, Start: d.now(), Intensity: Light}
	d.styler.SetIntensity(id, Light)
	d.logger.Debug("hover enter", "region", id)
}

func (d *Detector) clear() {
	d.styler.ClearHover()
	d.state = State{}
}

// Region ID prefixes. IDs are handles into the registry, not element
// references.
const (
	devicePrefix = "device:"
	buttonPrefix = "button:"
)

// DeviceRegionID returns the region ID of a device card.
func DeviceRegionID(deviceID string) string { return devicePrefix + deviceID }

// ButtonRegionID returns the region ID of a named button.
func ButtonRegionID(name string) string { return buttonPrefix + name }

// ParseRegionID splits a region ID into its kind and name.
func ParseRegionID(id string) (RegionKind, string, bool) {
	switch {
	case strings.HasPrefix(id, devicePrefix):
		return KindDeviceCard, strings.TrimPrefix(id, devicePrefix), true
	case strings.HasPrefix(id, buttonPrefix):
		return KindButton, strings.TrimPrefix(id, buttonPrefix), true
	default:
		return 0, "", false
	}
}

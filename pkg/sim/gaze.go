package sim

import (
	"math"
	"time"

	"github.com/teslashibe/go-gazepanel/pkg/geom"
)

// Waypoint is a normalized position the synthetic gaze rests on.
type Waypoint struct {
	At       geom.Point
	DeviceID string // clicked when the dwell completes, if set
}

// GazePath is a deterministic gaze script: travel to each waypoint, hold
// on it, and after the last one lose the gaze for a while.
type GazePath struct {
	Waypoints []Waypoint
	Travel    time.Duration
	Hold      time.Duration
	Lost      time.Duration
	Viewport  geom.Size
}

// GazeSample is the gaze at one instant.
type GazeSample struct {
	Position *geom.Point
	Held     time.Duration // time spent on the current waypoint, 0 while travelling
	Segment  int           // increases with every waypoint visited
	Waypoint Waypoint
}

// DefaultGazePath visits the header, each device card area and the
// middle of the screen.
func DefaultGazePath(viewport geom.Size) GazePath {
	return GazePath{
		Waypoints: []Waypoint{
			{At: geom.Point{X: 0.08, Y: 0.08}},
			{At: geom.Point{X: 0.1, Y: 0.22}, DeviceID: "ac_living_room"},
			{At: geom.Point{X: 0.3, Y: 0.22}, DeviceID: "air_purifier_living_room"},
			{At: geom.Point{X: 0.5, Y: 0.5}},
			{At: geom.Point{X: 0.45, Y: 0.22}, DeviceID: "light_bedroom"},
		},
		Travel:   800 * time.Millisecond,
		Hold:     1500 * time.Millisecond,
		Lost:     time.Second,
		Viewport: viewport,
	}
}

func (g GazePath) phase() time.Duration { return g.Travel + g.Hold }

func (g GazePath) cycle() time.Duration {
	return time.Duration(len(g.Waypoints))*g.phase() + g.Lost
}

// At returns the gaze t after the path started.
func (g GazePath) At(t time.Duration) GazeSample {
	n := len(g.Waypoints)
	if n == 0 || g.phase() <= 0 {
		return GazeSample{}
	}
	cycles := int(t / g.cycle())
	tc := t % g.cycle()
	if tc >= time.Duration(n)*g.phase() {
		return GazeSample{Segment: cycles*n + n}
	}

	i := int(tc / g.phase())
	within := tc - time.Duration(i)*g.phase()
	wp := g.Waypoints[i]
	s := GazeSample{Segment: cycles*n + i, Waypoint: wp}

	var p geom.Point
	if within < g.Travel {
		from := g.Waypoints[(i+n-1)%n].At
		f := float64(within) / float64(g.Travel)
		p = geom.Point{X: from.X + (wp.At.X-from.X)*f, Y: from.Y + (wp.At.Y-from.Y)*f}
	} else {
		p = wp.At
		s.Held = within - g.Travel
	}

	// Fixational jitter.
	sec := t.Seconds()
	p.X += 0.004 * math.Sin(sec*17)
	p.Y += 0.004 * math.Cos(sec*13)

	px := geom.Point{X: p.X * g.Viewport.W, Y: p.Y * g.Viewport.H}
	s.Position = &px
	return s
}

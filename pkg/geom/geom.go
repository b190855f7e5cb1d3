// Package geom holds the small amount of 2D geometry the panel needs:
// points in viewport pixels, axis-aligned boxes and surface scaling.
package geom

// Point is a position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in pixels.
type Size struct {
	W float64
	H float64
}

// Rect is an axis-aligned bounding box. Right and Bottom are inclusive.
type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// RectFromSize builds a rect at (x, y) with the given width and height.
func RectFromSize(x, y, w, h float64) Rect {
	return Rect{Left: x, Top: y, Right: x + w, Bottom: y + h}
}

// Width of the rect.
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height of the rect.
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Size of the rect.
func (r Rect) Size() Size { return Size{W: r.Width(), H: r.Height()} }

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}

// Scale maps a point from a viewport of size from onto a surface of size
// to. Each axis is scaled independently; a zero-sized source yields the
// origin.
func Scale(p Point, from, to Size) Point {
	if from.W <= 0 || from.H <= 0 {
		return Point{}
	}
	return Point{
		X: p.X * (to.W / from.W),
		Y: p.Y * (to.H / from.H),
	}
}

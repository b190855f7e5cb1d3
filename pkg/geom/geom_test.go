package geom

import "testing"

func TestRectContains(t *testing.T) {
	r := RectFromSize(10, 20, 100, 50)

	tests := []struct {
		p    Point
		want bool
	}{
		{Point{10, 20}, true},
		{Point{110, 70}, true},
		{Point{60, 45}, true},
		{Point{9.9, 45}, false},
		{Point{60, 70.1}, false},
		{Point{-1, -1}, false},
	}

	for _, tt := range tests {
		if got := r.Contains(tt.p); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestScale(t *testing.T) {
	got := Scale(Point{960, 540}, Size{1920, 1080}, Size{480, 270})
	if got.X != 240 || got.Y != 135 {
		t.Errorf("Scale = %v, want {240 135}", got)
	}

	// Axes scale independently.
	got = Scale(Point{100, 100}, Size{200, 400}, Size{100, 100})
	if got.X != 50 || got.Y != 25 {
		t.Errorf("Scale = %v, want {50 25}", got)
	}

	if got := Scale(Point{5, 5}, Size{}, Size{10, 10}); got != (Point{}) {
		t.Errorf("Scale from empty size = %v, want origin", got)
	}
}

func TestRectSize(t *testing.T) {
	r := Rect{Left: 1, Top: 2, Right: 11, Bottom: 7}
	if s := r.Size(); s.W != 10 || s.H != 5 {
		t.Errorf("Size = %+v", s)
	}
	if r.Empty() {
		t.Error("Empty() = true for non-empty rect")
	}
	if !(Rect{}).Empty() {
		t.Error("Empty() = false for zero rect")
	}
}

package geometry

import (
	"math"
	"testing"
)

func TestPointDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
	}{
		{"same point", Point{1, 1}, Point{1, 1}, 0},
		{"3-4-5 triangle", Point{0, 0}, Point{3, 4}, 5},
		{"negative coords", Point{-1, -1}, Point{2, 3}, 5},
	}

	for _, tt := range tests {
		if got := tt.a.Distance(tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: Distance() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewRectNormalizes(t *testing.T) {
	r := NewRect(Point{100, 100}, Point{10, 10})
	if r.Min.X != 10 || r.Min.Y != 10 {
		t.Errorf("Min = %+v, want (10,10)", r.Min)
	}
	if r.Max.X != 100 || r.Max.Y != 100 {
		t.Errorf("Max = %+v, want (100,100)", r.Max)
	}

	// Mixed corners (bottom-left / top-right) must normalize too.
	r = NewRect(Point{10, 100}, Point{100, 10})
	if r.Min != (Point{10, 10}) || r.Max != (Point{100, 100}) {
		t.Errorf("mixed corners: got %+v", r)
	}
}

func TestRectContains(t *testing.T) {
	r := NewRect(Point{10, 10}, Point{100, 100})

	if !r.Contains(Point{50, 50}) {
		t.Error("interior point should be contained")
	}
	if !r.Contains(Point{10, 10}) || !r.Contains(Point{100, 100}) {
		t.Error("boundary must be inclusive")
	}
	if r.Contains(Point{9.99, 50}) {
		t.Error("exterior point should not be contained")
	}
}

func TestRectCornerOrder(t *testing.T) {
	c := NewRect(Point{0, 0}, Point{4, 2}).Corners()
	want := [4]Point{{0, 0}, {4, 0}, {4, 2}, {0, 2}}
	if c != want {
		t.Errorf("Corners() = %v, want TL,TR,BR,BL = %v", c, want)
	}
}

func TestCircleContains(t *testing.T) {
	c := Circle{Center: Point{50, 50}, Radius: 10}

	if !c.Contains(Point{50, 50}) {
		t.Error("center should be contained")
	}
	if !c.Contains(Point{60, 50}) {
		t.Error("boundary must be inclusive")
	}
	if c.Contains(Point{60.01, 50}) {
		t.Error("point beyond radius should not be contained")
	}
}

func TestPointToSegment(t *testing.T) {
	a, b := Point{0, 0}, Point{10, 0}

	if d := PointToSegment(Point{5, 3}, a, b); math.Abs(d-3) > 1e-9 {
		t.Errorf("perpendicular distance = %v, want 3", d)
	}
	// Beyond the end: distance to the endpoint, not the infinite line.
	if d := PointToSegment(Point{14, 3}, a, b); math.Abs(d-5) > 1e-9 {
		t.Errorf("clamped distance = %v, want 5", d)
	}
	// Degenerate segment.
	if d := PointToSegment(Point{3, 4}, a, a); math.Abs(d-5) > 1e-9 {
		t.Errorf("degenerate segment distance = %v, want 5", d)
	}
}

func TestPolygonArea(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if got := PolygonArea(square); math.Abs(got-100) > 1e-9 {
		t.Errorf("square area = %v, want 100", got)
	}

	triangle := []Point{{0, 0}, {10, 0}, {0, 10}}
	if got := PolygonArea(triangle); math.Abs(got-50) > 1e-9 {
		t.Errorf("triangle area = %v, want 50", got)
	}

	// Winding order must not change the result.
	reversed := []Point{{0, 10}, {10, 0}, {0, 0}}
	if got := PolygonArea(reversed); math.Abs(got-50) > 1e-9 {
		t.Errorf("reversed triangle area = %v, want 50", got)
	}

	if got := PolygonArea(square[:2]); got != 0 {
		t.Errorf("degenerate polygon area = %v, want 0", got)
	}
}

func TestPolygonContains(t *testing.T) {
	poly := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	if !PolygonContains(poly, Point{5, 5}) {
		t.Error("interior point should be inside")
	}
	if PolygonContains(poly, Point{15, 5}) {
		t.Error("exterior point should be outside")
	}
	if !PolygonContains(poly, Point{5, 0}) {
		t.Error("edge point should count as inside")
	}
	if !PolygonContains(poly, Point{0, 0}) {
		t.Error("vertex should count as inside")
	}

	concave := []Point{{0, 0}, {10, 0}, {10, 10}, {5, 5}, {0, 10}}
	if PolygonContains(concave, Point{5, 8}) {
		t.Error("point in concave notch should be outside")
	}
	if !PolygonContains(concave, Point{2, 3}) {
		t.Error("point in concave body should be inside")
	}
}

func TestPolygonBounds(t *testing.T) {
	poly := []Point{{5, 1}, {9, 4}, {2, 8}}
	b := PolygonBounds(poly)
	if b.Min != (Point{2, 1}) || b.Max != (Point{9, 8}) {
		t.Errorf("PolygonBounds() = %+v", b)
	}
}

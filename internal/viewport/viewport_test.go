package viewport

import (
	"errors"
	"math"
	"testing"

	"github.com/image-annotator/backend/internal/geometry"
)

func almostEqual(a, b geometry.Point) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestTransformRoundTrip(t *testing.T) {
	viewports := []Viewport{
		{Zoom: 1.0},
		{Zoom: 0.1, Pan: geometry.Point{X: -250, Y: 40}},
		{Zoom: 2.5, Pan: geometry.Point{X: 13.7, Y: -99.2}},
		{Zoom: 5.0, Pan: geometry.Point{X: 1000, Y: 1000}},
		{Zoom: 0.333333, Pan: geometry.Point{X: 0.0001, Y: -0.0001}},
	}
	points := []geometry.Point{
		{X: 0, Y: 0},
		{X: 123.456, Y: 789.012},
		{X: -50, Y: 2048},
	}

	for _, v := range viewports {
		for _, p := range points {
			got := v.ToImage(v.ToCanvas(p))
			if !almostEqual(got, p) {
				t.Errorf("round trip at zoom %v: got %+v, want %+v", v.Zoom, got, p)
			}
		}
	}
}

func TestToCanvasFormula(t *testing.T) {
	v := Viewport{Zoom: 2, Pan: geometry.Point{X: 10, Y: 20}}
	got := v.ToCanvas(geometry.Point{X: 5, Y: 5})
	if got != (geometry.Point{X: 20, Y: 30}) {
		t.Errorf("ToCanvas = %+v, want (20,30)", got)
	}
}

func TestZoomAtAnchorsFocalPoint(t *testing.T) {
	lim := DefaultLimits()
	old := Viewport{Zoom: 1.0, Pan: geometry.Point{X: 30, Y: -10}}
	focal := geometry.Point{X: 400, Y: 300}

	for _, newZoom := range []float64{0.5, 2.0, 4.9, 0.1} {
		nv, err := old.ZoomAt(focal, newZoom, lim)
		if err != nil {
			t.Fatalf("ZoomAt(%v): %v", newZoom, err)
		}
		// The image pixel under the focal point must map back to the
		// same canvas position under the new viewport.
		reprojected := nv.ToCanvas(old.ToImage(focal))
		if !almostEqual(reprojected, focal) {
			t.Errorf("zoom %v: focal moved from %+v to %+v", newZoom, focal, reprojected)
		}
	}
}

func TestZoomAtRejectsOutOfBounds(t *testing.T) {
	lim := DefaultLimits()
	v := Default()
	focal := geometry.Point{X: 100, Y: 100}

	for _, zoom := range []float64{0, -1, 0.05, 5.1, math.NaN()} {
		got, err := v.ZoomAt(focal, zoom, lim)
		if !errors.Is(err, ErrInvalidZoom) {
			t.Errorf("zoom %v: err = %v, want ErrInvalidZoom", zoom, err)
		}
		if got != v {
			t.Errorf("zoom %v: viewport changed on failure", zoom)
		}
	}
}

func TestStepZoomClampsAtBounds(t *testing.T) {
	lim := DefaultLimits()
	v := Viewport{Zoom: 4.9}
	focal := geometry.Point{}

	nv, err := v.StepZoom(focal, 1, lim)
	if err != nil {
		t.Fatalf("StepZoom: %v", err)
	}
	if nv.Zoom != lim.MaxZoom {
		t.Errorf("Zoom = %v, want clamped to %v", nv.Zoom, lim.MaxZoom)
	}

	v = Viewport{Zoom: 0.11}
	nv, err = v.StepZoom(focal, -1, lim)
	if err != nil {
		t.Fatalf("StepZoom: %v", err)
	}
	if nv.Zoom != lim.MinZoom {
		t.Errorf("Zoom = %v, want clamped to %v", nv.Zoom, lim.MinZoom)
	}
}

func TestPanBy(t *testing.T) {
	v := Viewport{Zoom: 2, Pan: geometry.Point{X: 1, Y: 1}}
	nv := v.PanBy(geometry.Point{X: 9, Y: -1})
	if nv.Pan != (geometry.Point{X: 10, Y: 0}) || nv.Zoom != 2 {
		t.Errorf("PanBy = %+v", nv)
	}
}

func TestFitCentersImage(t *testing.T) {
	lim := DefaultLimits()
	v := Fit(1000, 500, 800, 600, lim)

	// Width-bound: zoom = 800/1000 * 0.9 = 0.72.
	if math.Abs(v.Zoom-0.72) > 1e-9 {
		t.Fatalf("Zoom = %v, want 0.72", v.Zoom)
	}
	// Image center maps to canvas center.
	center := v.ToCanvas(geometry.Point{X: 500, Y: 250})
	if !almostEqual(center, geometry.Point{X: 400, Y: 300}) {
		t.Errorf("image center maps to %+v, want (400,300)", center)
	}
}

func TestFitDegenerateInputs(t *testing.T) {
	v := Fit(0, 0, 800, 600, DefaultLimits())
	if v != Default() {
		t.Errorf("Fit with zero image = %+v, want identity", v)
	}
}

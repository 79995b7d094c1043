// Package viewport maps image-space coordinates to canvas-space
// coordinates under a zoom factor and pan offset, and keeps zoom
// changes anchored on a focal point so the pixel under the cursor
// stays put.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/image-annotator/backend/internal/geometry"
)

// ErrInvalidZoom is returned for zoom factors that are not positive or
// fall outside the configured bounds.
var ErrInvalidZoom = errors.New("invalid zoom factor")

// Default editor bounds. These mirror the configuration defaults and
// are used when a Limits value is not supplied.
const (
	DefaultMinZoom  = 0.1
	DefaultMaxZoom  = 5.0
	DefaultZoomStep = 1.1
)

// Limits bounds the zoom range for a viewport.
type Limits struct {
	MinZoom  float64
	MaxZoom  float64
	ZoomStep float64
}

// DefaultLimits returns the stock editor zoom bounds.
func DefaultLimits() Limits {
	return Limits{MinZoom: DefaultMinZoom, MaxZoom: DefaultMaxZoom, ZoomStep: DefaultZoomStep}
}

// ValidateZoom checks a requested zoom factor against the bounds.
func (l Limits) ValidateZoom(zoom float64) error {
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidZoom, zoom)
	}
	if zoom < l.MinZoom || zoom > l.MaxZoom {
		return fmt.Errorf("%w: %v outside [%v, %v]", ErrInvalidZoom, zoom, l.MinZoom, l.MaxZoom)
	}
	return nil
}

// Viewport is the ephemeral zoom/pan state of one displayed image.
// It is a value: transform methods return new viewports and never
// mutate the receiver.
type Viewport struct {
	Zoom float64        `json:"zoom" msgpack:"zoom"`
	Pan  geometry.Point `json:"pan" msgpack:"pan"`
}

// Default returns the identity viewport (zoom 1, no pan).
func Default() Viewport {
	return Viewport{Zoom: 1.0}
}

// Validate rejects viewports whose zoom cannot be inverted.
func (v Viewport) Validate() error {
	if v.Zoom <= 0 || math.IsNaN(v.Zoom) || math.IsInf(v.Zoom, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidZoom, v.Zoom)
	}
	return nil
}

// ToCanvas maps an image-space point to canvas space:
// canvas = image*zoom + pan.
func (v Viewport) ToCanvas(p geometry.Point) geometry.Point {
	return p.Scale(v.Zoom).Add(v.Pan)
}

// ToImage maps a canvas-space point back to image space. It is the
// exact inverse of ToCanvas for any zoom > 0.
func (v Viewport) ToImage(p geometry.Point) geometry.Point {
	return p.Sub(v.Pan).Scale(1 / v.Zoom)
}

// ZoomAt changes the zoom factor while keeping focalCanvas over the
// same image pixel. The new pan solves
// focal_canvas = focal_image*new_zoom + new_pan.
func (v Viewport) ZoomAt(focalCanvas geometry.Point, newZoom float64, lim Limits) (Viewport, error) {
	if err := v.Validate(); err != nil {
		return v, err
	}
	if err := lim.ValidateZoom(newZoom); err != nil {
		return v, err
	}
	focalImage := v.ToImage(focalCanvas)
	return Viewport{
		Zoom: newZoom,
		Pan:  focalCanvas.Sub(focalImage.Scale(newZoom)),
	}, nil
}

// StepZoom zooms in (direction > 0) or out (direction < 0) by the
// configured multiplicative step, anchored on focalCanvas. The result
// is clamped to the limits rather than rejected, matching wheel-zoom
// behavior where repeated steps stop at the bound.
func (v Viewport) StepZoom(focalCanvas geometry.Point, direction int, lim Limits) (Viewport, error) {
	if err := v.Validate(); err != nil {
		return v, err
	}
	step := lim.ZoomStep
	if step <= 1 {
		step = DefaultZoomStep
	}
	target := v.Zoom * step
	if direction < 0 {
		target = v.Zoom / step
	}
	target = math.Max(lim.MinZoom, math.Min(lim.MaxZoom, target))
	return v.ZoomAt(focalCanvas, target, lim)
}

// PanBy shifts the pan offset by a canvas-space delta.
func (v Viewport) PanBy(delta geometry.Point) Viewport {
	return Viewport{Zoom: v.Zoom, Pan: v.Pan.Add(delta)}
}

// Fit returns a viewport that fits an image into a canvas with a 10%
// margin, centered. The fitted zoom is clamped to the limits.
func Fit(imageW, imageH, canvasW, canvasH float64, lim Limits) Viewport {
	if imageW <= 0 || imageH <= 0 || canvasW <= 0 || canvasH <= 0 {
		return Default()
	}
	zoom := math.Min(canvasW/imageW, canvasH/imageH) * 0.9
	zoom = math.Max(lim.MinZoom, math.Min(lim.MaxZoom, zoom))
	return Viewport{
		Zoom: zoom,
		Pan: geometry.Point{
			X: (canvasW - imageW*zoom) / 2,
			Y: (canvasH - imageH*zoom) / 2,
		},
	}
}

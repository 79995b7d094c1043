// Package hittest resolves pointer positions against annotation
// geometry and implements the pure vertex-editing operations. All
// coordinates are image-space; pixel tolerances are divided by the
// zoom factor so grab targets keep a constant on-screen size.
package hittest

import (
	"math"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
)

// Default grab tolerances in canvas pixels.
const (
	DefaultVertexTolerancePx = 10.0
	DefaultEdgeTolerancePx   = 5.0
)

// Tolerances are grab distances in canvas pixels.
type Tolerances struct {
	VertexPx float64
	EdgePx   float64
}

// DefaultTolerances returns the standard grab distances.
func DefaultTolerances() Tolerances {
	return Tolerances{VertexPx: DefaultVertexTolerancePx, EdgePx: DefaultEdgeTolerancePx}
}

// Part names what a hit landed on.
type Part string

const (
	PartVertex Part = "vertex"
	PartBody   Part = "body"
)

// Hit describes the topmost-or-nearest thing under the pointer.
// VertexIndex is -1 for body hits.
type Hit struct {
	ID          string `json:"id"`
	Part        Part   `json:"part"`
	VertexIndex int    `json:"vertexIndex"`
}

// Vertices returns the draggable handles of a geometry in index
// order: points expose themselves, rectangles their corners
// (top-left, top-right, bottom-right, bottom-left), circles the
// center then a radius handle on the positive x axis, polygons their
// vertex ring.
func Vertices(g models.Geometry) []geometry.Point {
	switch g.Kind {
	case models.KindPoint:
		return []geometry.Point{*g.Point}
	case models.KindRectangle:
		c := g.Rect.Corners()
		return c[:]
	case models.KindCircle:
		return []geometry.Point{
			g.Circle.Center,
			{X: g.Circle.Center.X + g.Circle.Radius, Y: g.Circle.Center.Y},
		}
	case models.KindPolygon:
		return g.Polygon
	}
	return nil
}

// HitTest resolves the image-space point p against the annotations in
// z-order (later entries are on top). Vertex hits beat body hits; the
// nearest vertex wins with ties going to the topmost annotation; body
// hits go to the topmost containing annotation. Polygon bodies extend
// to within the edge tolerance of their outline. zoom must be a valid
// zoom factor.
//
// Returns nil when nothing is within tolerance.
func HitTest(anns []*models.Annotation, p geometry.Point, zoom float64, tol Tolerances) *Hit {
	vertexTol := tol.VertexPx / zoom
	edgeTol := tol.EdgePx / zoom

	// Vertex pass: nearest handle across every annotation. The >=
	// walk order makes equal distances resolve to the topmost.
	best := math.Inf(1)
	var bestHit *Hit
	for _, a := range anns {
		for i, v := range Vertices(a.Geometry) {
			d := p.Distance(v)
			if d <= vertexTol && d <= best {
				best = d
				bestHit = &Hit{ID: a.ID, Part: PartVertex, VertexIndex: i}
			}
		}
	}
	if bestHit != nil {
		return bestHit
	}

	// Body pass: topmost first.
	for i := len(anns) - 1; i >= 0; i-- {
		a := anns[i]
		if hitBody(a.Geometry, p, edgeTol) {
			return &Hit{ID: a.ID, Part: PartBody, VertexIndex: -1}
		}
	}
	return nil
}

func hitBody(g models.Geometry, p geometry.Point, edgeTol float64) bool {
	switch g.Kind {
	case models.KindPoint:
		// A point's body is its vertex; the vertex pass owns it.
		return false
	case models.KindRectangle:
		return g.Rect.Contains(p)
	case models.KindCircle:
		return g.Circle.Contains(p)
	case models.KindPolygon:
		n := len(g.Polygon)
		for i := 0; i < n; i++ {
			if geometry.PointToSegment(p, g.Polygon[i], g.Polygon[(i+1)%n]) <= edgeTol {
				return true
			}
		}
		return geometry.PolygonContains(g.Polygon, p)
	}
	return false
}

package hittest

import (
	"fmt"

	"github.com/image-annotator/backend/internal/annotation"
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
)

// MoveVertex returns a copy of g with the given handle moved to the
// image-space point. Rectangle corners drag against the fixed
// opposite corner and re-normalize; circle handle 0 is the center and
// handle 1 sets the radius.
func MoveVertex(g models.Geometry, index int, to geometry.Point) (models.Geometry, error) {
	out := g.Clone()
	switch g.Kind {
	case models.KindPoint:
		if index != 0 {
			return models.Geometry{}, vertexRange(index, 1)
		}
		*out.Point = to
	case models.KindRectangle:
		if index < 0 || index > 3 {
			return models.Geometry{}, vertexRange(index, 4)
		}
		corners := g.Rect.Corners()
		opposite := corners[(index+2)%4]
		*out.Rect = geometry.NewRect(to, opposite)
	case models.KindCircle:
		switch index {
		case 0:
			out.Circle.Center = to
		case 1:
			out.Circle.Radius = g.Circle.Center.Distance(to)
		default:
			return models.Geometry{}, vertexRange(index, 2)
		}
	case models.KindPolygon:
		if index < 0 || index >= len(g.Polygon) {
			return models.Geometry{}, vertexRange(index, len(g.Polygon))
		}
		out.Polygon[index] = to
	default:
		return models.Geometry{}, fmt.Errorf("%w: %q", models.ErrUnsupportedKind, g.Kind)
	}
	return out, nil
}

// InsertVertex returns a copy of g with a vertex added on the edge
// from vertex edgeIndex to its successor (the closing edge included).
// Only polygons support insertion.
func InsertVertex(g models.Geometry, edgeIndex int, at geometry.Point) (models.Geometry, error) {
	if g.Kind != models.KindPolygon {
		return models.Geometry{}, fmt.Errorf("%w: cannot insert vertex into a %s", models.ErrUnsupportedKind, g.Kind)
	}
	n := len(g.Polygon)
	if edgeIndex < 0 || edgeIndex >= n {
		return models.Geometry{}, fmt.Errorf("%w: edge %d of %d", annotation.ErrNotFound, edgeIndex, n)
	}
	out := g.Clone()
	out.Polygon = append(out.Polygon, geometry.Point{})
	copy(out.Polygon[edgeIndex+2:], out.Polygon[edgeIndex+1:])
	out.Polygon[edgeIndex+1] = at
	return out, nil
}

// DeleteVertex returns a copy of g with the given vertex removed.
// Only polygons support deletion, and never below 3 vertices.
func DeleteVertex(g models.Geometry, index int) (models.Geometry, error) {
	if g.Kind != models.KindPolygon {
		return models.Geometry{}, fmt.Errorf("%w: cannot delete vertex from a %s", models.ErrUnsupportedKind, g.Kind)
	}
	n := len(g.Polygon)
	if index < 0 || index >= n {
		return models.Geometry{}, vertexRange(index, n)
	}
	if n <= 3 {
		return models.Geometry{}, fmt.Errorf("%w: polygon needs at least 3 vertices", models.ErrInvalidGeometry)
	}
	out := g.Clone()
	out.Polygon = append(out.Polygon[:index], out.Polygon[index+1:]...)
	return out, nil
}

// Translate returns a copy of g moved by delta.
func Translate(g models.Geometry, delta geometry.Point) (models.Geometry, error) {
	out := g.Clone()
	switch g.Kind {
	case models.KindPoint:
		*out.Point = out.Point.Add(delta)
	case models.KindRectangle:
		out.Rect.Min = out.Rect.Min.Add(delta)
		out.Rect.Max = out.Rect.Max.Add(delta)
	case models.KindCircle:
		out.Circle.Center = out.Circle.Center.Add(delta)
	case models.KindPolygon:
		for i := range out.Polygon {
			out.Polygon[i] = out.Polygon[i].Add(delta)
		}
	default:
		return models.Geometry{}, fmt.Errorf("%w: %q", models.ErrUnsupportedKind, g.Kind)
	}
	return out, nil
}

func vertexRange(index, n int) error {
	return fmt.Errorf("%w: vertex %d of %d", annotation.ErrNotFound, index, n)
}

package models

import (
	"fmt"

	"github.com/image-annotator/backend/internal/geometry"
)

// Kind identifies one of the four annotation shapes. It is fixed for
// the lifetime of an annotation.
type Kind string

const (
	KindPoint     Kind = "Point"
	KindRectangle Kind = "Rectangle"
	KindCircle    Kind = "Circle"
	KindPolygon   Kind = "Polygon"
)

// Valid reports whether k names a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPoint, KindRectangle, KindCircle, KindPolygon:
		return true
	}
	return false
}

// Geometry is a tagged variant over the four annotation kinds.
// Exactly one payload field is set, selected by Kind.
type Geometry struct {
	Kind    Kind             `json:"kind" msgpack:"kind"`
	Point   *geometry.Point  `json:"point,omitempty" msgpack:"point,omitempty"`
	Rect    *geometry.Rect   `json:"rect,omitempty" msgpack:"rect,omitempty"`
	Circle  *geometry.Circle `json:"circle,omitempty" msgpack:"circle,omitempty"`
	Polygon []geometry.Point `json:"polygon,omitempty" msgpack:"polygon,omitempty"`
}

// PointGeometry builds a point geometry.
func PointGeometry(p geometry.Point) Geometry {
	return Geometry{Kind: KindPoint, Point: &p}
}

// RectGeometry builds a rectangle geometry from two opposite corners,
// normalized so Min is top-left and Max bottom-right.
func RectGeometry(a, b geometry.Point) Geometry {
	r := geometry.NewRect(a, b)
	return Geometry{Kind: KindRectangle, Rect: &r}
}

// CircleGeometry builds a circle geometry.
func CircleGeometry(center geometry.Point, radius float64) Geometry {
	return Geometry{Kind: KindCircle, Circle: &geometry.Circle{Center: center, Radius: radius}}
}

// PolygonGeometry builds a polygon geometry from an ordered vertex
// sequence. The closing edge is implicit between the last and first
// vertex.
func PolygonGeometry(vertices []geometry.Point) Geometry {
	vs := make([]geometry.Point, len(vertices))
	copy(vs, vertices)
	return Geometry{Kind: KindPolygon, Polygon: vs}
}

// Validate checks the kind-specific invariants: the payload matching
// the tag is present, polygons have at least 3 vertices, circle radius
// is non-negative. Rectangle corners are normalized in place so the
// stored form always has Min top-left.
func (g *Geometry) Validate() error {
	switch g.Kind {
	case KindPoint:
		if g.Point == nil || g.Rect != nil || g.Circle != nil || g.Polygon != nil {
			return fmt.Errorf("%w: point payload missing or ambiguous", ErrInvalidGeometry)
		}
	case KindRectangle:
		if g.Rect == nil || g.Point != nil || g.Circle != nil || g.Polygon != nil {
			return fmt.Errorf("%w: rectangle payload missing or ambiguous", ErrInvalidGeometry)
		}
		*g.Rect = geometry.NewRect(g.Rect.Min, g.Rect.Max)
	case KindCircle:
		if g.Circle == nil || g.Point != nil || g.Rect != nil || g.Polygon != nil {
			return fmt.Errorf("%w: circle payload missing or ambiguous", ErrInvalidGeometry)
		}
		if g.Circle.Radius < 0 {
			return fmt.Errorf("%w: negative radius %v", ErrInvalidGeometry, g.Circle.Radius)
		}
	case KindPolygon:
		if g.Polygon == nil || g.Point != nil || g.Rect != nil || g.Circle != nil {
			return fmt.Errorf("%w: polygon payload missing or ambiguous", ErrInvalidGeometry)
		}
		if len(g.Polygon) < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", ErrInvalidGeometry, len(g.Polygon))
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidGeometry, g.Kind)
	}
	return nil
}

// Clone returns a deep copy. Commands and sessions hold geometry
// values across mutations, so sharing payload pointers is never safe.
func (g Geometry) Clone() Geometry {
	out := Geometry{Kind: g.Kind}
	if g.Point != nil {
		p := *g.Point
		out.Point = &p
	}
	if g.Rect != nil {
		r := *g.Rect
		out.Rect = &r
	}
	if g.Circle != nil {
		c := *g.Circle
		out.Circle = &c
	}
	if g.Polygon != nil {
		out.Polygon = make([]geometry.Point, len(g.Polygon))
		copy(out.Polygon, g.Polygon)
	}
	return out
}

// Bounds returns the axis-aligned bounding rectangle of the geometry.
func (g Geometry) Bounds() geometry.Rect {
	switch g.Kind {
	case KindPoint:
		return geometry.Rect{Min: *g.Point, Max: *g.Point}
	case KindRectangle:
		return *g.Rect
	case KindCircle:
		return g.Circle.Bounds()
	case KindPolygon:
		return geometry.PolygonBounds(g.Polygon)
	}
	return geometry.Rect{}
}

// Annotation is a single labeled geometric region on one image.
type Annotation struct {
	// ID is assigned at creation and never reused.
	ID       string   `json:"id" msgpack:"id"`
	Geometry Geometry `json:"geometry" msgpack:"geometry"`
	// Label references a Label by name; empty means unlabeled.
	Label string `json:"label,omitempty" msgpack:"label,omitempty"`
	// Color is the concrete display color ("#RRGGBB"), assigned at
	// creation from the request, the label, or the configured default.
	Color string `json:"color" msgpack:"color"`
}

// Kind returns the annotation's shape kind.
func (a *Annotation) Kind() Kind {
	return a.Geometry.Kind
}

// Clone returns a deep copy of the annotation.
func (a *Annotation) Clone() *Annotation {
	out := *a
	out.Geometry = a.Geometry.Clone()
	return &out
}

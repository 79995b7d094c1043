package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
)

const cocoUnlabeled = "unlabeled"

type cocoInfo struct {
	Description string `json:"description"`
	Version     string `json:"version"`
	Year        int    `json:"year"`
	DateCreated string `json:"date_created"`
}

type cocoLicense struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	License  int    `json:"license"`
}

type cocoCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

type cocoAnnotationOut struct {
	ID           int         `json:"id"`
	ImageID      int         `json:"image_id"`
	CategoryID   int         `json:"category_id"`
	Bbox         []float64   `json:"bbox"`
	Area         float64     `json:"area"`
	Segmentation [][]float64 `json:"segmentation"`
	Iscrowd      int         `json:"iscrowd"`
}

type cocoFileOut struct {
	Info        cocoInfo            `json:"info"`
	Licenses    []cocoLicense       `json:"licenses"`
	Images      []cocoImage         `json:"images"`
	Annotations []cocoAnnotationOut `json:"annotations"`
	Categories  []cocoCategory      `json:"categories"`
}

// Import side tolerates segmentation payloads that are not plain
// polygon rings (RLE objects) by falling back to the bbox.
type cocoAnnotationIn struct {
	ImageID      int             `json:"image_id"`
	CategoryID   int             `json:"category_id"`
	Bbox         []float64       `json:"bbox"`
	Segmentation json.RawMessage `json:"segmentation"`
}

type cocoFileIn struct {
	Images      []cocoImage        `json:"images"`
	Annotations []cocoAnnotationIn `json:"annotations"`
	Categories  []cocoCategory     `json:"categories"`
}

// COCOCodec exports and imports the COCO object-detection schema.
// Circles become inscribed regular polygons on export; only
// rectangles and polygons come back on import.
type COCOCodec struct{}

func (c *COCOCodec) Name() string { return "coco" }

func (c *COCOCodec) Encode(p *models.Project, opts Options) ([]File, error) {
	savedAt := opts.Meta.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	// Category ids are assigned over the label set sorted by name so
	// repeated exports of the same project agree.
	names := labelNames(p)
	sort.Strings(names)
	categoryID := make(map[string]int, len(names)+1)
	categories := make([]cocoCategory, 0, len(names)+1)
	for i, name := range names {
		categoryID[name] = i + 1
		categories = append(categories, cocoCategory{ID: i + 1, Name: name, Supercategory: "none"})
	}
	hasUnlabeled := false
	for _, e := range p.Images {
		for _, a := range e.Annotations {
			if a.Label == "" {
				hasUnlabeled = true
			}
		}
	}
	if hasUnlabeled {
		id := len(categories) + 1
		categoryID[""] = id
		categories = append(categories, cocoCategory{ID: id, Name: cocoUnlabeled, Supercategory: "none"})
	}

	out := &cocoFileOut{
		Info: cocoInfo{
			Description: "Image annotation export",
			Version:     "1.0",
			Year:        savedAt.UTC().Year(),
			DateCreated: savedAt.UTC().Format(time.RFC3339),
		},
		Licenses:    []cocoLicense{{ID: 1, Name: "Unknown", URL: ""}},
		Images:      make([]cocoImage, 0, len(p.Images)),
		Annotations: make([]cocoAnnotationOut, 0, p.AnnotationTotal()),
		Categories:  categories,
	}

	annID := 1
	for i, e := range p.Images {
		imageID := i + 1
		out.Images = append(out.Images, cocoImage{
			ID:       imageID,
			FileName: e.Name,
			Width:    e.Width,
			Height:   e.Height,
			License:  1,
		})
		for _, a := range e.Annotations {
			bbox, area, seg := cocoShape(a.Geometry, opts.circleVertices())
			out.Annotations = append(out.Annotations, cocoAnnotationOut{
				ID:           annID,
				ImageID:      imageID,
				CategoryID:   categoryID[a.Label],
				Bbox:         bbox,
				Area:         area,
				Segmentation: seg,
				Iscrowd:      0,
			})
			annID++
		}
	}

	data, err := marshalJSON(out, opts)
	if err != nil {
		return nil, err
	}
	return []File{{Name: "annotations_coco.json", Data: data}}, nil
}

// cocoShape maps a geometry onto bbox, area, and segmentation.
func cocoShape(g models.Geometry, circleVertices int) (bbox []float64, area float64, seg [][]float64) {
	switch g.Kind {
	case models.KindPoint:
		p := *g.Point
		return []float64{p.X - 1, p.Y - 1, 2, 2}, 4, [][]float64{}
	case models.KindRectangle:
		r := *g.Rect
		w, h := r.Width(), r.Height()
		ring := []float64{
			r.Min.X, r.Min.Y,
			r.Max.X, r.Min.Y,
			r.Max.X, r.Max.Y,
			r.Min.X, r.Max.Y,
		}
		return []float64{r.Min.X, r.Min.Y, w, h}, w * h, [][]float64{ring}
	case models.KindCircle:
		c := *g.Circle
		ring := make([]float64, 0, circleVertices*2)
		for _, v := range circleRing(c, circleVertices) {
			ring = append(ring, v.X, v.Y)
		}
		return []float64{c.Center.X - c.Radius, c.Center.Y - c.Radius, 2 * c.Radius, 2 * c.Radius},
			math.Pi * c.Radius * c.Radius,
			[][]float64{ring}
	case models.KindPolygon:
		b := geometry.PolygonBounds(g.Polygon)
		ring := make([]float64, 0, len(g.Polygon)*2)
		for _, v := range g.Polygon {
			ring = append(ring, v.X, v.Y)
		}
		return []float64{b.Min.X, b.Min.Y, b.Width(), b.Height()},
			geometry.PolygonArea(g.Polygon),
			[][]float64{ring}
	}
	return nil, 0, nil
}

// circleRing inscribes a regular n-gon on the circle, first vertex at
// angle zero.
func circleRing(c geometry.Circle, n int) []geometry.Point {
	ring := make([]geometry.Point, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		ring[i] = geometry.Point{
			X: c.Center.X + c.Radius*math.Cos(theta),
			Y: c.Center.Y + c.Radius*math.Sin(theta),
		}
	}
	return ring
}

func (c *COCOCodec) CanDecode(filename string, data []byte) bool {
	if !strings.HasSuffix(strings.ToLower(filename), ".json") {
		return false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, hasImages := probe["images"]
	_, hasAnns := probe["annotations"]
	_, hasCats := probe["categories"]
	return hasImages && hasAnns && hasCats
}

func (c *COCOCodec) Decode(data []byte) (*Decoded, error) {
	var in cocoFileIn
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}

	p := &models.Project{
		Images: make([]*models.ImageEntry, 0, len(in.Images)),
		Labels: make([]models.Label, 0, len(in.Categories)),
	}
	categoryName := make(map[int]string, len(in.Categories))
	for i, cat := range in.Categories {
		if cat.Name == "" || cat.Name == cocoUnlabeled {
			continue
		}
		if l, _ := p.FindLabel(cat.Name); l == nil {
			p.Labels = append(p.Labels, models.Label{Name: cat.Name, Color: models.CycleColor(i)})
		}
		categoryName[cat.ID] = cat.Name
	}

	entries := make(map[int]*models.ImageEntry, len(in.Images))
	for _, img := range in.Images {
		if img.FileName == "" {
			return nil, fmt.Errorf("%w: image %d without file_name", models.ErrMalformedInput, img.ID)
		}
		e := &models.ImageEntry{
			Path:        img.FileName,
			Name:        baseName(img.FileName),
			Width:       img.Width,
			Height:      img.Height,
			Annotations: make([]*models.Annotation, 0),
		}
		entries[img.ID] = e
		p.Images = append(p.Images, e)
	}

	for i, na := range in.Annotations {
		e, ok := entries[na.ImageID]
		if !ok {
			// Annotations for images the file does not declare are
			// dropped rather than failing the whole import.
			continue
		}
		g, err := cocoGeometry(&na)
		if err != nil {
			return nil, fmt.Errorf("annotation %d: %w", i, err)
		}
		label := categoryName[na.CategoryID]
		color := models.DefaultColor
		if l, _ := p.FindLabel(label); l != nil {
			color = l.Color
		}
		e.Annotations = append(e.Annotations, &models.Annotation{
			ID:       uuid.NewString(),
			Geometry: g,
			Label:    label,
			Color:    color,
		})
	}
	return &Decoded{Project: p}, nil
}

// cocoGeometry picks the richest shape the entry carries: a polygon
// ring when the segmentation has one, otherwise the bbox rectangle.
func cocoGeometry(na *cocoAnnotationIn) (models.Geometry, error) {
	if len(na.Segmentation) > 0 {
		var rings [][]float64
		if err := json.Unmarshal(na.Segmentation, &rings); err == nil && len(rings) > 0 {
			ring := rings[0]
			if len(ring) >= 6 && len(ring)%2 == 0 {
				vs := make([]geometry.Point, 0, len(ring)/2)
				for i := 0; i < len(ring); i += 2 {
					vs = append(vs, geometry.Point{X: ring[i], Y: ring[i+1]})
				}
				return models.PolygonGeometry(vs), nil
			}
		}
	}
	if len(na.Bbox) != 4 {
		return models.Geometry{}, fmt.Errorf("%w: bbox wants 4 values, got %d", models.ErrMalformedInput, len(na.Bbox))
	}
	x, y, w, h := na.Bbox[0], na.Bbox[1], na.Bbox[2], na.Bbox[3]
	if w < 0 || h < 0 {
		return models.Geometry{}, fmt.Errorf("%w: bbox %v has negative extent", models.ErrMalformedInput, na.Bbox)
	}
	return models.RectGeometry(geometry.Point{X: x, Y: y}, geometry.Point{X: x + w, Y: y + h}), nil
}

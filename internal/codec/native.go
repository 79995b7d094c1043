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

// Native JSON wire schema. Coordinates are flat arrays: Point [x,y],
// Rectangle [x1,y1,x2,y2] normalized, Circle [cx,cy,r], Polygon
// [x1,y1,x2,y2,...] with at least three vertices.

type nativeAnnotation struct {
	ID          string    `json:"id,omitempty" msgpack:"id,omitempty"`
	Type        string    `json:"type" msgpack:"type"`
	Coordinates []float64 `json:"coordinates" msgpack:"coordinates"`
	Label       string    `json:"label,omitempty" msgpack:"label,omitempty"`
	Color       string    `json:"color" msgpack:"color"`
}

type nativeImage struct {
	ImagePath        string             `json:"image_path" msgpack:"image_path"`
	ImageName        string             `json:"image_name" msgpack:"image_name"`
	Width            int                `json:"width,omitempty" msgpack:"width,omitempty"`
	Height           int                `json:"height,omitempty" msgpack:"height,omitempty"`
	RelativePath     string             `json:"relative_path,omitempty" msgpack:"relative_path,omitempty"`
	Annotations      []nativeAnnotation `json:"annotations" msgpack:"annotations"`
	Labels           []string           `json:"labels" msgpack:"labels"`
	LabelColors      map[string]string  `json:"label_colors" msgpack:"label_colors"`
	TotalAnnotations int                `json:"total_annotations" msgpack:"total_annotations"`
	AnnotationTypes  []string           `json:"annotation_types" msgpack:"annotation_types"`
	CreationDate     string             `json:"creation_date" msgpack:"creation_date"`
}

type nativeProjectMeta struct {
	ID         string `json:"id,omitempty" msgpack:"id,omitempty"`
	Name       string `json:"name,omitempty" msgpack:"name,omitempty"`
	FolderPath string `json:"folder_path,omitempty" msgpack:"folder_path,omitempty"`
	SavedAt    string `json:"saved_at" msgpack:"saved_at"`
}

type nativeDatasetInfo struct {
	TotalImages      int               `json:"total_images" msgpack:"total_images"`
	TotalAnnotations int               `json:"total_annotations" msgpack:"total_annotations"`
	Labels           []string          `json:"labels" msgpack:"labels"`
	LabelColors      map[string]string `json:"label_colors" msgpack:"label_colors"`
	AnnotationTypes  []string          `json:"annotation_types" msgpack:"annotation_types"`
	CreationDate     string            `json:"creation_date" msgpack:"creation_date"`
}

type nativeContainer struct {
	FormatVersion int               `json:"format_version" msgpack:"format_version"`
	Project       nativeProjectMeta `json:"project" msgpack:"project"`
	DatasetInfo   nativeDatasetInfo `json:"dataset_info" msgpack:"dataset_info"`
	Images        []nativeImage     `json:"images" msgpack:"images"`
}

// NativeCodec reads and writes the native JSON schema: a dataset
// container for whole projects and standalone per-image documents.
type NativeCodec struct{}

func (n *NativeCodec) Name() string { return "native" }

func (n *NativeCodec) Encode(p *models.Project, opts Options) ([]File, error) {
	if opts.PerImage {
		var files []File
		used := map[string]int{}
		for _, e := range p.Images {
			if len(e.Annotations) == 0 {
				continue
			}
			doc := buildImageDoc(p, e, opts)
			data, err := marshalJSON(doc, opts)
			if err != nil {
				return nil, err
			}
			files = append(files, File{Name: uniqueName(used, stem(e.Name)) + ".json", Data: data})
		}
		return files, nil
	}

	data, err := marshalJSON(BuildContainer(p, opts), opts)
	if err != nil {
		return nil, err
	}
	return []File{{Name: "project.json", Data: data}}, nil
}

func marshalJSON(v interface{}, opts Options) ([]byte, error) {
	if opts.Compact {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

// BuildContainer assembles the native dataset container. The snapshot
// codec encodes the same structure with msgpack.
func BuildContainer(p *models.Project, opts Options) *nativeContainer {
	savedAt := opts.Meta.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	stamp := savedAt.UTC().Format(time.RFC3339)

	images := make([]nativeImage, len(p.Images))
	for i, e := range p.Images {
		images[i] = buildImageDoc(p, e, opts)
	}
	return &nativeContainer{
		FormatVersion: FormatVersion,
		Project: nativeProjectMeta{
			ID:         opts.Meta.ID,
			Name:       opts.Meta.Name,
			FolderPath: p.FolderPath,
			SavedAt:    stamp,
		},
		DatasetInfo: nativeDatasetInfo{
			TotalImages:      len(p.Images),
			TotalAnnotations: p.AnnotationTotal(),
			Labels:           labelNames(p),
			LabelColors:      labelColors(p),
			AnnotationTypes:  projectKinds(p),
			CreationDate:     stamp,
		},
		Images: images,
	}
}

func buildImageDoc(p *models.Project, e *models.ImageEntry, opts Options) nativeImage {
	savedAt := opts.Meta.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	anns := make([]nativeAnnotation, len(e.Annotations))
	kinds := map[string]bool{}
	for i, a := range e.Annotations {
		anns[i] = nativeAnnotation{
			ID:          a.ID,
			Type:        string(a.Kind()),
			Coordinates: flatCoords(a.Geometry),
			Label:       a.Label,
			Color:       a.Color,
		}
		kinds[string(a.Kind())] = true
	}
	return nativeImage{
		ImagePath:        e.Path,
		ImageName:        e.Name,
		Width:            e.Width,
		Height:           e.Height,
		RelativePath:     relativeTo(p.FolderPath, e.Path),
		Annotations:      anns,
		Labels:           labelNames(p),
		LabelColors:      labelColors(p),
		TotalAnnotations: len(e.Annotations),
		AnnotationTypes:  sortedKeys(kinds),
		CreationDate:     savedAt.UTC().Format(time.RFC3339),
	}
}

func (n *NativeCodec) CanDecode(filename string, data []byte) bool {
	if !strings.HasSuffix(strings.ToLower(filename), ".json") {
		return false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	if _, ok := probe["format_version"]; ok {
		return true
	}
	_, ok := probe["image_path"]
	return ok
}

func (n *NativeCodec) Decode(data []byte) (*Decoded, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	if _, ok := probe["format_version"]; ok {
		var c nativeContainer
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
		}
		return decodeContainer(&c)
	}
	if _, ok := probe["image_path"]; ok {
		var img nativeImage
		if err := json.Unmarshal(data, &img); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
		}
		return decodeSingleImage(&img)
	}
	return nil, fmt.Errorf("%w: neither a dataset container nor an image document", models.ErrMalformedInput)
}

func decodeContainer(c *nativeContainer) (*Decoded, error) {
	p := &models.Project{
		FolderPath: c.Project.FolderPath,
		Images:     make([]*models.ImageEntry, 0, len(c.Images)),
		Labels:     make([]models.Label, 0, len(c.DatasetInfo.Labels)),
	}
	if err := appendLabels(p, c.DatasetInfo.Labels, c.DatasetInfo.LabelColors); err != nil {
		return nil, err
	}
	for i := range c.Images {
		e, err := decodeImageDoc(&c.Images[i], p)
		if err != nil {
			return nil, err
		}
		p.Images = append(p.Images, e)
	}
	meta := Meta{ID: c.Project.ID, Name: c.Project.Name}
	if t, err := time.Parse(time.RFC3339, c.Project.SavedAt); err == nil {
		meta.SavedAt = t
	}
	return &Decoded{Project: p, Meta: meta}, nil
}

func decodeSingleImage(img *nativeImage) (*Decoded, error) {
	p := &models.Project{
		Images: make([]*models.ImageEntry, 0, 1),
		Labels: make([]models.Label, 0, len(img.Labels)),
	}
	if err := appendLabels(p, img.Labels, img.LabelColors); err != nil {
		return nil, err
	}
	e, err := decodeImageDoc(img, p)
	if err != nil {
		return nil, err
	}
	p.Images = append(p.Images, e)
	return &Decoded{Project: p}, nil
}

func appendLabels(p *models.Project, names []string, colors map[string]string) error {
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty label name", models.ErrMalformedInput)
		}
		if l, _ := p.FindLabel(name); l != nil {
			return fmt.Errorf("%w: duplicate label %q", models.ErrMalformedInput, name)
		}
		color := colors[name]
		if color == "" {
			color = models.DefaultColor
		}
		if !models.ValidHexColor(color) {
			return fmt.Errorf("%w: label %q: color %q is not #RRGGBB", models.ErrMalformedInput, name, color)
		}
		p.Labels = append(p.Labels, models.Label{Name: name, Color: color})
	}
	return nil
}

func decodeImageDoc(img *nativeImage, p *models.Project) (*models.ImageEntry, error) {
	if img.ImagePath == "" {
		return nil, fmt.Errorf("%w: image document without image_path", models.ErrMalformedInput)
	}
	name := img.ImageName
	if name == "" {
		name = baseName(img.ImagePath)
	}
	e := &models.ImageEntry{
		Path:        img.ImagePath,
		Name:        name,
		Width:       img.Width,
		Height:      img.Height,
		Annotations: make([]*models.Annotation, 0, len(img.Annotations)),
	}
	for i := range img.Annotations {
		a, err := decodeAnnotation(&img.Annotations[i], p)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", img.ImagePath, err)
		}
		e.Annotations = append(e.Annotations, a)
	}
	return e, nil
}

func decodeAnnotation(na *nativeAnnotation, p *models.Project) (*models.Annotation, error) {
	g, err := geometryFromFlat(na.Type, na.Coordinates)
	if err != nil {
		return nil, err
	}
	// References to labels the document forgot to list are healed by
	// appending the label, matching how permissive the original files
	// were.
	if na.Label != "" {
		if l, _ := p.FindLabel(na.Label); l == nil {
			color := na.Color
			if !models.ValidHexColor(color) {
				color = models.CycleColor(len(p.Labels))
			}
			p.Labels = append(p.Labels, models.Label{Name: na.Label, Color: color})
		}
	}
	color := na.Color
	if color == "" {
		if l, _ := p.FindLabel(na.Label); l != nil {
			color = l.Color
		} else {
			color = models.DefaultColor
		}
	}
	if !models.ValidHexColor(color) {
		return nil, fmt.Errorf("%w: annotation color %q is not #RRGGBB", models.ErrMalformedInput, color)
	}
	id := na.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &models.Annotation{ID: id, Geometry: g, Label: na.Label, Color: color}, nil
}

// flatCoords serializes a geometry to the flat coordinate array.
func flatCoords(g models.Geometry) []float64 {
	switch g.Kind {
	case models.KindPoint:
		return []float64{g.Point.X, g.Point.Y}
	case models.KindRectangle:
		return []float64{g.Rect.Min.X, g.Rect.Min.Y, g.Rect.Max.X, g.Rect.Max.Y}
	case models.KindCircle:
		return []float64{g.Circle.Center.X, g.Circle.Center.Y, g.Circle.Radius}
	case models.KindPolygon:
		out := make([]float64, 0, len(g.Polygon)*2)
		for _, v := range g.Polygon {
			out = append(out, v.X, v.Y)
		}
		return out
	}
	return nil
}

// geometryFromFlat parses the flat coordinate array for a kind.
// Circles accept the legacy 4-value bounding-box form when it is
// square to within 1e-6.
func geometryFromFlat(kind string, c []float64) (models.Geometry, error) {
	var g models.Geometry
	switch models.Kind(kind) {
	case models.KindPoint:
		if len(c) != 2 {
			return g, coordCount(kind, 2, len(c))
		}
		g = models.PointGeometry(geometry.Point{X: c[0], Y: c[1]})
	case models.KindRectangle:
		if len(c) != 4 {
			return g, coordCount(kind, 4, len(c))
		}
		g = models.RectGeometry(geometry.Point{X: c[0], Y: c[1]}, geometry.Point{X: c[2], Y: c[3]})
	case models.KindCircle:
		switch len(c) {
		case 3:
			g = models.CircleGeometry(geometry.Point{X: c[0], Y: c[1]}, c[2])
		case 4:
			w, h := c[2]-c[0], c[3]-c[1]
			if w < 0 || h < 0 || math.Abs(w-h) > 1e-6 {
				return g, fmt.Errorf("%w: legacy circle box %v is not square", models.ErrMalformedInput, c)
			}
			g = models.CircleGeometry(geometry.Point{X: (c[0] + c[2]) / 2, Y: (c[1] + c[3]) / 2}, (w+h)/4)
		default:
			return g, coordCount(kind, 3, len(c))
		}
	case models.KindPolygon:
		if len(c) < 6 || len(c)%2 != 0 {
			return g, fmt.Errorf("%w: polygon coordinates want an even count of at least 6, got %d", models.ErrMalformedInput, len(c))
		}
		vs := make([]geometry.Point, 0, len(c)/2)
		for i := 0; i < len(c); i += 2 {
			vs = append(vs, geometry.Point{X: c[i], Y: c[i+1]})
		}
		g = models.PolygonGeometry(vs)
	default:
		return g, fmt.Errorf("%w: unknown annotation type %q", models.ErrMalformedInput, kind)
	}
	if err := g.Validate(); err != nil {
		return models.Geometry{}, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	return g, nil
}

func coordCount(kind string, want, got int) error {
	return fmt.Errorf("%w: %s coordinates want %d values, got %d", models.ErrMalformedInput, kind, want, got)
}

func labelNames(p *models.Project) []string {
	names := make([]string, len(p.Labels))
	for i, l := range p.Labels {
		names[i] = l.Name
	}
	return names
}

func labelColors(p *models.Project) map[string]string {
	colors := make(map[string]string, len(p.Labels))
	for _, l := range p.Labels {
		colors[l.Name] = l.Color
	}
	return colors
}

func projectKinds(p *models.Project) []string {
	kinds := map[string]bool{}
	for _, e := range p.Images {
		for _, a := range e.Annotations {
			kinds[string(a.Kind())] = true
		}
	}
	return sortedKeys(kinds)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func relativeTo(folder, path string) string {
	if folder == "" {
		return ""
	}
	prefix := folder
	if !strings.HasSuffix(prefix, "/") && !strings.HasSuffix(prefix, "\\") {
		prefix += "/"
	}
	if strings.HasPrefix(path, prefix) {
		return path[len(prefix):]
	}
	return ""
}

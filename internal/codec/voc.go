package codec

import (
	"encoding/xml"
	"math"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
)

type vocSource struct {
	Database string `xml:"database"`
}

type vocSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type vocBndbox struct {
	Xmin int `xml:"xmin"`
	Ymin int `xml:"ymin"`
	Xmax int `xml:"xmax"`
	Ymax int `xml:"ymax"`
}

type vocPt struct {
	X int `xml:"x"`
	Y int `xml:"y"`
}

type vocPolygon struct {
	Points []vocPt `xml:"pt"`
}

type vocObject struct {
	Name      string      `xml:"name"`
	Pose      string      `xml:"pose"`
	Truncated int         `xml:"truncated"`
	Difficult int         `xml:"difficult"`
	Bndbox    vocBndbox   `xml:"bndbox"`
	Polygon   *vocPolygon `xml:"polygon,omitempty"`
}

type vocAnnotation struct {
	XMLName   xml.Name    `xml:"annotation"`
	Folder    string      `xml:"folder"`
	Filename  string      `xml:"filename"`
	Path      string      `xml:"path"`
	Source    vocSource   `xml:"source"`
	Size      vocSize     `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []vocObject `xml:"object"`
}

// VOCEncoder writes Pascal VOC XML, one file per annotated image.
// VOC only carries boxes, so every kind is approximated: circles by
// their bounding square, points by a 2x2 box, polygons by their
// vertex extremes (with the ring preserved in a polygon element).
// There is no VOC import.
type VOCEncoder struct{}

func (v *VOCEncoder) Name() string { return "voc" }

func (v *VOCEncoder) Encode(p *models.Project, opts Options) ([]File, error) {
	database := opts.VOCDatabase
	if database == "" {
		database = "Unknown"
	}
	var files []File
	used := map[string]int{}
	for _, e := range p.Images {
		if len(e.Annotations) == 0 {
			continue
		}
		doc := vocAnnotation{
			Folder:    baseName(p.FolderPath),
			Filename:  e.Name,
			Path:      e.Path,
			Source:    vocSource{Database: database},
			Size:      vocSize{Width: e.Width, Height: e.Height, Depth: 3},
			Segmented: 0,
			Objects:   make([]vocObject, 0, len(e.Annotations)),
		}
		for _, a := range e.Annotations {
			doc.Objects = append(doc.Objects, vocObjectFor(a, e.Width, e.Height))
		}
		data, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		out := append([]byte(xml.Header), data...)
		out = append(out, '\n')
		files = append(files, File{Name: uniqueName(used, stem(e.Name)) + ".xml", Data: out})
	}
	return files, nil
}

func vocObjectFor(a *models.Annotation, imgW, imgH int) vocObject {
	name := a.Label
	if name == "" {
		name = cocoUnlabeled
	}
	obj := vocObject{
		Name:      name,
		Pose:      "Unspecified",
		Truncated: 0,
		Difficult: 0,
	}

	var b geometry.Rect
	switch a.Geometry.Kind {
	case models.KindPoint:
		p := *a.Geometry.Point
		b = geometry.Rect{
			Min: geometry.Point{X: p.X - 1, Y: p.Y - 1},
			Max: geometry.Point{X: p.X + 1, Y: p.Y + 1},
		}
	case models.KindRectangle:
		b = *a.Geometry.Rect
	case models.KindCircle:
		b = a.Geometry.Circle.Bounds()
	case models.KindPolygon:
		b = geometry.PolygonBounds(a.Geometry.Polygon)
		pts := make([]vocPt, len(a.Geometry.Polygon))
		for i, v := range a.Geometry.Polygon {
			pts[i] = vocPt{X: clampRound(v.X, imgW), Y: clampRound(v.Y, imgH)}
		}
		obj.Polygon = &vocPolygon{Points: pts}
	}

	obj.Bndbox = vocBndbox{
		Xmin: clampRound(b.Min.X, imgW),
		Ymin: clampRound(b.Min.Y, imgH),
		Xmax: clampRound(b.Max.X, imgW),
		Ymax: clampRound(b.Max.Y, imgH),
	}
	return obj
}

// clampRound rounds to int and clamps to [0, limit] when the image
// dimension is known.
func clampRound(v float64, limit int) int {
	n := int(math.Round(v))
	if n < 0 {
		n = 0
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

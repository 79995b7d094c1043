package codec

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
)

var fixedTime = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

func sampleProject() *models.Project {
	return &models.Project{
		FolderPath: "/data/imgs",
		Labels: []models.Label{
			{Name: "car", Color: "#FF0000"},
			{Name: "tree", Color: "#00FF00"},
		},
		Images: []*models.ImageEntry{
			{
				Path: "/data/imgs/a.jpg", Name: "a.jpg", Width: 640, Height: 480,
				Annotations: []*models.Annotation{
					{
						ID:       "a1",
						Geometry: models.RectGeometry(geometry.Point{X: 10, Y: 10}, geometry.Point{X: 100, Y: 100}),
						Label:    "car",
						Color:    "#FF0000",
					},
					{
						ID:       "a2",
						Geometry: models.PointGeometry(geometry.Point{X: 320, Y: 240}),
						Color:    "#FF0000",
					},
					{
						ID:       "a3",
						Geometry: models.CircleGeometry(geometry.Point{X: 200, Y: 200}, 50),
						Label:    "tree",
						Color:    "#00FF00",
					},
					{
						ID: "a4",
						Geometry: models.PolygonGeometry([]geometry.Point{
							{X: 400, Y: 100}, {X: 500, Y: 100}, {X: 450, Y: 200},
						}),
						Label: "car",
						Color: "#ABCDEF",
					},
				},
			},
			{
				Path: "/data/imgs/sub/b.png", Name: "b.png",
				Annotations: []*models.Annotation{},
			},
		},
	}
}

func sampleOptions() Options {
	opts := DefaultOptions()
	opts.Meta = Meta{ID: "sess-1", Name: "street set", SavedAt: fixedTime}
	return opts
}

func TestContainerRoundTrip(t *testing.T) {
	p := sampleProject()
	n := &NativeCodec{}

	files, err := n.Encode(p, sampleOptions())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(files) != 1 || files[0].Name != "project.json" {
		t.Fatalf("files = %+v", files)
	}

	got, err := n.Decode(files[0].Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Project, p) {
		t.Errorf("project did not round-trip\ngot:  %+v\nwant: %+v", got.Project, p)
	}
	if got.Meta.ID != "sess-1" || got.Meta.Name != "street set" || !got.Meta.SavedAt.Equal(fixedTime) {
		t.Errorf("meta = %+v", got.Meta)
	}
}

func TestPerImageDocument(t *testing.T) {
	p := sampleProject()
	n := &NativeCodec{}

	files, err := n.Encode(p, func() Options {
		o := sampleOptions()
		o.PerImage = true
		return o
	}())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// The annotation-less image produces no file.
	if len(files) != 1 || files[0].Name != "a.json" {
		t.Fatalf("files = %+v", files)
	}

	var doc nativeImage
	if err := json.Unmarshal(files[0].Data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.ImagePath != "/data/imgs/a.jpg" || doc.ImageName != "a.jpg" {
		t.Errorf("identity = %q %q", doc.ImagePath, doc.ImageName)
	}
	if doc.TotalAnnotations != 4 {
		t.Errorf("total = %d", doc.TotalAnnotations)
	}
	first := doc.Annotations[0]
	if first.Type != "Rectangle" || first.Label != "car" || first.Color != "#FF0000" {
		t.Errorf("first = %+v", first)
	}
	if !reflect.DeepEqual(first.Coordinates, []float64{10, 10, 100, 100}) {
		t.Errorf("coordinates = %v", first.Coordinates)
	}
	if doc.LabelColors["car"] != "#FF0000" {
		t.Errorf("label_colors = %v", doc.LabelColors)
	}
	want := []string{"Circle", "Point", "Polygon", "Rectangle"}
	if !reflect.DeepEqual(doc.AnnotationTypes, want) {
		t.Errorf("annotation_types = %v", doc.AnnotationTypes)
	}

	// The standalone document decodes into a one-image fragment.
	got, err := n.Decode(files[0].Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Project.Images) != 1 || len(got.Project.Images[0].Annotations) != 4 {
		t.Errorf("fragment = %+v", got.Project)
	}
	if len(got.Project.Labels) != 2 {
		t.Errorf("labels = %+v", got.Project.Labels)
	}
}

func TestCircleCoordinateForms(t *testing.T) {
	g, err := geometryFromFlat("Circle", []float64{50, 50, 10})
	if err != nil {
		t.Fatalf("3-value form: %v", err)
	}
	if g.Circle.Center.X != 50 || g.Circle.Radius != 10 {
		t.Errorf("circle = %+v", g.Circle)
	}

	g, err = geometryFromFlat("Circle", []float64{40, 40, 60, 60})
	if err != nil {
		t.Fatalf("legacy box form: %v", err)
	}
	if g.Circle.Center.X != 50 || g.Circle.Center.Y != 50 || g.Circle.Radius != 10 {
		t.Errorf("legacy circle = %+v", g.Circle)
	}

	if _, err := geometryFromFlat("Circle", []float64{40, 40, 60, 61}); !errors.Is(err, models.ErrMalformedInput) {
		t.Errorf("non-square box: %v", err)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	n := &NativeCodec{}
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown structure", `{"hello": 1}`},
		{"unknown type", `{"image_path":"a.jpg","annotations":[{"type":"Ellipse","coordinates":[1,2],"color":"#FF0000"}]}`},
		{"short point", `{"image_path":"a.jpg","annotations":[{"type":"Point","coordinates":[1],"color":"#FF0000"}]}`},
		{"odd polygon", `{"image_path":"a.jpg","annotations":[{"type":"Polygon","coordinates":[1,2,3,4,5],"color":"#FF0000"}]}`},
		{"bad color", `{"image_path":"a.jpg","annotations":[{"type":"Point","coordinates":[1,2],"color":"red"}]}`},
		{"duplicate label", `{"image_path":"a.jpg","annotations":[],"labels":["x","x"]}`},
	}
	for _, tc := range cases {
		if _, err := n.Decode([]byte(tc.data)); !errors.Is(err, models.ErrMalformedInput) {
			t.Errorf("%s: err = %v", tc.name, err)
		}
	}
}

func TestDecodeFillsGaps(t *testing.T) {
	n := &NativeCodec{}
	data := `{
		"image_path": "a.jpg",
		"annotations": [
			{"type": "Point", "coordinates": [5, 5], "label": "dog", "color": "#112233"},
			{"type": "Point", "coordinates": [9, 9]}
		],
		"labels": []
	}`
	got, err := n.Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	anns := got.Project.Images[0].Annotations
	if anns[0].ID == "" || anns[1].ID == "" || anns[0].ID == anns[1].ID {
		t.Error("missing ids not generated uniquely")
	}
	// The unlisted label was healed into the label set.
	if l, _ := got.Project.FindLabel("dog"); l == nil || l.Color != "#112233" {
		t.Errorf("labels = %+v", got.Project.Labels)
	}
	// Colorless annotations resolve to the default.
	if anns[1].Color != models.DefaultColor {
		t.Errorf("color = %q", anns[1].Color)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := sampleProject()
	s := &SnapshotCodec{}

	files, err := s.Encode(p, sampleOptions())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if files[0].Name != "project.snapshot" {
		t.Fatalf("name = %q", files[0].Name)
	}

	got, err := s.Decode(files[0].Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Project, p) {
		t.Error("snapshot did not round-trip")
	}

	if _, err := s.Decode([]byte("junk")); !errors.Is(err, models.ErrMalformedInput) {
		t.Errorf("junk: %v", err)
	}
}

func TestFindDecoder(t *testing.T) {
	r := NewRegistry()
	p := sampleProject()

	native, _ := (&NativeCodec{}).Encode(p, sampleOptions())
	coco, _ := (&COCOCodec{}).Encode(p, sampleOptions())
	snap, _ := (&SnapshotCodec{}).Encode(p, sampleOptions())

	cases := []struct {
		filename string
		data     []byte
		want     string
	}{
		{"project.json", native[0].Data, "native"},
		{"annotations_coco.json", coco[0].Data, "coco"},
		{"project.snapshot", snap[0].Data, "snapshot"},
	}
	for _, tc := range cases {
		d, err := r.FindDecoder(tc.filename, tc.data)
		if err != nil {
			t.Errorf("%s: %v", tc.filename, err)
			continue
		}
		if d.Name() != tc.want {
			t.Errorf("%s: decoder = %s, want %s", tc.filename, d.Name(), tc.want)
		}
	}

	if _, err := r.FindDecoder("notes.txt", []byte("hello")); !errors.Is(err, models.ErrMalformedInput) {
		t.Errorf("unrecognized: %v", err)
	}
}

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()

	if e, err := r.Encoder("VOC"); err != nil || e.Name() != "voc" {
		t.Errorf("Encoder(VOC) = %v, %v", e, err)
	}
	if _, err := r.Encoder("yolo"); err == nil {
		t.Error("unknown encoder accepted")
	}
	if _, err := r.Decoder("voc"); err == nil {
		t.Error("voc should not decode")
	}

	names := r.EncoderNames()
	want := []string{"native", "coco", "voc", "snapshot"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("encoders = %v", names)
	}
}

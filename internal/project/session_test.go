package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/image-annotator/backend/internal/annotation"
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/history"
	"github.com/image-annotator/backend/internal/hittest"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/scanner"
	"github.com/image-annotator/backend/internal/viewport"
)

const testImage = "/pics/a.png"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), 0, Settings{})
	t.Cleanup(func() {
		for _, info := range m.List() {
			m.Close(info.ID)
		}
	})
	return m
}

func sessionWithImage(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Create("test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.addScannedImage(scanner.FileMeta{Path: testImage, Name: "a.png", Width: 640, Height: 480}); err != nil {
		t.Fatalf("addScannedImage: %v", err)
	}
	return s
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return sessionWithImage(t, newTestManager(t))
}

func rect(x1, y1, x2, y2 float64) models.Geometry {
	return models.RectGeometry(geometry.Point{X: x1, Y: y1}, geometry.Point{X: x2, Y: y2})
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

func TestCreateAnnotationRecordsOneCommand(t *testing.T) {
	s := newTestSession(t)

	ann, err := s.CreateAnnotation(testImage, rect(10, 10, 100, 100), "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}
	if ann.ID == "" {
		t.Error("Expected a generated id")
	}
	if ann.Color != models.DefaultColor {
		t.Errorf("Expected default color %s, got %s", models.DefaultColor, ann.Color)
	}
	if !s.Dirty() {
		t.Error("Expected the session to be dirty after a mutation")
	}

	hs := s.HistoryState()
	if !hs.CanUndo || hs.CanRedo {
		t.Errorf("Expected canUndo=true canRedo=false, got %v/%v", hs.CanUndo, hs.CanRedo)
	}
	if !reflect.DeepEqual(hs.Undo, []string{"create rectangle"}) {
		t.Errorf("Expected undo stack [create rectangle], got %v", hs.Undo)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	s := newTestSession(t)
	base := s.Project()

	if _, err := s.AddLabel("car", "#00FF00"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	ann, err := s.CreateAnnotation(testImage, rect(10, 10, 100, 100), "car", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}
	if _, err := s.UpdateGeometry(testImage, ann.ID, rect(20, 20, 110, 110)); err != nil {
		t.Fatalf("UpdateGeometry: %v", err)
	}
	if err := s.SetLabel(testImage, ann.ID, ""); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	if err := s.DeleteAnnotation(testImage, ann.ID); err != nil {
		t.Fatalf("DeleteAnnotation: %v", err)
	}
	final := s.Project()

	var names []string
	for {
		name, err := s.Undo()
		if errors.Is(err, history.ErrNothingToUndo) {
			break
		}
		if err != nil {
			t.Fatalf("Undo %d: %v", len(names), err)
		}
		names = append(names, name)
	}
	if len(names) != 5 {
		t.Fatalf("Expected 5 undos, got %d: %v", len(names), names)
	}
	if !reflect.DeepEqual(s.Project(), base) {
		t.Fatal("Undoing everything did not restore the initial state")
	}

	for range names {
		if _, err := s.Redo(); err != nil {
			t.Fatalf("Redo: %v", err)
		}
	}
	if !reflect.DeepEqual(s.Project(), final) {
		t.Fatal("Redoing everything did not restore the final state")
	}
	if _, err := s.Redo(); !errors.Is(err, history.ErrNothingToRedo) {
		t.Fatalf("Expected ErrNothingToRedo, got %v", err)
	}
}

func TestNoOpMutationsRecordNothing(t *testing.T) {
	s := newTestSession(t)
	ann, err := s.CreateAnnotation(testImage, rect(10, 10, 100, 100), "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	if _, err := s.UpdateGeometry(testImage, ann.ID, rect(10, 10, 100, 100)); err != nil {
		t.Fatalf("UpdateGeometry: %v", err)
	}
	if err := s.SetLabel(testImage, ann.ID, ""); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	if err := s.SetColor(testImage, ann.ID, ann.Color); err != nil {
		t.Fatalf("SetColor: %v", err)
	}

	if undo := s.HistoryState().Undo; len(undo) != 1 {
		t.Errorf("Expected only the create on the stack, got %v", undo)
	}
}

func TestVertexEditVerbs(t *testing.T) {
	s := newTestSession(t)
	poly := models.PolygonGeometry([]geometry.Point{
		{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100},
	})
	ann, err := s.CreateAnnotation(testImage, poly, "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	if _, err := s.MoveVertex(testImage, ann.ID, 0, geometry.Point{X: 5, Y: 5}); err != nil {
		t.Fatalf("MoveVertex: %v", err)
	}
	if _, err := s.InsertVertex(testImage, ann.ID, 1, geometry.Point{X: 100, Y: 50}); err != nil {
		t.Fatalf("InsertVertex: %v", err)
	}
	if _, err := s.DeleteVertex(testImage, ann.ID, 4); err != nil {
		t.Fatalf("DeleteVertex: %v", err)
	}
	if _, err := s.TranslateAnnotation(testImage, ann.ID, geometry.Point{X: 10, Y: 20}); err != nil {
		t.Fatalf("TranslateAnnotation: %v", err)
	}

	want := []string{"create polygon", "move vertex", "insert vertex", "delete vertex", "move annotation"}
	if got := s.HistoryState().Undo; !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected undo stack %v, got %v", want, got)
	}

	got, err := s.Annotation(testImage, ann.ID)
	if err != nil {
		t.Fatalf("Annotation: %v", err)
	}
	wantVerts := []geometry.Point{
		{X: 15, Y: 25}, {X: 110, Y: 20}, {X: 110, Y: 70}, {X: 110, Y: 120},
	}
	if !reflect.DeepEqual(got.Geometry.Polygon, wantVerts) {
		t.Fatalf("Expected vertices %v, got %v", wantVerts, got.Geometry.Polygon)
	}

	for i := 0; i < len(want); i++ {
		if _, err := s.Undo(); err != nil {
			t.Fatalf("Undo %d: %v", i, err)
		}
	}
	got, _ = s.Annotation(testImage, ann.ID)
	if got != nil {
		t.Fatal("Expected the creation itself to be undone")
	}
}

func TestDeleteVertexOnTriangleRejected(t *testing.T) {
	s := newTestSession(t)
	tri := models.PolygonGeometry([]geometry.Point{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 10},
	})
	ann, err := s.CreateAnnotation(testImage, tri, "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	if _, err := s.DeleteVertex(testImage, ann.ID, 0); !errors.Is(err, models.ErrInvalidGeometry) {
		t.Fatalf("Expected ErrInvalidGeometry, got %v", err)
	}
	got, _ := s.Annotation(testImage, ann.ID)
	if !reflect.DeepEqual(got.Geometry, tri) {
		t.Error("Expected the triangle to be unchanged after the rejected delete")
	}
	if undo := s.HistoryState().Undo; len(undo) != 1 {
		t.Errorf("Expected only the create on the stack, got %v", undo)
	}
}

func TestApplyPaletteIsOneCompositeEntry(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.AddLabel("car", "#112233"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}

	p := &models.Palette{Name: "traffic", Labels: []models.PaletteLabel{
		{Name: "car", Color: "#FF0000"},
		{Name: "bus", Color: "#00FF00"},
		{Name: "bike", Color: "#0000FF"},
	}}
	n, err := s.ApplyPalette(p)
	if err != nil {
		t.Fatalf("ApplyPalette: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 labels added, got %d", n)
	}
	labels := s.Labels()
	if len(labels) != 3 {
		t.Fatalf("Expected 3 labels, got %d", len(labels))
	}
	if labels[0].Color != "#112233" {
		t.Errorf("Expected existing label to keep its color, got %s", labels[0].Color)
	}

	// Re-applying adds nothing and records nothing.
	if n, err := s.ApplyPalette(p); err != nil || n != 0 {
		t.Fatalf("Expected a no-op re-apply, got n=%d err=%v", n, err)
	}
	undo := s.HistoryState().Undo
	if len(undo) != 2 || undo[1] != "apply palette traffic" {
		t.Fatalf("Expected [add label, apply palette traffic], got %v", undo)
	}

	// One undo removes both palette labels together.
	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	labels = s.Labels()
	if len(labels) != 1 || labels[0].Name != "car" {
		t.Fatalf("Expected only the pre-existing label after undo, got %v", labels)
	}
}

func TestRemoveLabelGuards(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.AddLabel("car", "#00FF00"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	ann, err := s.CreateAnnotation(testImage, rect(1, 1, 2, 2), "car", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	if err := s.RemoveLabel("car", false); !errors.Is(err, annotation.ErrLabelInUse) {
		t.Fatalf("Expected ErrLabelInUse, got %v", err)
	}
	if err := s.RemoveLabel("car", true); err != nil {
		t.Fatalf("forced RemoveLabel: %v", err)
	}
	got, _ := s.Annotation(testImage, ann.ID)
	if got.Label != "" {
		t.Errorf("Expected the reference cleared, got %q", got.Label)
	}

	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	got, _ = s.Annotation(testImage, ann.ID)
	if got.Label != "car" {
		t.Errorf("Expected the reference restored by undo, got %q", got.Label)
	}
}

func TestHitTestZoomAndTolerances(t *testing.T) {
	s := newTestSession(t)
	ann, err := s.CreateAnnotation(testImage, rect(10, 10, 100, 100), "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	if _, err := s.HitTest(testImage, geometry.Point{X: 10, Y: 10}, 0, hittest.Tolerances{}); !errors.Is(err, viewport.ErrInvalidZoom) {
		t.Fatalf("Expected ErrInvalidZoom for zoom 0, got %v", err)
	}

	hit, err := s.HitTest(testImage, geometry.Point{X: 12, Y: 11}, 1.0, hittest.Tolerances{})
	if err != nil {
		t.Fatalf("HitTest: %v", err)
	}
	if hit == nil || hit.ID != ann.ID || hit.Part != hittest.PartVertex || hit.VertexIndex != 0 {
		t.Fatalf("Expected a hit on vertex 0, got %+v", hit)
	}

	hit, err = s.HitTest(testImage, geometry.Point{X: 500, Y: 400}, 1.0, hittest.Tolerances{})
	if err != nil {
		t.Fatalf("HitTest: %v", err)
	}
	if hit != nil {
		t.Fatalf("Expected a miss far from the annotation, got %+v", hit)
	}
}

func TestPreviewCommitCollapsesGesture(t *testing.T) {
	s := newTestSession(t)
	ann, err := s.CreateAnnotation(testImage, rect(10, 10, 100, 100), "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	if _, err := s.PreviewGeometry(testImage, ann.ID, rect(20, 20, 110, 110)); err != nil {
		t.Fatalf("PreviewGeometry: %v", err)
	}
	if _, err := s.PreviewGeometry(testImage, ann.ID, rect(30, 30, 120, 120)); err != nil {
		t.Fatalf("PreviewGeometry: %v", err)
	}

	got, _ := s.Annotation(testImage, ann.ID)
	if got.Geometry.Rect.Min.X != 30 {
		t.Fatalf("Expected the live geometry to follow previews, got %+v", got.Geometry.Rect)
	}
	if undo := s.HistoryState().Undo; len(undo) != 1 {
		t.Fatalf("Expected previews to stay off the stack, got %v", undo)
	}

	s.CommitGeometry("move annotation")
	undo := s.HistoryState().Undo
	if !reflect.DeepEqual(undo, []string{"create rectangle", "move annotation"}) {
		t.Fatalf("Expected one command for the whole gesture, got %v", undo)
	}

	// One undo returns to the pre-gesture geometry.
	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	got, _ = s.Annotation(testImage, ann.ID)
	if got.Geometry.Rect.Min.X != 10 {
		t.Fatalf("Expected the gesture undone in one step, got %+v", got.Geometry.Rect)
	}

	// Cancel restores the start without touching history.
	if _, err := s.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if _, err := s.PreviewGeometry(testImage, ann.ID, rect(50, 50, 60, 60)); err != nil {
		t.Fatalf("PreviewGeometry: %v", err)
	}
	if err := s.CancelGeometry(); err != nil {
		t.Fatalf("CancelGeometry: %v", err)
	}
	got, _ = s.Annotation(testImage, ann.ID)
	if got.Geometry.Rect.Min.X != 30 {
		t.Fatalf("Expected the canceled gesture rolled back, got %+v", got.Geometry.Rect)
	}

	// A gesture that went nowhere records nothing.
	if _, err := s.PreviewGeometry(testImage, ann.ID, rect(30, 30, 120, 120)); err != nil {
		t.Fatalf("PreviewGeometry: %v", err)
	}
	s.CommitGeometry("move annotation")
	if undo := s.HistoryState().Undo; len(undo) != 2 {
		t.Fatalf("Expected no command for an unchanged gesture, got %v", undo)
	}
}

func TestSaveAndReopen(t *testing.T) {
	m := newTestManager(t)
	s := sessionWithImage(t, m)
	if _, err := s.AddLabel("car", "#00FF00"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	if _, err := s.CreateAnnotation(testImage, rect(10, 10, 100, 100), "car", ""); err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	path := filepath.Join(t.TempDir(), "projects", "test.project.json")
	saved, err := s.Save(path)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved != path {
		t.Errorf("Expected save path %s, got %s", path, saved)
	}
	if s.Dirty() {
		t.Error("Expected a saved session to be clean")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected no temp file left behind")
	}

	want := s.Project()
	re, err := m.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if re.Name() != "test" {
		t.Errorf("Expected the saved name to survive, got %q", re.Name())
	}
	if re.Dirty() {
		t.Error("Expected a freshly opened session to be clean")
	}
	if !reflect.DeepEqual(re.Project(), want) {
		t.Fatal("Reopened project differs from the saved one")
	}

	// An empty path reuses the remembered one.
	if _, err := s.AddLabel("bus", ""); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	again, err := s.Save("")
	if err != nil {
		t.Fatalf("Save to remembered path: %v", err)
	}
	if again != path {
		t.Errorf("Expected the remembered path %s, got %s", path, again)
	}
}

func TestSaveWithoutPathRejected(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Save(""); !errors.Is(err, models.ErrMalformedInput) {
		t.Fatalf("Expected ErrMalformedInput, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	m := newTestManager(t)
	s := sessionWithImage(t, m)
	if _, err := s.CreateAnnotation(testImage, rect(10, 10, 100, 100), "", ""); err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !s.Dirty() {
		t.Error("Expected a snapshot to leave the dirty flag set")
	}

	re, err := m.OpenData("autosave.snapshot", data)
	if err != nil {
		t.Fatalf("OpenData: %v", err)
	}
	if !reflect.DeepEqual(re.Project(), s.Project()) {
		t.Fatal("Snapshot restore differs from the live project")
	}
}

func TestImportMergesByFileName(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.AddLabel("car", "#FF0000"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	if _, err := s.CreateAnnotation(testImage, rect(1, 1, 2, 2), "car", ""); err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	doc := `{
		"image_path": "/elsewhere/a.png",
		"image_name": "a.png",
		"annotations": [
			{"id": "imp-1", "type": "Rectangle", "coordinates": [5, 5, 50, 50], "label": "bus", "color": "#00FF00"}
		],
		"labels": ["bus", "car"],
		"label_colors": {"bus": "#00FF00", "car": "#123456"}
	}`
	sum, err := s.Import("a_annotations.json", []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	want := ImportSummary{Format: "native", LabelsAdded: 1, ImagesMatched: 1, ImagesAdded: 0, AnnotationsAdded: 1}
	if sum != want {
		t.Fatalf("Expected summary %+v, got %+v", want, sum)
	}

	// Merged by file name onto the session's own path.
	anns, err := s.Annotations(testImage)
	if err != nil {
		t.Fatalf("Annotations: %v", err)
	}
	if len(anns) != 2 || anns[1].ID != "imp-1" || anns[1].Label != "bus" {
		t.Fatalf("Expected the imported annotation appended, got %+v", anns)
	}

	// The project wins label color conflicts.
	for _, l := range s.Labels() {
		if l.Name == "car" && l.Color != "#FF0000" {
			t.Errorf("Expected car to keep #FF0000, got %s", l.Color)
		}
	}

	if hs := s.HistoryState(); hs.CanUndo || hs.CanRedo {
		t.Error("Expected import to clear history")
	}
	if !s.Dirty() {
		t.Error("Expected import to mark the session dirty")
	}
}

func TestImportUnknownImageAddsEntry(t *testing.T) {
	s := newTestSession(t)
	doc := `{
		"image_path": "/elsewhere/new.png",
		"image_name": "new.png",
		"annotations": [
			{"type": "Point", "coordinates": [3, 4], "color": "#AABBCC"}
		],
		"labels": [],
		"label_colors": {}
	}`
	sum, err := s.Import("new_annotations.json", []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sum.ImagesAdded != 1 || sum.ImagesMatched != 0 {
		t.Fatalf("Expected one new image, got %+v", sum)
	}
	anns, err := s.Annotations("/elsewhere/new.png")
	if err != nil {
		t.Fatalf("Annotations: %v", err)
	}
	if len(anns) != 1 || anns[0].ID == "" {
		t.Fatalf("Expected one imported annotation with a generated id, got %+v", anns)
	}
}

func TestImportRegeneratesCollidingIDs(t *testing.T) {
	s := newTestSession(t)
	ann, err := s.CreateAnnotation(testImage, rect(1, 1, 2, 2), "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	doc := fmt.Sprintf(`{
		"image_path": "/elsewhere/a.png",
		"image_name": "a.png",
		"annotations": [
			{"id": %q, "type": "Rectangle", "coordinates": [5, 5, 50, 50], "color": "#00FF00"}
		],
		"labels": [],
		"label_colors": {}
	}`, ann.ID)
	sum, err := s.Import("a_annotations.json", []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sum.AnnotationsAdded != 1 {
		t.Fatalf("Expected one annotation added, got %+v", sum)
	}
	anns, _ := s.Annotations(testImage)
	if len(anns) != 2 {
		t.Fatalf("Expected 2 annotations, got %d", len(anns))
	}
	if anns[1].ID == ann.ID || anns[1].ID == "" {
		t.Errorf("Expected a fresh id for the colliding import, got %q", anns[1].ID)
	}
}

func TestExportProbesMissingDimensions(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create("probe")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	path := writePNG(t, t.TempDir(), "real.png", 77, 33)
	if err := s.addScannedImage(scanner.FileMeta{Path: path, Name: "real.png"}); err != nil {
		t.Fatalf("addScannedImage: %v", err)
	}

	files, err := s.Export("coco", false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected one COCO file, got %d", len(files))
	}

	var out struct {
		Images []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"images"`
	}
	if err := json.Unmarshal(files[0].Data, &out); err != nil {
		t.Fatalf("Unmarshal export: %v", err)
	}
	if len(out.Images) != 1 || out.Images[0].Width != 77 || out.Images[0].Height != 33 {
		t.Fatalf("Expected probed dimensions 77x33, got %+v", out.Images)
	}

	e, err := s.ImageEntry(path)
	if err != nil {
		t.Fatalf("ImageEntry: %v", err)
	}
	if e.Width != 77 || e.Height != 33 {
		t.Errorf("Expected the model refreshed to 77x33, got %dx%d", e.Width, e.Height)
	}
}

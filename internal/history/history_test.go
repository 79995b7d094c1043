package history

import (
	"errors"
	"reflect"
	"testing"

	"github.com/image-annotator/backend/internal/annotation"
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
)

const testImage = "/data/imgs/a.jpg"

func newModel(t *testing.T) *annotation.Model {
	t.Helper()
	m := annotation.NewModel("/data/imgs", "#FF0000")
	m.EnsureImage(testImage, "a.jpg", 640, 480)
	return m
}

func rect(x1, y1, x2, y2 float64) models.Geometry {
	return models.RectGeometry(geometry.Point{X: x1, Y: y1}, geometry.Point{X: x2, Y: y2})
}

// pushCreate mimics the session flow: mutate the model, then record
// the delta.
func pushCreate(t *testing.T, m *annotation.Model, h *History, g models.Geometry) *models.Annotation {
	t.Helper()
	ann, err := m.CreateAnnotation(testImage, g, "", "")
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}
	e, _ := m.Image(testImage)
	h.Push(&Create{ImagePath: testImage, Ann: ann.Clone(), Index: len(e.Annotations) - 1})
	return ann
}

func TestUndoRedoRestoresExactState(t *testing.T) {
	m := newModel(t)
	h := New(DefaultDepth)

	snapshots := []*models.Project{m.Project().Clone()}

	ann := pushCreate(t, m, h, rect(10, 10, 100, 100))
	snapshots = append(snapshots, m.Project().Clone())

	old, err := m.SetGeometry(testImage, ann.ID, rect(20, 20, 110, 110))
	if err != nil {
		t.Fatalf("SetGeometry: %v", err)
	}
	h.Push(&SetGeometry{ImagePath: testImage, ID: ann.ID, Old: old, New: rect(20, 20, 110, 110), Verb: "move"})
	snapshots = append(snapshots, m.Project().Clone())

	removed, idx, err := m.DeleteAnnotation(testImage, ann.ID)
	if err != nil {
		t.Fatalf("DeleteAnnotation: %v", err)
	}
	h.Push(&Delete{ImagePath: testImage, Ann: removed.Clone(), Index: idx})
	snapshots = append(snapshots, m.Project().Clone())

	// Walk all the way back, checking each restored state.
	for i := len(snapshots) - 2; i >= 0; i-- {
		if _, err := h.Undo(m); err != nil {
			t.Fatalf("Undo to state %d: %v", i, err)
		}
		if !reflect.DeepEqual(m.Project(), snapshots[i]) {
			t.Fatalf("state %d not restored by undo", i)
		}
	}
	if _, err := h.Undo(m); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("exhausted undo: %v", err)
	}

	// And forward again.
	for i := 1; i < len(snapshots); i++ {
		if _, err := h.Redo(m); err != nil {
			t.Fatalf("Redo to state %d: %v", i, err)
		}
		if !reflect.DeepEqual(m.Project(), snapshots[i]) {
			t.Fatalf("state %d not restored by redo", i)
		}
	}
	if _, err := h.Redo(m); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("exhausted redo: %v", err)
	}
}

func TestDepthEvictsOldest(t *testing.T) {
	m := newModel(t)
	h := New(3)

	for i := 0; i < 4; i++ {
		pushCreate(t, m, h, rect(float64(i), 0, float64(i)+5, 5))
	}

	undone := 0
	for {
		if _, err := h.Undo(m); err != nil {
			break
		}
		undone++
	}
	if undone != 3 {
		t.Fatalf("undone = %d, want 3", undone)
	}
	// The first create survived eviction and is beyond reach.
	e, _ := m.Image(testImage)
	if len(e.Annotations) != 1 {
		t.Fatalf("annotations left = %d, want the evicted one", len(e.Annotations))
	}
}

func TestPushClearsRedo(t *testing.T) {
	m := newModel(t)
	h := New(DefaultDepth)

	pushCreate(t, m, h, rect(0, 0, 10, 10))
	if _, err := h.Undo(m); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !h.CanRedo() {
		t.Fatal("expected redo available")
	}

	pushCreate(t, m, h, rect(5, 5, 15, 15))
	if h.CanRedo() {
		t.Fatal("push did not clear redo")
	}
	if _, err := h.Redo(m); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("Redo: %v", err)
	}
}

func TestRemoveLabelUndoRestoresRefs(t *testing.T) {
	m := newModel(t)
	h := New(DefaultDepth)
	m.AddLabel("car", "#00FF00")
	ann, _ := m.CreateAnnotation(testImage, rect(0, 0, 10, 10), "car", "")

	removed, idx, refs, err := m.RemoveLabel("car", true)
	if err != nil {
		t.Fatalf("RemoveLabel: %v", err)
	}
	h.Push(&RemoveLabel{Label: removed, Index: idx, Refs: refs})

	if _, err := h.Undo(m); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if l, i := m.Project().FindLabel("car"); l == nil || i != 0 {
		t.Fatal("label not restored at index")
	}
	got, _ := m.Annotation(testImage, ann.ID)
	if got.Label != "car" {
		t.Errorf("ref = %q", got.Label)
	}

	if _, err := h.Redo(m); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	got, _ = m.Annotation(testImage, ann.ID)
	if got.Label != "" {
		t.Errorf("ref after redo = %q", got.Label)
	}
}

func TestRecolorLabelRevertSparesOverrides(t *testing.T) {
	m := newModel(t)
	h := New(DefaultDepth)
	m.AddLabel("car", "#00FF00")
	follow, _ := m.CreateAnnotation(testImage, rect(0, 0, 10, 10), "car", "")
	override, _ := m.CreateAnnotation(testImage, rect(1, 1, 2, 2), "car", "#0000FF")

	// Recolor to the override's color, then undo: the override must
	// keep its color rather than be swept into the revert.
	old, refs, err := m.RecolorLabel("car", "#0000FF")
	if err != nil {
		t.Fatalf("RecolorLabel: %v", err)
	}
	h.Push(&RecolorLabel{Label: "car", Old: old, New: "#0000FF", Refs: refs})

	if _, err := h.Undo(m); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	f, _ := m.Annotation(testImage, follow.ID)
	o, _ := m.Annotation(testImage, override.ID)
	if f.Color != "#00FF00" {
		t.Errorf("follower = %q", f.Color)
	}
	if o.Color != "#0000FF" {
		t.Errorf("override = %q", o.Color)
	}
	if l, _ := m.Project().FindLabel("car"); l.Color != "#00FF00" {
		t.Errorf("label = %q", l.Color)
	}
}

func TestCompositeRevertsInReverse(t *testing.T) {
	m := newModel(t)
	h := New(DefaultDepth)
	a1 := pushCreate(t, m, h, rect(0, 0, 10, 10))
	a2 := pushCreate(t, m, h, rect(5, 5, 15, 15))

	// Clear the image as one history entry.
	var sub []Command
	for _, id := range []string{a1.ID, a2.ID} {
		removed, idx, err := m.DeleteAnnotation(testImage, id)
		if err != nil {
			t.Fatalf("DeleteAnnotation: %v", err)
		}
		sub = append(sub, &Delete{ImagePath: testImage, Ann: removed.Clone(), Index: idx})
	}
	h.Push(&Composite{Cmds: sub, Label: "clear annotations"})

	if _, err := h.Undo(m); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	e, _ := m.Image(testImage)
	if len(e.Annotations) != 2 || e.Annotations[0].ID != a1.ID || e.Annotations[1].ID != a2.ID {
		t.Fatal("composite undo did not restore z-order")
	}

	if _, err := h.Redo(m); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	e, _ = m.Image(testImage)
	if len(e.Annotations) != 0 {
		t.Fatal("composite redo did not clear")
	}
}

func TestNames(t *testing.T) {
	m := newModel(t)
	h := New(DefaultDepth)
	pushCreate(t, m, h, rect(0, 0, 10, 10))
	pushCreate(t, m, h, models.PolygonGeometry([]geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}))
	h.Undo(m)

	undo, redo := h.Names()
	if len(undo) != 1 || undo[0] != "create rectangle" {
		t.Errorf("undo = %v", undo)
	}
	if len(redo) != 1 || redo[0] != "create polygon" {
		t.Errorf("redo = %v", redo)
	}
}

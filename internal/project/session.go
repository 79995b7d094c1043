// Package project owns the editor sessions. Each session pairs an
// annotation model with its bounded undo history and its image
// catalog, and serializes every core call behind one mutex. The
// manager bounds how many sessions are open at once and expires idle
// ones.
package project

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/image-annotator/backend/internal/annotation"
	"github.com/image-annotator/backend/internal/catalog"
	"github.com/image-annotator/backend/internal/codec"
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/history"
	"github.com/image-annotator/backend/internal/hittest"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/scanner"
)

// Session is one open annotation project. The model, history, dirty
// flag, and save path are guarded by mu; id, name, catalog, registry,
// and settings never change after construction. Methods hand out
// clones, so callers can marshal results without holding the lock.
type Session struct {
	mu sync.Mutex

	id   string
	name string

	model    *annotation.Model
	history  *history.History
	catalog  *catalog.Catalog
	registry *codec.Registry
	settings Settings

	savePath   string
	dirty      bool
	drag       *drag
	createdAt  time.Time
	lastAccess time.Time
}

// drag tracks an in-flight geometry gesture previewed over the
// websocket. The starting geometry is kept so the whole gesture
// collapses into a single history command on commit.
type drag struct {
	imagePath string
	id        string
	orig      models.Geometry
}

func newSession(id, name string, model *annotation.Model, cat *catalog.Catalog, reg *codec.Registry, st Settings) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		name:       name,
		model:      model,
		history:    history.New(st.HistoryDepth),
		catalog:    cat,
		registry:   reg,
		settings:   st,
		createdAt:  now,
		lastAccess: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Name returns the session's display name.
func (s *Session) Name() string { return s.name }

// Info returns the API-facing session summary.
func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.model.Project()
	return models.SessionInfo{
		ID:              s.id,
		Name:            s.name,
		FolderPath:      p.FolderPath,
		SavePath:        s.savePath,
		ImageCount:      len(p.Images),
		AnnotationCount: p.AnnotationTotal(),
		LabelCount:      len(p.Labels),
		Dirty:           s.dirty,
		CreatedAt:       s.createdAt.UnixMilli(),
		LastAccess:      s.lastAccess.UnixMilli(),
	}
}

// Touch refreshes the last-access timestamp used by idle expiry.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// Dirty reports whether the session has unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// LastAccess returns the time of the most recent API touch.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) close() {
	if err := s.catalog.Close(); err != nil {
		fmt.Printf("[Session %s] catalog close: %v\n", s.id[:8], err)
	}
}

// addScannedImage is the scan sink: it registers the image on the
// model and appends the catalog row. Scanned entries are reproducible
// from the folder, so they do not mark the session dirty.
func (s *Session) addScannedImage(meta scanner.FileMeta) error {
	s.mu.Lock()
	s.model.EnsureImage(meta.Path, meta.Name, meta.Width, meta.Height)
	s.mu.Unlock()
	s.catalog.Add(catalog.Row{
		Path:       meta.Path,
		Name:       meta.Name,
		RelPath:    meta.RelPath,
		Width:      meta.Width,
		Height:     meta.Height,
		SizeBytes:  meta.SizeBytes,
		ModifiedAt: meta.ModifiedAt,
	})
	return s.catalog.LastError()
}

func (s *Session) finishScan() error {
	return s.catalog.Finalize()
}

// Project returns a deep copy of the current project state.
func (s *Session) Project() *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Project().Clone()
}

// Annotations returns the z-ordered annotation list of an image.
func (s *Session) Annotations(imagePath string) ([]*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.model.Image(imagePath)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Annotation, len(e.Annotations))
	for i, a := range e.Annotations {
		out[i] = a.Clone()
	}
	return out, nil
}

// Annotation returns one annotation by image path and id.
func (s *Session) Annotation(imagePath, id string) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// ImageEntry returns an image entry with its annotations.
func (s *Session) ImageEntry(imagePath string) (*models.ImageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.model.Image(imagePath)
	if err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// Labels returns the label set in creation order.
func (s *Session) Labels() []models.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.model.Labels()
	out := make([]models.Label, len(ls))
	copy(out, ls)
	return out
}

// ListImages pages through the scanned image catalog. The catalog has
// its own query limiter, so the session lock is not held.
func (s *Session) ListImages(ctx context.Context, params catalog.ListParams) ([]catalog.Row, int, error) {
	return s.catalog.List(ctx, params)
}

// FindImage returns the catalog row for one scanned file.
func (s *Session) FindImage(ctx context.Context, path string) (catalog.Row, error) {
	return s.catalog.Find(ctx, path)
}

// Statistics combines annotation counts with folder aggregates.
type Statistics struct {
	annotation.Statistics
	Folder catalog.Summary `json:"folder"`
}

// Statistics computes the aggregate counts for the session.
func (s *Session) Statistics(ctx context.Context) (Statistics, error) {
	s.mu.Lock()
	core := s.model.Statistics()
	s.mu.Unlock()
	sum, err := s.catalog.Aggregate(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{Statistics: core, Folder: sum}, nil
}

// HitTest resolves an image-space pointer position against an image's
// annotations. Zero tolerance fields fall back to the session
// defaults. A nil hit with nil error means nothing was under the
// pointer.
func (s *Session) HitTest(imagePath string, p geometry.Point, zoom float64, tol hittest.Tolerances) (*hittest.Hit, error) {
	if err := s.settings.Limits.ValidateZoom(zoom); err != nil {
		return nil, err
	}
	if tol.VertexPx <= 0 {
		tol.VertexPx = s.settings.Tolerances.VertexPx
	}
	if tol.EdgePx <= 0 {
		tol.EdgePx = s.settings.Tolerances.EdgePx
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.model.Image(imagePath)
	if err != nil {
		return nil, err
	}
	return hittest.HitTest(e.Annotations, p, zoom, tol), nil
}

// CreateAnnotation validates and appends a new annotation, recording
// it as one undoable command.
func (s *Session) CreateAnnotation(imagePath string, g models.Geometry, label, color string) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ann, err := s.model.CreateAnnotation(imagePath, g, label, color)
	if err != nil {
		return nil, err
	}
	e, err := s.model.Image(imagePath)
	if err != nil {
		return nil, err
	}
	s.history.Push(&history.Create{ImagePath: imagePath, Ann: ann.Clone(), Index: len(e.Annotations) - 1})
	s.dirty = true
	return ann.Clone(), nil
}

// DeleteAnnotation removes an annotation, keeping it (and its z-order
// slot) on the undo stack.
func (s *Session) DeleteAnnotation(imagePath, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, idx, err := s.model.DeleteAnnotation(imagePath, id)
	if err != nil {
		return err
	}
	s.history.Push(&history.Delete{ImagePath: imagePath, Ann: removed, Index: idx})
	s.dirty = true
	return nil
}

// UpdateGeometry replaces an annotation's geometry. Setting the
// geometry it already has records nothing.
func (s *Session) UpdateGeometry(imagePath, id string, g models.Geometry) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyGeometryLocked(imagePath, id, g, "")
}

// MoveVertex drags one vertex (or handle) to a new image-space
// position.
func (s *Session) MoveVertex(imagePath, id string, index int, to geometry.Point) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return nil, err
	}
	g, err := hittest.MoveVertex(a.Geometry, index, to)
	if err != nil {
		return nil, err
	}
	return s.applyGeometryLocked(imagePath, id, g, "move vertex")
}

// InsertVertex splits a polygon edge with a new vertex.
func (s *Session) InsertVertex(imagePath, id string, edgeIndex int, at geometry.Point) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return nil, err
	}
	g, err := hittest.InsertVertex(a.Geometry, edgeIndex, at)
	if err != nil {
		return nil, err
	}
	return s.applyGeometryLocked(imagePath, id, g, "insert vertex")
}

// DeleteVertex removes a polygon vertex. Triangles reject the delete
// and stay unchanged.
func (s *Session) DeleteVertex(imagePath, id string, index int) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return nil, err
	}
	g, err := hittest.DeleteVertex(a.Geometry, index)
	if err != nil {
		return nil, err
	}
	return s.applyGeometryLocked(imagePath, id, g, "delete vertex")
}

// TranslateAnnotation moves a whole annotation by an image-space
// delta.
func (s *Session) TranslateAnnotation(imagePath, id string, delta geometry.Point) (*models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return nil, err
	}
	g, err := hittest.Translate(a.Geometry, delta)
	if err != nil {
		return nil, err
	}
	return s.applyGeometryLocked(imagePath, id, g, "move annotation")
}

func (s *Session) applyGeometryLocked(imagePath, id string, g models.Geometry, verb string) (*models.Annotation, error) {
	old, err := s.model.SetGeometry(imagePath, id, g)
	if err != nil {
		return nil, err
	}
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return nil, err
	}
	if !geometryEqual(old, a.Geometry) {
		s.history.Push(&history.SetGeometry{
			ImagePath: imagePath,
			ID:        id,
			Old:       old,
			New:       a.Geometry.Clone(),
			Verb:      verb,
		})
		s.dirty = true
	}
	return a.Clone(), nil
}

// SetLabel re-labels an annotation.
func (s *Session) SetLabel(imagePath, id, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := s.model.SetLabel(imagePath, id, label)
	if err != nil {
		return err
	}
	if old != label {
		s.history.Push(&history.SetLabel{ImagePath: imagePath, ID: id, Old: old, New: label})
		s.dirty = true
	}
	return nil
}

// SetColor overrides an annotation's display color. An empty color
// re-resolves from the label or the default.
func (s *Session) SetColor(imagePath, id, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := s.model.SetColor(imagePath, id, color)
	if err != nil {
		return err
	}
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return err
	}
	if old != a.Color {
		s.history.Push(&history.SetColor{ImagePath: imagePath, ID: id, Old: old, New: a.Color})
		s.dirty = true
	}
	return nil
}

// AddLabel appends a new label to the project's label set.
func (s *Session) AddLabel(name, color string) (models.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.model.AddLabel(name, color)
	if err != nil {
		return models.Label{}, err
	}
	s.history.Push(&history.AddLabel{Label: l, Index: len(s.model.Labels()) - 1})
	s.dirty = true
	return l, nil
}

// RemoveLabel deletes a label. With force, annotation references are
// cleared; without, a referenced label rejects with ErrLabelInUse.
func (s *Session) RemoveLabel(name string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, idx, refs, err := s.model.RemoveLabel(name, force)
	if err != nil {
		return err
	}
	s.history.Push(&history.RemoveLabel{Label: removed, Index: idx, Refs: refs})
	s.dirty = true
	return nil
}

// RenameLabel renames a label, rewriting every annotation reference.
func (s *Session) RenameLabel(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.model.RenameLabel(oldName, newName); err != nil {
		return err
	}
	if oldName != newName {
		s.history.Push(&history.RenameLabel{Old: oldName, New: newName})
		s.dirty = true
	}
	return nil
}

// RecolorLabel changes a label's color and cascades it to the
// annotations still wearing the old one.
func (s *Session) RecolorLabel(name, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, refs, err := s.model.RecolorLabel(name, color)
	if err != nil {
		return err
	}
	if old != color {
		s.history.Push(&history.RecolorLabel{Label: name, Old: old, New: color, Refs: refs})
		s.dirty = true
	}
	return nil
}

// ApplyPalette adds the palette's labels that the project does not
// have yet, as one composite history entry. Existing names keep their
// colors. Returns how many labels were added.
func (s *Session) ApplyPalette(p *models.Palette) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	have := make(map[string]bool)
	for _, l := range s.model.Labels() {
		have[l.Name] = true
	}
	var cmds []history.Command
	for _, pl := range p.Labels {
		if have[pl.Name] {
			continue
		}
		l, err := s.model.AddLabel(pl.Name, pl.Color)
		if err != nil {
			for i := len(cmds) - 1; i >= 0; i-- {
				cmds[i].Revert(s.model)
			}
			return 0, err
		}
		have[pl.Name] = true
		cmds = append(cmds, &history.AddLabel{Label: l, Index: len(s.model.Labels()) - 1})
	}
	if len(cmds) == 0 {
		return 0, nil
	}
	s.history.Push(&history.Composite{Cmds: cmds, Label: "apply palette " + p.Name})
	s.dirty = true
	return len(cmds), nil
}

// Undo reverts the most recent command and returns its name.
func (s *Session) Undo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.history.Undo(s.model)
	if err != nil {
		return "", err
	}
	s.dirty = true
	return c.Name(), nil
}

// Redo re-applies the most recently undone command and returns its
// name.
func (s *Session) Redo() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.history.Redo(s.model)
	if err != nil {
		return "", err
	}
	s.dirty = true
	return c.Name(), nil
}

// HistoryState is the undo/redo availability and the command names on
// each stack, oldest first.
type HistoryState struct {
	CanUndo bool     `json:"canUndo"`
	CanRedo bool     `json:"canRedo"`
	Undo    []string `json:"undo"`
	Redo    []string `json:"redo"`
}

// HistoryState reports the current undo/redo stacks.
func (s *Session) HistoryState() HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	undo, redo := s.history.Names()
	return HistoryState{
		CanUndo: s.history.CanUndo(),
		CanRedo: s.history.CanRedo(),
		Undo:    undo,
		Redo:    redo,
	}
}

// PreviewGeometry applies a geometry directly, without recording
// history. The first preview of a gesture remembers the starting
// geometry; CommitGeometry later collapses the gesture into one
// command. Previewing a different annotation commits any pending
// gesture first.
func (s *Session) PreviewGeometry(imagePath, id string, g models.Geometry) (models.Geometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag != nil && (s.drag.id != id || s.drag.imagePath != imagePath) {
		s.commitDragLocked("")
	}
	old, err := s.model.SetGeometry(imagePath, id, g)
	if err != nil {
		return models.Geometry{}, err
	}
	if s.drag == nil {
		s.drag = &drag{imagePath: imagePath, id: id, orig: old}
	}
	a, err := s.model.Annotation(imagePath, id)
	if err != nil {
		return models.Geometry{}, err
	}
	return a.Geometry.Clone(), nil
}

// CommitGeometry ends the pending gesture, pushing one command from
// the starting geometry to the current one. A gesture that went
// nowhere records nothing.
func (s *Session) CommitGeometry(verb string) {
	s.mu.Lock()
	s.commitDragLocked(verb)
	s.mu.Unlock()
}

// CancelGeometry ends the pending gesture and restores the starting
// geometry.
func (s *Session) CancelGeometry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.drag
	s.drag = nil
	if d == nil {
		return nil
	}
	_, err := s.model.SetGeometry(d.imagePath, d.id, d.orig)
	return err
}

func (s *Session) commitDragLocked(verb string) {
	d := s.drag
	if d == nil {
		return
	}
	s.drag = nil
	a, err := s.model.Annotation(d.imagePath, d.id)
	if err != nil {
		return
	}
	if geometryEqual(d.orig, a.Geometry) {
		return
	}
	s.history.Push(&history.SetGeometry{
		ImagePath: d.imagePath,
		ID:        d.id,
		Old:       d.orig,
		New:       a.Geometry.Clone(),
		Verb:      verb,
	})
	s.dirty = true
}

func geometryEqual(a, b models.Geometry) bool {
	return reflect.DeepEqual(a, b)
}

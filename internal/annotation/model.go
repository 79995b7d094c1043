// Package annotation holds the mutable in-memory state of one
// annotation project and every atomic operation over it: annotation
// CRUD, label management with cascade rules, and aggregate statistics.
//
// A Model is not safe for concurrent use. The owning session
// serializes access; undo history and codecs operate on top of the
// operations defined here.
package annotation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/image-annotator/backend/internal/models"
)

var (
	// ErrNotFound is returned when an image, annotation, or label
	// referenced by an operation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLabel is returned when creating or renaming a label
	// would collide with an existing name.
	ErrDuplicateLabel = errors.New("duplicate label")

	// ErrLabelInUse is returned when deleting a label that annotations
	// still reference without forcing the cascade.
	ErrLabelInUse = errors.New("label in use")
)

// AnnRef identifies one annotation within a project.
type AnnRef struct {
	ImagePath string `json:"imagePath"`
	ID        string `json:"id"`
}

// Model is the mutable project state. Every mutation validates its
// inputs before touching state, so a failed operation leaves the
// model unchanged.
type Model struct {
	project *models.Project
	images  map[string]*models.ImageEntry

	defaultColor string
}

// NewModel creates an empty model for the given image folder.
func NewModel(folderPath, defaultColor string) *Model {
	if !models.ValidHexColor(defaultColor) {
		defaultColor = models.DefaultColor
	}
	return &Model{
		project: &models.Project{
			FolderPath: folderPath,
			Images:     make([]*models.ImageEntry, 0),
			Labels:     make([]models.Label, 0),
		},
		images:       make(map[string]*models.ImageEntry),
		defaultColor: defaultColor,
	}
}

// FromProject builds a model around an existing project, validating
// every geometry and label on the way in.
func FromProject(p *models.Project, defaultColor string) (*Model, error) {
	m := NewModel(p.FolderPath, defaultColor)
	for i := range p.Labels {
		if err := p.Labels[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
		}
	}
	for _, e := range p.Images {
		for _, a := range e.Annotations {
			if err := a.Geometry.Validate(); err != nil {
				return nil, fmt.Errorf("image %s, annotation %s: %w", e.Path, a.ID, err)
			}
			if !models.ValidHexColor(a.Color) {
				return nil, fmt.Errorf("%w: annotation %s: color %q is not #RRGGBB", models.ErrMalformedInput, a.ID, a.Color)
			}
		}
	}
	m.project = p
	m.reindex()
	return m, nil
}

func (m *Model) reindex() {
	m.images = make(map[string]*models.ImageEntry, len(m.project.Images))
	for _, e := range m.project.Images {
		m.images[e.Path] = e
	}
}

// Project returns the live project state. Callers must not mutate it
// directly or retain it across operations.
func (m *Model) Project() *models.Project {
	return m.project
}

// DefaultColor returns the color assigned to unlabeled annotations
// created without an explicit color.
func (m *Model) DefaultColor() string {
	return m.defaultColor
}

// EnsureImage registers an image, or refreshes the dimensions of an
// already registered one. Existing annotations are preserved.
func (m *Model) EnsureImage(path, name string, width, height int) *models.ImageEntry {
	if e, ok := m.images[path]; ok {
		e.Name = name
		if width > 0 {
			e.Width = width
		}
		if height > 0 {
			e.Height = height
		}
		return e
	}
	e := &models.ImageEntry{
		Path:        path,
		Name:        name,
		Width:       width,
		Height:      height,
		Annotations: make([]*models.Annotation, 0),
	}
	m.project.Images = append(m.project.Images, e)
	m.images[path] = e
	return e
}

// Image returns the entry for the given path.
func (m *Model) Image(path string) (*models.ImageEntry, error) {
	e, ok := m.images[path]
	if !ok {
		return nil, fmt.Errorf("%w: image %q", ErrNotFound, path)
	}
	return e, nil
}

// Annotation returns one annotation by image path and id.
func (m *Model) Annotation(imagePath, id string) (*models.Annotation, error) {
	e, err := m.Image(imagePath)
	if err != nil {
		return nil, err
	}
	a, _ := e.FindAnnotation(id)
	if a == nil {
		return nil, fmt.Errorf("%w: annotation %q", ErrNotFound, id)
	}
	return a, nil
}

// resolveColor picks the concrete color for a new annotation: the
// explicit color if given, else the label's color, else the default.
func (m *Model) resolveColor(color, label string) (string, error) {
	if color != "" {
		if !models.ValidHexColor(color) {
			return "", fmt.Errorf("%w: color %q is not #RRGGBB", models.ErrMalformedInput, color)
		}
		return color, nil
	}
	if label != "" {
		if l, _ := m.project.FindLabel(label); l != nil {
			return l.Color, nil
		}
	}
	return m.defaultColor, nil
}

// CreateAnnotation validates and appends a new annotation to the
// image's z-order. A non-empty label must already exist. An empty
// color inherits the label's color, or the default for unlabeled
// annotations.
func (m *Model) CreateAnnotation(imagePath string, g models.Geometry, label, color string) (*models.Annotation, error) {
	e, err := m.Image(imagePath)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if label != "" {
		if l, _ := m.project.FindLabel(label); l == nil {
			return nil, fmt.Errorf("%w: label %q", ErrNotFound, label)
		}
	}
	c, err := m.resolveColor(color, label)
	if err != nil {
		return nil, err
	}
	ann := &models.Annotation{
		ID:       uuid.NewString(),
		Geometry: g.Clone(),
		Label:    label,
		Color:    c,
	}
	e.Annotations = append(e.Annotations, ann)
	return ann, nil
}

// InsertAnnotation places a fully formed annotation at the given
// z-order index, clamped to the valid range. Used to restore deleted
// annotations and to merge imports; the caller supplies the id.
func (m *Model) InsertAnnotation(imagePath string, ann *models.Annotation, index int) error {
	e, err := m.Image(imagePath)
	if err != nil {
		return err
	}
	if err := ann.Geometry.Validate(); err != nil {
		return err
	}
	if ann.ID == "" {
		return fmt.Errorf("%w: annotation id must not be empty", models.ErrMalformedInput)
	}
	if existing, _ := e.FindAnnotation(ann.ID); existing != nil {
		return fmt.Errorf("annotation %q already exists on %s", ann.ID, imagePath)
	}
	if !models.ValidHexColor(ann.Color) {
		return fmt.Errorf("%w: color %q is not #RRGGBB", models.ErrMalformedInput, ann.Color)
	}
	if index < 0 {
		index = 0
	}
	if index > len(e.Annotations) {
		index = len(e.Annotations)
	}
	cp := ann.Clone()
	e.Annotations = append(e.Annotations, nil)
	copy(e.Annotations[index+1:], e.Annotations[index:])
	e.Annotations[index] = cp
	return nil
}

// DeleteAnnotation removes an annotation and returns it together with
// its former z-order index.
func (m *Model) DeleteAnnotation(imagePath, id string) (*models.Annotation, int, error) {
	e, err := m.Image(imagePath)
	if err != nil {
		return nil, 0, err
	}
	a, idx := e.FindAnnotation(id)
	if a == nil {
		return nil, 0, fmt.Errorf("%w: annotation %q", ErrNotFound, id)
	}
	e.Annotations = append(e.Annotations[:idx], e.Annotations[idx+1:]...)
	return a, idx, nil
}

// SetGeometry replaces an annotation's geometry and returns the old
// one. The new geometry must be valid and of the same kind.
func (m *Model) SetGeometry(imagePath, id string, g models.Geometry) (models.Geometry, error) {
	a, err := m.Annotation(imagePath, id)
	if err != nil {
		return models.Geometry{}, err
	}
	if err := g.Validate(); err != nil {
		return models.Geometry{}, err
	}
	if g.Kind != a.Geometry.Kind {
		return models.Geometry{}, fmt.Errorf("%w: annotation is a %s, not a %s", models.ErrUnsupportedKind, a.Geometry.Kind, g.Kind)
	}
	old := a.Geometry
	a.Geometry = g.Clone()
	return old, nil
}

// SetLabel re-labels an annotation and returns the old label name.
// An empty name clears the reference; a non-empty name must exist.
func (m *Model) SetLabel(imagePath, id, label string) (string, error) {
	a, err := m.Annotation(imagePath, id)
	if err != nil {
		return "", err
	}
	if label != "" {
		if l, _ := m.project.FindLabel(label); l == nil {
			return "", fmt.Errorf("%w: label %q", ErrNotFound, label)
		}
	}
	old := a.Label
	a.Label = label
	return old, nil
}

// SetColor changes an annotation's display color and returns the old
// one. An empty color re-resolves from the label or the default.
func (m *Model) SetColor(imagePath, id, color string) (string, error) {
	a, err := m.Annotation(imagePath, id)
	if err != nil {
		return "", err
	}
	c, err := m.resolveColor(color, a.Label)
	if err != nil {
		return "", err
	}
	old := a.Color
	a.Color = c
	return old, nil
}

// Labels returns the label set in creation order.
func (m *Model) Labels() []models.Label {
	return m.project.Labels
}

// AddLabel appends a new label. An empty color falls back to the
// default.
func (m *Model) AddLabel(name, color string) (models.Label, error) {
	if color == "" {
		color = m.defaultColor
	}
	l := models.Label{Name: name, Color: color}
	if err := l.Validate(); err != nil {
		return models.Label{}, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	if existing, _ := m.project.FindLabel(name); existing != nil {
		return models.Label{}, fmt.Errorf("%w: %q", ErrDuplicateLabel, name)
	}
	m.project.Labels = append(m.project.Labels, l)
	return l, nil
}

// InsertLabel restores a label at a specific index, clamped to the
// valid range. Used when undoing a label deletion.
func (m *Model) InsertLabel(l models.Label, index int) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	if existing, _ := m.project.FindLabel(l.Name); existing != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, l.Name)
	}
	if index < 0 {
		index = 0
	}
	if index > len(m.project.Labels) {
		index = len(m.project.Labels)
	}
	m.project.Labels = append(m.project.Labels, models.Label{})
	copy(m.project.Labels[index+1:], m.project.Labels[index:])
	m.project.Labels[index] = l
	return nil
}

// RenameLabel changes a label's name and rewrites every annotation
// reference to it. Returns the number of rewritten references.
func (m *Model) RenameLabel(oldName, newName string) (int, error) {
	l, _ := m.project.FindLabel(oldName)
	if l == nil {
		return 0, fmt.Errorf("%w: label %q", ErrNotFound, oldName)
	}
	if newName == oldName {
		return 0, nil
	}
	if newName == "" {
		return 0, fmt.Errorf("%w: label name must not be empty", models.ErrMalformedInput)
	}
	if existing, _ := m.project.FindLabel(newName); existing != nil {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateLabel, newName)
	}
	l.Name = newName
	n := 0
	for _, e := range m.project.Images {
		for _, a := range e.Annotations {
			if a.Label == oldName {
				a.Label = newName
				n++
			}
		}
	}
	return n, nil
}

// RecolorLabel changes a label's color. Annotations referencing the
// label that still wear its previous color follow it; explicit
// per-annotation overrides are left alone. Returns the previous label
// color and the refs that were recolored.
func (m *Model) RecolorLabel(name, color string) (string, []AnnRef, error) {
	l, _ := m.project.FindLabel(name)
	if l == nil {
		return "", nil, fmt.Errorf("%w: label %q", ErrNotFound, name)
	}
	if !models.ValidHexColor(color) {
		return "", nil, fmt.Errorf("%w: color %q is not #RRGGBB", models.ErrMalformedInput, color)
	}
	old := l.Color
	var affected []AnnRef
	for _, e := range m.project.Images {
		for _, a := range e.Annotations {
			if a.Label == name && a.Color == old {
				a.Color = color
				affected = append(affected, AnnRef{ImagePath: e.Path, ID: a.ID})
			}
		}
	}
	l.Color = color
	return old, affected, nil
}

// SetLabelColor changes a label's color without touching any
// annotation, returning the old color. Cascading recolors go through
// RecolorLabel.
func (m *Model) SetLabelColor(name, color string) (string, error) {
	l, _ := m.project.FindLabel(name)
	if l == nil {
		return "", fmt.Errorf("%w: label %q", ErrNotFound, name)
	}
	if !models.ValidHexColor(color) {
		return "", fmt.Errorf("%w: color %q is not #RRGGBB", models.ErrMalformedInput, color)
	}
	old := l.Color
	l.Color = color
	return old, nil
}

// LabelUsage lists the annotations referencing a label.
func (m *Model) LabelUsage(name string) []AnnRef {
	var refs []AnnRef
	for _, e := range m.project.Images {
		for _, a := range e.Annotations {
			if a.Label == name {
				refs = append(refs, AnnRef{ImagePath: e.Path, ID: a.ID})
			}
		}
	}
	return refs
}

// RemoveLabel deletes a label. When annotations still reference it,
// force=false rejects with ErrLabelInUse and force=true clears each
// reference first. Returns the removed label, its former index, and
// the refs whose label field was cleared.
func (m *Model) RemoveLabel(name string, force bool) (models.Label, int, []AnnRef, error) {
	l, idx := m.project.FindLabel(name)
	if l == nil {
		return models.Label{}, 0, nil, fmt.Errorf("%w: label %q", ErrNotFound, name)
	}
	refs := m.LabelUsage(name)
	if len(refs) > 0 && !force {
		return models.Label{}, 0, nil, fmt.Errorf("%w: label %q referenced by %d annotations", ErrLabelInUse, name, len(refs))
	}
	for _, r := range refs {
		a, _ := m.images[r.ImagePath].FindAnnotation(r.ID)
		a.Label = ""
	}
	removed := *l
	m.project.Labels = append(m.project.Labels[:idx], m.project.Labels[idx+1:]...)
	return removed, idx, refs, nil
}

// RestoreLabelRefs re-points annotations at a label, used when
// undoing a forced deletion. Refs to vanished annotations are
// skipped.
func (m *Model) RestoreLabelRefs(name string, refs []AnnRef) {
	for _, r := range refs {
		e, ok := m.images[r.ImagePath]
		if !ok {
			continue
		}
		if a, _ := e.FindAnnotation(r.ID); a != nil {
			a.Label = name
		}
	}
}

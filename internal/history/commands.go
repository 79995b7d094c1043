package history

import (
	"strings"

	"github.com/image-annotator/backend/internal/annotation"
	"github.com/image-annotator/backend/internal/models"
)

// Create records a new annotation. Ann keeps the assigned id so redo
// restores it.
type Create struct {
	ImagePath string
	Ann       *models.Annotation
	Index     int
}

func (c *Create) Apply(m *annotation.Model) error {
	return m.InsertAnnotation(c.ImagePath, c.Ann, c.Index)
}

func (c *Create) Revert(m *annotation.Model) error {
	_, _, err := m.DeleteAnnotation(c.ImagePath, c.Ann.ID)
	return err
}

func (c *Create) Name() string {
	return "create " + strings.ToLower(string(c.Ann.Kind()))
}

// Delete records a removed annotation and its z-order index.
type Delete struct {
	ImagePath string
	Ann       *models.Annotation
	Index     int
}

func (c *Delete) Apply(m *annotation.Model) error {
	_, _, err := m.DeleteAnnotation(c.ImagePath, c.Ann.ID)
	return err
}

func (c *Delete) Revert(m *annotation.Model) error {
	return m.InsertAnnotation(c.ImagePath, c.Ann, c.Index)
}

func (c *Delete) Name() string {
	return "delete " + strings.ToLower(string(c.Ann.Kind()))
}

// SetGeometry records a geometry change as an old/new pair. A whole
// drag gesture collapses into one of these. Verb carries the gesture
// name shown in history listings.
type SetGeometry struct {
	ImagePath string
	ID        string
	Old, New  models.Geometry
	Verb      string
}

func (c *SetGeometry) Apply(m *annotation.Model) error {
	_, err := m.SetGeometry(c.ImagePath, c.ID, c.New)
	return err
}

func (c *SetGeometry) Revert(m *annotation.Model) error {
	_, err := m.SetGeometry(c.ImagePath, c.ID, c.Old)
	return err
}

func (c *SetGeometry) Name() string {
	if c.Verb != "" {
		return c.Verb
	}
	return "edit geometry"
}

// SetLabel records an annotation re-label.
type SetLabel struct {
	ImagePath string
	ID        string
	Old, New  string
}

func (c *SetLabel) Apply(m *annotation.Model) error {
	_, err := m.SetLabel(c.ImagePath, c.ID, c.New)
	return err
}

func (c *SetLabel) Revert(m *annotation.Model) error {
	_, err := m.SetLabel(c.ImagePath, c.ID, c.Old)
	return err
}

func (c *SetLabel) Name() string { return "set label" }

// SetColor records an annotation recolor.
type SetColor struct {
	ImagePath string
	ID        string
	Old, New  string
}

func (c *SetColor) Apply(m *annotation.Model) error {
	_, err := m.SetColor(c.ImagePath, c.ID, c.New)
	return err
}

func (c *SetColor) Revert(m *annotation.Model) error {
	_, err := m.SetColor(c.ImagePath, c.ID, c.Old)
	return err
}

func (c *SetColor) Name() string { return "set color" }

// AddLabel records a label creation. Reverting fails with
// ErrLabelInUse if annotations acquired references outside of
// history, such as through an import.
type AddLabel struct {
	Label models.Label
	Index int
}

func (c *AddLabel) Apply(m *annotation.Model) error {
	return m.InsertLabel(c.Label, c.Index)
}

func (c *AddLabel) Revert(m *annotation.Model) error {
	_, _, _, err := m.RemoveLabel(c.Label.Name, false)
	return err
}

func (c *AddLabel) Name() string { return "add label" }

// RemoveLabel records a forced label deletion together with the
// references it cleared.
type RemoveLabel struct {
	Label models.Label
	Index int
	Refs  []annotation.AnnRef
}

func (c *RemoveLabel) Apply(m *annotation.Model) error {
	removed, idx, refs, err := m.RemoveLabel(c.Label.Name, true)
	if err != nil {
		return err
	}
	c.Label, c.Index, c.Refs = removed, idx, refs
	return nil
}

func (c *RemoveLabel) Revert(m *annotation.Model) error {
	if err := m.InsertLabel(c.Label, c.Index); err != nil {
		return err
	}
	m.RestoreLabelRefs(c.Label.Name, c.Refs)
	return nil
}

func (c *RemoveLabel) Name() string { return "remove label" }

// RenameLabel records a label rename. Reference rewriting is
// symmetric, so reverting is renaming back.
type RenameLabel struct {
	Old, New string
}

func (c *RenameLabel) Apply(m *annotation.Model) error {
	_, err := m.RenameLabel(c.Old, c.New)
	return err
}

func (c *RenameLabel) Revert(m *annotation.Model) error {
	_, err := m.RenameLabel(c.New, c.Old)
	return err
}

func (c *RenameLabel) Name() string { return "rename label" }

// RecolorLabel records a cascading label recolor. Refs are the
// annotations that followed the label's color; replaying touches
// exactly those, leaving per-annotation overrides alone.
type RecolorLabel struct {
	Label    string
	Old, New string
	Refs     []annotation.AnnRef
}

func (c *RecolorLabel) Apply(m *annotation.Model) error {
	return c.recolor(m, c.New)
}

func (c *RecolorLabel) Revert(m *annotation.Model) error {
	return c.recolor(m, c.Old)
}

func (c *RecolorLabel) recolor(m *annotation.Model, color string) error {
	if _, err := m.SetLabelColor(c.Label, color); err != nil {
		return err
	}
	for _, r := range c.Refs {
		if _, err := m.SetColor(r.ImagePath, r.ID, color); err != nil {
			return err
		}
	}
	return nil
}

func (c *RecolorLabel) Name() string { return "recolor label" }

// Composite groups sub-commands into one history entry, applied in
// order and reverted in reverse. A failed replay rolls the completed
// prefix back.
type Composite struct {
	Cmds  []Command
	Label string
}

func (c *Composite) Apply(m *annotation.Model) error {
	for i, sub := range c.Cmds {
		if err := sub.Apply(m); err != nil {
			for j := i - 1; j >= 0; j-- {
				c.Cmds[j].Revert(m)
			}
			return err
		}
	}
	return nil
}

func (c *Composite) Revert(m *annotation.Model) error {
	for i := len(c.Cmds) - 1; i >= 0; i-- {
		if err := c.Cmds[i].Revert(m); err != nil {
			for j := i + 1; j < len(c.Cmds); j++ {
				c.Cmds[j].Apply(m)
			}
			return err
		}
	}
	return nil
}

func (c *Composite) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return "batch edit"
}

// handlers_label.go - Label set handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/palette"
	"github.com/image-annotator/backend/internal/project"
)

// LabelHandlerImpl implements the LabelHandler interface
type LabelHandlerImpl struct {
	sessions    *project.Manager
	palettesDir string
}

// NewLabelHandler creates a new label handler instance
func NewLabelHandler(sessions *project.Manager, palettesDir string) LabelHandler {
	return &LabelHandlerImpl{
		sessions:    sessions,
		palettesDir: palettesDir,
	}
}

// HandleListLabels returns the project's labels in creation order
func (h *LabelHandlerImpl) HandleListLabels(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Labels())
}

// HandleAddLabel adds a label to the project
func (h *LabelHandlerImpl) HandleAddLabel(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req addLabelRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	label, err := sess.AddLabel(req.Name, req.Color)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, label)
}

// HandlePatchLabel renames and/or recolors a label. A rename cascades
// into the annotations that reference it; a recolor repaints them.
func (h *LabelHandlerImpl) HandlePatchLabel(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	name := c.Param("name")
	if name == "" {
		return NewValidationError("name")
	}

	var req patchLabelRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.NewName == nil && req.Color == nil {
		return NewValidationError("newName or color")
	}

	if req.NewName != nil {
		if err := sess.RenameLabel(name, *req.NewName); err != nil {
			return err
		}
		name = *req.NewName
	}
	if req.Color != nil {
		if err := sess.RecolorLabel(name, *req.Color); err != nil {
			return err
		}
	}

	for _, l := range sess.Labels() {
		if l.Name == name {
			return c.JSON(http.StatusOK, l)
		}
	}
	return NewNotFoundError("label", name)
}

// HandleDeleteLabel removes a label. Without ?cascade=true the delete
// fails while annotations still reference the label.
func (h *LabelHandlerImpl) HandleDeleteLabel(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	name := c.Param("name")
	if name == "" {
		return NewValidationError("name")
	}

	cascade := c.QueryParam("cascade") == "true"
	if err := sess.RemoveLabel(name, cascade); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleApplyPalette seeds the project with a named palette's labels
func (h *LabelHandlerImpl) HandleApplyPalette(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req applyPaletteRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Palette == "" {
		return NewValidationError("palette")
	}

	palettes, err := palette.Load(h.palettesDir)
	if err != nil {
		return NewInternalError("failed to load palettes", err)
	}
	p := palette.Find(palettes, req.Palette)
	if p == nil {
		return NewNotFoundError("palette", req.Palette)
	}

	added, err := sess.ApplyPalette(p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, applyPaletteResponse{
		Added:  added,
		Labels: sess.Labels(),
	})
}

// HandleListPalettes returns the palettes available on disk
func (h *LabelHandlerImpl) HandleListPalettes(c echo.Context) error {
	palettes, err := palette.Load(h.palettesDir)
	if err != nil {
		return NewInternalError("failed to load palettes", err)
	}
	return c.JSON(http.StatusOK, palettes)
}

// Request/Response types

type addLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type patchLabelRequest struct {
	NewName *string `json:"newName"`
	Color   *string `json:"color"`
}

type applyPaletteRequest struct {
	Palette string `json:"palette"`
}

type applyPaletteResponse struct {
	Added  int            `json:"added"`
	Labels []models.Label `json:"labels"`
}

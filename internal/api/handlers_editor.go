// handlers_editor.go - Hit-testing, history, and viewport handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/hittest"
	"github.com/image-annotator/backend/internal/project"
	"github.com/image-annotator/backend/internal/viewport"
)

// EditorHandlerImpl implements the EditorHandler interface
type EditorHandlerImpl struct {
	sessions *project.Manager
}

// NewEditorHandler creates a new editor handler instance
func NewEditorHandler(sessions *project.Manager) EditorHandler {
	return &EditorHandlerImpl{sessions: sessions}
}

// HandleHitTest resolves a canvas-space pointer position against an
// image's annotations. The canvas point is mapped through the supplied
// viewport; grab tolerances stay fixed in canvas pixels.
func (h *EditorHandlerImpl) HandleHitTest(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req hitTestRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Image == "" {
		return NewValidationError("image")
	}
	if err := req.Viewport.Validate(); err != nil {
		return err
	}

	hit, err := sess.HitTest(req.Image, req.Viewport.ToImage(req.Point), req.Viewport.Zoom, req.Tolerance.toTolerances())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hitTestResponse{Hit: hit})
}

// HandleUndo reverts the most recent command
func (h *EditorHandlerImpl) HandleUndo(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	name, err := sess.Undo()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, historyStepResponse{
		Undone:  name,
		History: sess.HistoryState(),
	})
}

// HandleRedo re-applies the most recently undone command
func (h *EditorHandlerImpl) HandleRedo(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	name, err := sess.Redo()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, historyStepResponse{
		Redone:  name,
		History: sess.HistoryState(),
	})
}

// HandleHistory returns undo/redo availability and command names
func (h *EditorHandlerImpl) HandleHistory(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.HistoryState())
}

// HandleViewportZoom recomputes a viewport for a zoom change anchored
// at a focal point. An absolute zoom takes precedence; otherwise
// direction steps by the configured factor.
func (h *EditorHandlerImpl) HandleViewportZoom(c echo.Context) error {
	var req viewportZoomRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.Viewport.Validate(); err != nil {
		return err
	}

	lim := h.sessions.Settings().Limits

	var (
		next viewport.Viewport
		err  error
	)
	switch {
	case req.Zoom != 0:
		next, err = req.Viewport.ZoomAt(req.Focal, req.Zoom, lim)
	case req.Direction != 0:
		next, err = req.Viewport.StepZoom(req.Focal, req.Direction, lim)
	default:
		return NewValidationError("zoom or direction")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewportResponse{Viewport: next})
}

// HandleViewportFit computes the viewport that letterboxes an image
// into a canvas.
func (h *EditorHandlerImpl) HandleViewportFit(c echo.Context) error {
	var req viewportFitRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.ImageWidth <= 0 || req.ImageHeight <= 0 {
		return NewValidationError("imageWidth and imageHeight")
	}
	if req.CanvasWidth <= 0 || req.CanvasHeight <= 0 {
		return NewValidationError("canvasWidth and canvasHeight")
	}

	lim := h.sessions.Settings().Limits
	vp := viewport.Fit(req.ImageWidth, req.ImageHeight, req.CanvasWidth, req.CanvasHeight, lim)
	return c.JSON(http.StatusOK, viewportResponse{Viewport: vp})
}

// Request/Response types

type toleranceRequest struct {
	VertexPx float64 `json:"vertexPx"`
	EdgePx   float64 `json:"edgePx"`
}

// toTolerances converts the optional request block; zero fields fall
// back to the session defaults inside HitTest.
func (t *toleranceRequest) toTolerances() hittest.Tolerances {
	if t == nil {
		return hittest.Tolerances{}
	}
	return hittest.Tolerances{VertexPx: t.VertexPx, EdgePx: t.EdgePx}
}

type hitTestRequest struct {
	Image     string            `json:"image"`
	Point     geometry.Point    `json:"point"`
	Viewport  viewport.Viewport `json:"viewport"`
	Tolerance *toleranceRequest `json:"tolerance"`
}

type hitTestResponse struct {
	Hit *hittest.Hit `json:"hit"`
}

type historyStepResponse struct {
	Undone  string               `json:"undone,omitempty"`
	Redone  string               `json:"redone,omitempty"`
	History project.HistoryState `json:"history"`
}

type viewportZoomRequest struct {
	Viewport  viewport.Viewport `json:"viewport"`
	Focal     geometry.Point    `json:"focal"`
	Zoom      float64           `json:"zoom"`
	Direction int               `json:"direction"`
}

type viewportFitRequest struct {
	ImageWidth   float64 `json:"imageWidth"`
	ImageHeight  float64 `json:"imageHeight"`
	CanvasWidth  float64 `json:"canvasWidth"`
	CanvasHeight float64 `json:"canvasHeight"`
}

type viewportResponse struct {
	Viewport viewport.Viewport `json:"viewport"`
}

// handlers_annotation.go - Annotation CRUD and vertex editing handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/project"
)

// AnnotationHandlerImpl implements the AnnotationHandler interface
type AnnotationHandlerImpl struct {
	sessions *project.Manager
}

// NewAnnotationHandler creates a new annotation handler instance
func NewAnnotationHandler(sessions *project.Manager) AnnotationHandler {
	return &AnnotationHandlerImpl{sessions: sessions}
}

// HandleListAnnotations returns an image's annotations in z-order
func (h *AnnotationHandlerImpl) HandleListAnnotations(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}

	anns, err := sess.Annotations(image)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, annotationsResponse{
		Image:       image,
		Annotations: anns,
		Total:       len(anns),
	})
}

// HandleListAnnotationsMsgpack returns the same listing as a
// MessagePack blob for fast canvas redraws.
func (h *AnnotationHandlerImpl) HandleListAnnotationsMsgpack(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}

	anns, err := sess.Annotations(image)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(annotationsResponse{
		Image:       image,
		Annotations: anns,
		Total:       len(anns),
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleCreateAnnotation creates an annotation on an image
func (h *AnnotationHandlerImpl) HandleCreateAnnotation(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req createAnnotationRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Image == "" {
		return NewValidationError("image")
	}

	ann, err := sess.CreateAnnotation(req.Image, req.Geometry, req.Label, req.Color)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ann)
}

// HandleGetAnnotation returns one annotation by id
func (h *AnnotationHandlerImpl) HandleGetAnnotation(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}

	ann, err := sess.Annotation(image, c.Param("annId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ann)
}

// HandlePatchAnnotation updates an annotation's geometry, label, or
// color. Each supplied field becomes its own undo step.
func (h *AnnotationHandlerImpl) HandlePatchAnnotation(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}
	annID := c.Param("annId")

	var req patchAnnotationRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Geometry == nil && req.Label == nil && req.Color == nil {
		return NewValidationError("geometry, label, or color")
	}

	if req.Geometry != nil {
		if _, err := sess.UpdateGeometry(image, annID, *req.Geometry); err != nil {
			return err
		}
	}
	if req.Label != nil {
		if err := sess.SetLabel(image, annID, *req.Label); err != nil {
			return err
		}
	}
	if req.Color != nil {
		if err := sess.SetColor(image, annID, *req.Color); err != nil {
			return err
		}
	}

	ann, err := sess.Annotation(image, annID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ann)
}

// HandleDeleteAnnotation removes an annotation
func (h *AnnotationHandlerImpl) HandleDeleteAnnotation(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}

	if err := sess.DeleteAnnotation(image, c.Param("annId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleTranslateAnnotation moves a whole annotation by a delta
func (h *AnnotationHandlerImpl) HandleTranslateAnnotation(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}

	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	ann, err := sess.TranslateAnnotation(image, c.Param("annId"), geometry.Point{X: req.Dx, Y: req.Dy})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ann)
}

// HandleInsertVertex splits a polygon edge with a new vertex
func (h *AnnotationHandlerImpl) HandleInsertVertex(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}

	var req insertVertexRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	ann, err := sess.InsertVertex(image, c.Param("annId"), req.EdgeIndex, req.Point)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ann)
}

// HandleMoveVertex drags one vertex to a new position
func (h *AnnotationHandlerImpl) HandleMoveVertex(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}
	index, err := indexParam(c)
	if err != nil {
		return err
	}

	var req moveVertexRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	ann, err := sess.MoveVertex(image, c.Param("annId"), index, req.Point)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ann)
}

// HandleDeleteVertex removes a polygon vertex
func (h *AnnotationHandlerImpl) HandleDeleteVertex(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	image, err := imageParam(c)
	if err != nil {
		return err
	}
	index, err := indexParam(c)
	if err != nil {
		return err
	}

	ann, err := sess.DeleteVertex(image, c.Param("annId"), index)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ann)
}

// Request/Response types

type annotationsResponse struct {
	Image       string               `json:"image" msgpack:"image"`
	Annotations []*models.Annotation `json:"annotations" msgpack:"annotations"`
	Total       int                  `json:"total" msgpack:"total"`
}

type createAnnotationRequest struct {
	Image    string          `json:"image"`
	Geometry models.Geometry `json:"geometry"`
	Label    string          `json:"label"`
	Color    string          `json:"color"`
}

type patchAnnotationRequest struct {
	Geometry *models.Geometry `json:"geometry"`
	Label    *string          `json:"label"`
	Color    *string          `json:"color"`
}

type translateRequest struct {
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
}

type insertVertexRequest struct {
	EdgeIndex int            `json:"edgeIndex"`
	Point     geometry.Point `json:"point"`
}

type moveVertexRequest struct {
	Point geometry.Point `json:"point"`
}

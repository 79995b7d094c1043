// handlers_health.go - Health check and editor configuration handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/project"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions *project.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions *project.Manager) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"sessions": len(h.sessions.List()),
	})
}

// HandleEditorConfig returns the editor defaults the UI needs before it
// can open a canvas: zoom bounds, grab tolerances, history depth, and
// the supported annotation kinds.
func (h *HealthHandlerImpl) HandleEditorConfig(c echo.Context) error {
	st := h.sessions.Settings()
	return c.JSON(http.StatusOK, editorConfigResponse{
		MinZoom:           st.Limits.MinZoom,
		MaxZoom:           st.Limits.MaxZoom,
		ZoomStep:          st.Limits.ZoomStep,
		VertexTolerancePx: st.Tolerances.VertexPx,
		EdgeTolerancePx:   st.Tolerances.EdgePx,
		HistoryDepth:      st.HistoryDepth,
		DefaultColor:      st.DefaultColor,
		CircleVertices:    st.CircleVertices,
		Kinds: []models.Kind{
			models.KindPoint,
			models.KindRectangle,
			models.KindCircle,
			models.KindPolygon,
		},
	})
}

type editorConfigResponse struct {
	MinZoom           float64       `json:"minZoom"`
	MaxZoom           float64       `json:"maxZoom"`
	ZoomStep          float64       `json:"zoomStep"`
	VertexTolerancePx float64       `json:"vertexTolerancePx"`
	EdgeTolerancePx   float64       `json:"edgeTolerancePx"`
	HistoryDepth      int           `json:"historyDepth"`
	DefaultColor      string        `json:"defaultColor"`
	CircleVertices    int           `json:"circleVertices"`
	Kinds             []models.Kind `json:"kinds"`
}

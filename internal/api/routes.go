// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/config"
	"github.com/image-annotator/backend/internal/project"
	"github.com/image-annotator/backend/internal/scanner"
	"github.com/image-annotator/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	SessionMgr  *project.Manager
	ScanMgr     *scanner.Manager
	Store       storage.Store
	PalettesDir string
	Config      *config.AppConfig
	Version     string
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Project    ProjectHandler
	Label      LabelHandler
	Annotation AnnotationHandler
	Editor     EditorHandler
	Transfer   TransferHandler
	Scan       ScanHandler
	WS         *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(deps.Version, deps.SessionMgr),
		Project:    NewProjectHandler(deps.SessionMgr, deps.ScanMgr, deps.Config),
		Label:      NewLabelHandler(deps.SessionMgr, deps.PalettesDir),
		Annotation: NewAnnotationHandler(deps.SessionMgr),
		Editor:     NewEditorHandler(deps.SessionMgr),
		Transfer:   NewTransferHandler(deps.SessionMgr, deps.Store),
		Scan:       NewScanHandler(deps.ScanMgr),
		WS:         NewWebSocketHandler(deps.SessionMgr),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health and editor configuration
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/api/config/editor", handlers.Health.HandleEditorConfig)

	// Project session routes
	projectGroup := e.Group("/api/projects")
	projectGroup.POST("", handlers.Project.HandleCreateProject)
	projectGroup.POST("/scan", handlers.Project.HandleScanProject)
	projectGroup.POST("/open", handlers.Project.HandleOpenProject)
	projectGroup.GET("", handlers.Project.HandleListProjects)
	projectGroup.GET("/:id", handlers.Project.HandleGetProject)
	projectGroup.DELETE("/:id", handlers.Project.HandleCloseProject)
	projectGroup.POST("/:id/save", handlers.Project.HandleSaveProject)
	projectGroup.GET("/:id/snapshot", handlers.Project.HandleSnapshot)
	projectGroup.GET("/:id/statistics", handlers.Project.HandleStatistics)
	projectGroup.GET("/:id/images", handlers.Project.HandleListProjectImages)
	projectGroup.GET("/:id/images/entry", handlers.Project.HandleGetImageEntry)

	// Label routes
	projectGroup.GET("/:id/labels", handlers.Label.HandleListLabels)
	projectGroup.POST("/:id/labels", handlers.Label.HandleAddLabel)
	projectGroup.PATCH("/:id/labels/:name", handlers.Label.HandlePatchLabel)
	projectGroup.DELETE("/:id/labels/:name", handlers.Label.HandleDeleteLabel)
	projectGroup.POST("/:id/labels/palette", handlers.Label.HandleApplyPalette)
	e.GET("/api/palettes", handlers.Label.HandleListPalettes)

	// Annotation routes
	projectGroup.GET("/:id/annotations", handlers.Annotation.HandleListAnnotations)
	projectGroup.GET("/:id/annotations/msgpack", handlers.Annotation.HandleListAnnotationsMsgpack)
	projectGroup.POST("/:id/annotations", handlers.Annotation.HandleCreateAnnotation)
	projectGroup.GET("/:id/annotations/:annId", handlers.Annotation.HandleGetAnnotation)
	projectGroup.PATCH("/:id/annotations/:annId", handlers.Annotation.HandlePatchAnnotation)
	projectGroup.DELETE("/:id/annotations/:annId", handlers.Annotation.HandleDeleteAnnotation)
	projectGroup.POST("/:id/annotations/:annId/translate", handlers.Annotation.HandleTranslateAnnotation)
	projectGroup.POST("/:id/annotations/:annId/vertices", handlers.Annotation.HandleInsertVertex)
	projectGroup.PATCH("/:id/annotations/:annId/vertices/:index", handlers.Annotation.HandleMoveVertex)
	projectGroup.DELETE("/:id/annotations/:annId/vertices/:index", handlers.Annotation.HandleDeleteVertex)

	// Editing helpers
	projectGroup.POST("/:id/hittest", handlers.Editor.HandleHitTest)
	projectGroup.POST("/:id/undo", handlers.Editor.HandleUndo)
	projectGroup.POST("/:id/redo", handlers.Editor.HandleRedo)
	projectGroup.GET("/:id/history", handlers.Editor.HandleHistory)
	e.POST("/api/viewport/zoom", handlers.Editor.HandleViewportZoom)
	e.POST("/api/viewport/fit", handlers.Editor.HandleViewportFit)

	// Export / import routes
	projectGroup.POST("/:id/export", handlers.Transfer.HandleExport)
	projectGroup.POST("/:id/import", handlers.Transfer.HandleImportAnnotations)
	e.GET("/api/exports", handlers.Transfer.HandleListExports)
	e.GET("/api/exports/:id/download", handlers.Transfer.HandleDownloadExport)
	e.DELETE("/api/exports/:id", handlers.Transfer.HandleDeleteExport)
	e.POST("/api/imports/dataset", handlers.Transfer.HandleImportDataset)

	// Scan job routes
	scanGroup := e.Group("/api/scan/jobs")
	scanGroup.GET("/:id", handlers.Scan.HandleGetScanJob)
	scanGroup.GET("/:id/progress", handlers.Scan.HandleScanProgressStream)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/editor", handlers.WS.HandleEditorSocket)
}

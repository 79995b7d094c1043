// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// HealthHandler handles liveness and editor configuration lookups
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleEditorConfig(c echo.Context) error
}

// ProjectHandler handles project session lifecycle operations
type ProjectHandler interface {
	HandleCreateProject(c echo.Context) error
	HandleScanProject(c echo.Context) error
	HandleOpenProject(c echo.Context) error
	HandleListProjects(c echo.Context) error
	HandleGetProject(c echo.Context) error
	HandleCloseProject(c echo.Context) error
	HandleSaveProject(c echo.Context) error
	HandleSnapshot(c echo.Context) error
	HandleStatistics(c echo.Context) error
	HandleListProjectImages(c echo.Context) error
	HandleGetImageEntry(c echo.Context) error
}

// LabelHandler handles label set operations on a project
type LabelHandler interface {
	HandleListLabels(c echo.Context) error
	HandleAddLabel(c echo.Context) error
	HandlePatchLabel(c echo.Context) error
	HandleDeleteLabel(c echo.Context) error
	HandleApplyPalette(c echo.Context) error
	HandleListPalettes(c echo.Context) error
}

// AnnotationHandler handles annotation CRUD and vertex editing
type AnnotationHandler interface {
	HandleListAnnotations(c echo.Context) error
	HandleListAnnotationsMsgpack(c echo.Context) error
	HandleCreateAnnotation(c echo.Context) error
	HandleGetAnnotation(c echo.Context) error
	HandlePatchAnnotation(c echo.Context) error
	HandleDeleteAnnotation(c echo.Context) error
	HandleTranslateAnnotation(c echo.Context) error
	HandleInsertVertex(c echo.Context) error
	HandleMoveVertex(c echo.Context) error
	HandleDeleteVertex(c echo.Context) error
}

// EditorHandler handles hit-testing, history, and viewport math
type EditorHandler interface {
	HandleHitTest(c echo.Context) error
	HandleUndo(c echo.Context) error
	HandleRedo(c echo.Context) error
	HandleHistory(c echo.Context) error
	HandleViewportZoom(c echo.Context) error
	HandleViewportFit(c echo.Context) error
}

// TransferHandler handles export artifacts and annotation imports
type TransferHandler interface {
	HandleExport(c echo.Context) error
	HandleListExports(c echo.Context) error
	HandleDownloadExport(c echo.Context) error
	HandleDeleteExport(c echo.Context) error
	HandleImportAnnotations(c echo.Context) error
	HandleImportDataset(c echo.Context) error
}

// ScanHandler handles folder scan job queries
type ScanHandler interface {
	HandleGetScanJob(c echo.Context) error
	HandleScanProgressStream(c echo.Context) error
}

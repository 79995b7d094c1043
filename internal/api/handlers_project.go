// handlers_project.go - Project session lifecycle handlers
package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/catalog"
	"github.com/image-annotator/backend/internal/config"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/project"
	"github.com/image-annotator/backend/internal/scanner"
)

// ProjectHandlerImpl implements the ProjectHandler interface
type ProjectHandlerImpl struct {
	sessions *project.Manager
	scans    *scanner.Manager
	cfg      *config.AppConfig
}

// NewProjectHandler creates a new project handler instance
func NewProjectHandler(sessions *project.Manager, scans *scanner.Manager, cfg *config.AppConfig) ProjectHandler {
	return &ProjectHandlerImpl{
		sessions: sessions,
		scans:    scans,
		cfg:      cfg,
	}
}

// HandleCreateProject creates an empty project session
func (h *ProjectHandlerImpl) HandleCreateProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	sess, err := h.sessions.Create(req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess.Info())
}

// HandleScanProject creates a session over an image folder and starts
// the async scan job that populates its catalog.
func (h *ProjectHandlerImpl) HandleScanProject(c echo.Context) error {
	var req scanProjectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FolderPath == "" {
		return NewValidationError("folderPath")
	}

	sess, err := h.sessions.CreateFromScan(req.FolderPath)
	if err != nil {
		return err
	}

	info := sess.Info()
	job := h.scans.Start(sess.ID(), info.FolderPath, req.Recursive)

	return c.JSON(http.StatusAccepted, scanProjectResponse{
		Session: info,
		Job:     job,
	})
}

// HandleOpenProject opens a saved project file from disk
func (h *ProjectHandlerImpl) HandleOpenProject(c echo.Context) error {
	var req openProjectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Path == "" {
		return NewValidationError("path")
	}

	sess, err := h.sessions.Open(req.Path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess.Info())
}

// HandleListProjects returns every open session, oldest first
func (h *ProjectHandlerImpl) HandleListProjects(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleGetProject returns one session's summary
func (h *ProjectHandlerImpl) HandleGetProject(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Info())
}

// HandleCloseProject closes a session, discarding unsaved changes
func (h *ProjectHandlerImpl) HandleCloseProject(c echo.Context) error {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSaveProject saves the session to its project file. A path in
// the body overrides the remembered one; a session that has never been
// saved lands in the configured projects directory.
func (h *ProjectHandlerImpl) HandleSaveProject(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req saveProjectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Path == "" && sess.Info().SavePath == "" {
		req.Path = filepath.Join(h.cfg.Storage.ProjectsDirectory, projectFileName(sess.Name()))
	}

	saved, err := sess.Save(req.Path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saveProjectResponse{Path: saved})
}

// HandleSnapshot returns the session as a MessagePack container blob
func (h *ProjectHandlerImpl) HandleSnapshot(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	data, err := sess.Snapshot()
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleStatistics returns annotation and folder statistics
func (h *ProjectHandlerImpl) HandleStatistics(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	stats, err := sess.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleListProjectImages returns one page of the session's image
// catalog, optionally filtered by a name search.
func (h *ProjectHandlerImpl) HandleListProjectImages(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 200
	}

	rows, total, err := sess.ListImages(c.Request().Context(), catalog.ListParams{
		Search:   c.QueryParam("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, imagesResponse{
		Images:   rows,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// HandleGetImageEntry returns one image's annotation entry by path
func (h *ProjectHandlerImpl) HandleGetImageEntry(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	path := c.QueryParam("path")
	if path == "" {
		return NewValidationError("path")
	}

	entry, err := sess.ImageEntry(path)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

// projectFileName derives a save file name from a session name.
func projectFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "untitled"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".project.json"
}

// Request/Response types

type createProjectRequest struct {
	Name string `json:"name"`
}

type scanProjectRequest struct {
	FolderPath string `json:"folderPath"`
	Recursive  bool   `json:"recursive"`
}

type scanProjectResponse struct {
	Session models.SessionInfo `json:"session"`
	Job     models.ScanJob     `json:"job"`
}

type openProjectRequest struct {
	Path string `json:"path"`
}

type saveProjectRequest struct {
	Path string `json:"path"`
}

type saveProjectResponse struct {
	Path string `json:"path"`
}

type imagesResponse struct {
	Images   []catalog.Row `json:"images"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int           `json:"total"`
}

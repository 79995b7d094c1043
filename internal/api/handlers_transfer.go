// handlers_transfer.go - Export artifact and import handlers
package api

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/project"
	"github.com/image-annotator/backend/internal/storage"
)

// TransferHandlerImpl implements the TransferHandler interface
type TransferHandlerImpl struct {
	sessions *project.Manager
	store    storage.Store
}

// NewTransferHandler creates a new transfer handler instance
func NewTransferHandler(sessions *project.Manager, store storage.Store) TransferHandler {
	return &TransferHandlerImpl{
		sessions: sessions,
		store:    store,
	}
}

// HandleExport encodes the project in the requested format and stores
// the result as an artifact. Multi-file formats become a directory
// artifact that downloads as a zip.
func (h *TransferHandlerImpl) HandleExport(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Format == "" {
		req.Format = "native"
	}
	switch req.Format {
	case "native", "coco", "voc":
	default:
		return NewValidationError("format")
	}

	files, err := sess.Export(req.Format, req.PerImage)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return NewBadRequestError("project has no annotated images to export", nil)
	}

	if len(files) == 1 {
		info, err := h.store.SaveBytes(sess.Name()+"_"+files[0].Name, req.Format, files[0].Data)
		if err != nil {
			return NewInternalError("failed to store export", err)
		}
		return c.JSON(http.StatusCreated, info)
	}

	info, err := h.store.CreateDir(fmt.Sprintf("%s_%s", sess.Name(), req.Format), req.Format)
	if err != nil {
		return NewInternalError("failed to store export", err)
	}
	for _, f := range files {
		if info, err = h.store.AddToDir(info.ID, f.Name, f.Data); err != nil {
			return NewInternalError("failed to store export", err)
		}
	}
	return c.JSON(http.StatusCreated, info)
}

// HandleListExports returns stored artifacts, newest first
func (h *TransferHandlerImpl) HandleListExports(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list exports", err)
	}
	return c.JSON(http.StatusOK, list)
}

// HandleDownloadExport streams an artifact. Directory artifacts are
// zipped on the fly.
func (h *TransferHandlerImpl) HandleDownloadExport(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("export", id)
	}
	path, err := h.store.GetFilePath(id)
	if err != nil {
		return NewNotFoundError("export", id)
	}

	st, err := os.Stat(path)
	if err != nil {
		return NewInternalError("failed to read export", err)
	}
	if !st.IsDir() {
		return c.Attachment(path, info.Name)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", info.Name+".zip"))
	c.Response().WriteHeader(http.StatusOK)

	zw := zip.NewWriter(c.Response())
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// HandleDeleteExport removes a stored artifact
func (h *TransferHandlerImpl) HandleDeleteExport(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.store.Get(id); err != nil {
		return NewNotFoundError("export", id)
	}
	if err := h.store.Delete(id); err != nil {
		return NewInternalError("failed to delete export", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleImportAnnotations merges an uploaded annotation file into the
// project. The upload is archived as an artifact for later reference.
func (h *TransferHandlerImpl) HandleImportAnnotations(c echo.Context) error {
	sess, err := getSession(h.sessions, c)
	if err != nil {
		return err
	}

	name, data, err := readUpload(c, "file")
	if err != nil {
		return err
	}

	summary, err := sess.Import(name, data)
	if err != nil {
		return err
	}

	if _, err := h.store.SaveBytes(name, "import", data); err != nil {
		fmt.Printf("[Import] failed to archive upload %s: %v\n", name, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// HandleImportDataset opens an uploaded dataset or container file as a
// brand-new session.
func (h *TransferHandlerImpl) HandleImportDataset(c echo.Context) error {
	name, data, err := readUpload(c, "file")
	if err != nil {
		return err
	}

	sess, err := h.sessions.OpenData(name, data)
	if err != nil {
		return err
	}

	if _, err := h.store.SaveBytes(name, "import", data); err != nil {
		fmt.Printf("[Import] failed to archive upload %s: %v\n", name, err)
	}
	return c.JSON(http.StatusCreated, sess.Info())
}

// Request types

type exportRequest struct {
	Format   string `json:"format"`
	PerImage bool   `json:"perImage"`
}

// handlers.go - Helpers shared by the handler implementations
package api

import (
	"fmt"
	"io"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/project"
)

// getSession resolves the :id route parameter to an open session.
// Get refreshes the session's idle clock.
func getSession(mgr *project.Manager, c echo.Context) (*project.Session, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	sess, ok := mgr.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", project.ErrSessionNotFound, id)
	}
	return sess, nil
}

// imageParam extracts the required ?image= query parameter.
func imageParam(c echo.Context) (string, error) {
	image := c.QueryParam("image")
	if image == "" {
		return "", NewValidationError("image")
	}
	return image, nil
}

// indexParam parses the :index route parameter.
func indexParam(c echo.Context) (int, error) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, NewBadRequestError("invalid vertex index", err)
	}
	return idx, nil
}

// readUpload reads one multipart file field into memory.
func readUpload(c echo.Context, field string) (string, []byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", nil, NewBadRequestError("no file provided", err)
	}
	src, err := fh.Open()
	if err != nil {
		return "", nil, NewInternalError("failed to open upload", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", nil, NewInternalError("failed to read upload", err)
	}
	return fh.Filename, data, nil
}

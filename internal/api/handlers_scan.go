// handlers_scan.go - Folder scan job handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/scanner"
)

// ScanHandlerImpl implements the ScanHandler interface
type ScanHandlerImpl struct {
	scans *scanner.Manager
}

// NewScanHandler creates a new scan handler instance
func NewScanHandler(scans *scanner.Manager) ScanHandler {
	return &ScanHandlerImpl{scans: scans}
}

// HandleGetScanJob returns the current status of a scan job
func (h *ScanHandlerImpl) HandleGetScanJob(c echo.Context) error {
	id := c.Param("id")
	job, ok := h.scans.Get(id)
	if !ok {
		return NewNotFoundError("scan job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleScanProgressStream streams scan progress via SSE until the job
// completes or fails.
func (h *ScanHandlerImpl) HandleScanProgressStream(c echo.Context) error {
	id := c.Param("id")

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	job, ok := h.scans.Get(id)
	if !ok {
		sendSSEError(c, "scan job not found")
		return nil
	}
	sendSSEData(c, job)
	if job.Status == models.ScanStatusComplete || job.Status == models.ScanStatusError {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			job, ok := h.scans.Get(id)
			if !ok {
				sendSSEError(c, "scan job not found")
				return nil
			}

			sendSSEData(c, job)

			if job.Status == models.ScanStatusComplete || job.Status == models.ScanStatusError {
				return nil
			}

		case <-c.Request().Context().Done():
			return nil

		case <-timeout.C:
			sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func sendSSEError(c echo.Context, message string) {
	sendSSEData(c, map[string]string{"error": message})
}

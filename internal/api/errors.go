// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/annotation"
	"github.com/image-annotator/backend/internal/history"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/project"
	"github.com/image-annotator/backend/internal/viewport"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// sentinelMapping pairs a core sentinel error with its HTTP status and
// stable code. The first match wins, so more specific sentinels come
// before broader ones.
var sentinelMapping = []struct {
	target error
	status int
	code   string
}{
	{project.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{project.ErrTooManySessions, http.StatusServiceUnavailable, "TOO_MANY_SESSIONS"},
	{annotation.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{annotation.ErrDuplicateLabel, http.StatusConflict, "DUPLICATE_LABEL"},
	{annotation.ErrLabelInUse, http.StatusConflict, "LABEL_IN_USE"},
	{history.ErrNothingToUndo, http.StatusConflict, "NOTHING_TO_UNDO"},
	{history.ErrNothingToRedo, http.StatusConflict, "NOTHING_TO_REDO"},
	{viewport.ErrInvalidZoom, http.StatusUnprocessableEntity, "INVALID_ZOOM"},
	{models.ErrInvalidGeometry, http.StatusUnprocessableEntity, "INVALID_GEOMETRY"},
	{models.ErrUnsupportedKind, http.StatusUnprocessableEntity, "UNSUPPORTED_KIND"},
	{models.ErrMalformedInput, http.StatusBadRequest, "MALFORMED_INPUT"},
}

// classify maps any error onto an APIError. Core sentinel errors keep
// their message as the response message; everything else becomes a 500.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	}

	for _, m := range sentinelMapping {
		if errors.Is(err, m.target) {
			return &APIError{
				Status:  m.status,
				Code:    m.code,
				Message: err.Error(),
			}
		}
	}

	return &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: "an unexpected error occurred",
		Details: err.Error(),
	}
}

// ErrorHandler is the central Echo error handler. Handlers return raw
// errors from the core packages; this maps them onto stable codes.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := classify(err)
	if jsonErr := c.JSON(apiErr.Status, apiErr); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}

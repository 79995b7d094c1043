package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/hittest"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/project"
	"github.com/image-annotator/backend/internal/viewport"
)

// WebSocket message types for the editor gesture protocol
const (
	// Client -> Server messages
	MsgTypePing       = "ping"
	MsgTypeHover      = "editor:hover"
	MsgTypeDragStart  = "editor:dragStart"
	MsgTypeDragMove   = "editor:dragMove"
	MsgTypeDragEnd    = "editor:dragEnd"
	MsgTypeDragCancel = "editor:dragCancel"
	MsgTypeWheel      = "editor:wheel"

	// Server -> Client messages
	MsgTypePong      = "pong"
	MsgTypeConnected = "connected"
	MsgTypeHit       = "editor:hit"
	MsgTypeGeometry  = "editor:geometry"
	MsgTypeCommit    = "editor:commit"
	MsgTypeViewport  = "editor:viewport"
	MsgTypeError     = "error"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Hover payload: pointer moved without a button held
type HoverPayload struct {
	Image     string            `json:"image"`
	Point     geometry.Point    `json:"point"`
	Viewport  viewport.Viewport `json:"viewport"`
	Tolerance *toleranceRequest `json:"tolerance,omitempty"`
}

// Drag start payload: a grab landed on an annotation
type DragStartPayload struct {
	Image string `json:"image"`
	ID    string `json:"id"`
}

// Drag move payload: the client streams the full geometry it is
// previewing, already mapped to image space
type DragMovePayload struct {
	Image    string          `json:"image"`
	ID       string          `json:"id"`
	Geometry models.Geometry `json:"geometry"`
}

// Drag end payload: verb names the undo entry ("move vertex",
// "move annotation", ...)
type DragEndPayload struct {
	Verb string `json:"verb"`
}

// Wheel payload: zoom step request anchored at the cursor
type WheelPayload struct {
	Viewport  viewport.Viewport `json:"viewport"`
	Focal     geometry.Point    `json:"focal"`
	Direction int               `json:"direction"`
}

// Hit response payload
type WSHitResponse struct {
	Hit *hittest.Hit `json:"hit"`
}

// Geometry response payload: the applied preview geometry
type WSGeometryResponse struct {
	Image    string          `json:"image"`
	ID       string          `json:"id"`
	Geometry models.Geometry `json:"geometry"`
}

// Commit response payload: the gesture is now one history entry
type WSCommitResponse struct {
	Verb    string               `json:"verb,omitempty"`
	History project.HistoryState `json:"history"`
}

// Viewport response payload
type WSViewportResponse struct {
	Viewport viewport.Viewport `json:"viewport"`
}

// WebSocket error response
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler manages editor WebSocket connections. Each
// connection is bound to one session and carries the live drag
// gesture: moves preview geometry without touching history, the end
// of the gesture pushes a single command.
type WebSocketHandler struct {
	sessions *project.Manager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new editor WebSocket handler
func NewWebSocketHandler(sessions *project.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// editorConn tracks the gesture state of one connection.
type editorConn struct {
	sess      *project.Session
	dragImage string
	dragID    string
}

// HandleEditorSocket upgrades the connection and runs the gesture
// protocol against the session named by ?project=.
func (wsh *WebSocketHandler) HandleEditorSocket(c echo.Context) error {
	projectID := c.QueryParam("project")
	if projectID == "" {
		return NewValidationError("project")
	}
	sess, ok := wsh.sessions.Get(projectID)
	if !ok {
		return fmt.Errorf("%w: %q", project.ErrSessionNotFound, projectID)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Printf("[WebSocket] Editor connected to session %s\n", sess.ID()[:8])

	conn := &editorConn{sess: sess}

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeConnected,
		ID:        sess.ID(),
		Timestamp: time.Now().UnixMilli(),
	})

	// Main message loop
	for {
		var msg WSMessage
		err := ws.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WebSocket] Connection error: %v\n", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		case MsgTypeHover:
			wsh.handleHover(ws, conn, msg)
		case MsgTypeDragStart:
			wsh.handleDragStart(ws, conn, msg)
		case MsgTypeDragMove:
			wsh.handleDragMove(ws, conn, msg)
		case MsgTypeDragEnd:
			wsh.handleDragEnd(ws, conn, msg)
		case MsgTypeDragCancel:
			wsh.handleDragCancel(ws, conn, msg)
		case MsgTypeWheel:
			wsh.handleWheel(ws, conn, msg)
		default:
			wsh.sendError(ws, "unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	// A drag orphaned by a dropped connection is rolled back; the
	// user never released the pointer.
	if err := sess.CancelGeometry(); err != nil {
		fmt.Printf("[WebSocket] Failed to cancel orphaned drag: %v\n", err)
	}

	fmt.Printf("[WebSocket] Editor disconnected from session %s\n", sess.ID()[:8])
	return nil
}

// handleHover resolves a pointer position against the annotations
func (wsh *WebSocketHandler) handleHover(ws *websocket.Conn, conn *editorConn, msg WSMessage) {
	var payload HoverPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "invalid hover payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if err := payload.Viewport.Validate(); err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}

	hit, err := conn.sess.HitTest(payload.Image,
		payload.Viewport.ToImage(payload.Point),
		payload.Viewport.Zoom,
		payload.Tolerance.toTolerances())
	if err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeHit,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSHitResponse{Hit: hit}),
	})
}

// handleDragStart validates the grab target and echoes its geometry
func (wsh *WebSocketHandler) handleDragStart(ws *websocket.Conn, conn *editorConn, msg WSMessage) {
	var payload DragStartPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "invalid dragStart payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	ann, err := conn.sess.Annotation(payload.Image, payload.ID)
	if err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}

	conn.dragImage = payload.Image
	conn.dragID = payload.ID

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeGeometry,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSGeometryResponse{Image: payload.Image, ID: ann.ID, Geometry: ann.Geometry}),
	})
}

// handleDragMove applies a preview geometry without touching history
func (wsh *WebSocketHandler) handleDragMove(ws *websocket.Conn, conn *editorConn, msg WSMessage) {
	var payload DragMovePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "invalid dragMove payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	applied, err := conn.sess.PreviewGeometry(payload.Image, payload.ID, payload.Geometry)
	if err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}

	conn.dragImage = payload.Image
	conn.dragID = payload.ID

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeGeometry,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSGeometryResponse{Image: payload.Image, ID: payload.ID, Geometry: applied}),
	})
}

// handleDragEnd collapses the gesture into one history entry
func (wsh *WebSocketHandler) handleDragEnd(ws *websocket.Conn, conn *editorConn, msg WSMessage) {
	var payload DragEndPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			wsh.sendError(ws, "invalid dragEnd payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
	}

	conn.sess.CommitGeometry(payload.Verb)
	conn.dragImage = ""
	conn.dragID = ""

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeCommit,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSCommitResponse{Verb: payload.Verb, History: conn.sess.HistoryState()}),
	})
}

// handleDragCancel restores the pre-drag geometry
func (wsh *WebSocketHandler) handleDragCancel(ws *websocket.Conn, conn *editorConn, msg WSMessage) {
	if err := conn.sess.CancelGeometry(); err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}

	image, id := conn.dragImage, conn.dragID
	conn.dragImage = ""
	conn.dragID = ""
	if image == "" {
		return
	}

	ann, err := conn.sess.Annotation(image, id)
	if err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeGeometry,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSGeometryResponse{Image: image, ID: id, Geometry: ann.Geometry}),
	})
}

// handleWheel steps the zoom around the cursor
func (wsh *WebSocketHandler) handleWheel(ws *websocket.Conn, conn *editorConn, msg WSMessage) {
	var payload WheelPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(ws, "invalid wheel payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	if err := payload.Viewport.Validate(); err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}

	next, err := payload.Viewport.StepZoom(payload.Focal, payload.Direction, wsh.sessions.Settings().Limits)
	if err != nil {
		wsh.sendErr(ws, msg.ID, err)
		return
	}

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeViewport,
		ID:        msg.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSViewportResponse{Viewport: next}),
	})
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

// sendErr classifies a core error onto the protocol's stable codes.
func (wsh *WebSocketHandler) sendErr(ws *websocket.Conn, id string, err error) {
	apiErr := classify(err)
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: apiErr.Message,
			Code:    apiErr.Code,
		}),
	})
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

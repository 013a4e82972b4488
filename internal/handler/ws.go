package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kainult/price-platform/internal/middleware"
	"github.com/kainult/price-platform/internal/model"
	"github.com/kainult/price-platform/internal/service"
	"github.com/kainult/price-platform/internal/session"
	"github.com/kainult/price-platform/pkg/logger"
	"github.com/kainult/price-platform/pkg/metrics"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxFrameBytes  = 16 << 10
	wsReplyQueueSize = 8
)

// WSHandler serves chat sessions over WebSocket. The server pushes the
// same snapshot and update frames as the SSE endpoint; clients send
// submit and cancel frames.
type WSHandler struct {
	service  *service.ChatService
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler. An allowed origin of "*"
// accepts any origin.
func NewWSHandler(svc *service.ChatService, allowedOrigins []string, log *logger.Logger) *WSHandler {
	anyOrigin := slices.Contains(allowedOrigins, "*")
	return &WSHandler{
		service: svc,
		logger:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// Serve handles GET /api/v1/sessions/{id}/ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}

	snap, sub, err := h.service.Subscribe(ctx, userID, sessionID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.IncrementSubscribers("ws")
	defer metrics.DecrementSubscribers("ws")

	c := &wsConn{
		conn:      conn,
		userID:    userID,
		sessionID: sessionID,
		replies:   make(chan model.Frame, wsReplyQueueSize),
		stopped:   make(chan struct{}),
		readDone:  make(chan struct{}),
		log:       h.logger.WithSession(sessionID, userID),
	}

	go h.readPump(ctx, c)
	h.writePump(c, snap, sub)

	close(c.stopped)
	conn.Close()
	<-c.readDone
}

type wsConn struct {
	conn      *websocket.Conn
	userID    string
	sessionID string
	replies   chan model.Frame
	stopped   chan struct{}
	readDone  chan struct{}
	log       *logger.Logger
}

func (c *wsConn) reply(f model.Frame) bool {
	select {
	case c.replies <- f:
		return true
	case <-c.stopped:
		return false
	}
}

// readPump reads client frames until the connection fails.
func (h *WSHandler) readPump(ctx context.Context, c *wsConn) {
	defer close(c.readDone)

	c.conn.SetReadLimit(wsMaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}

		if f, ok := h.handleFrame(ctx, c, data); ok {
			if !c.reply(f) {
				return
			}
		}
	}
}

// handleFrame applies one client frame and returns an error frame to send
// back, if any.
func (h *WSHandler) handleFrame(ctx context.Context, c *wsConn, data []byte) (model.Frame, bool) {
	var frame model.ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return errorFrame("invalid_frame", "frame must be a JSON object"), true
	}

	switch frame.Type {
	case model.ClientFrameSubmit:
		if err := middleware.ValidateMessageContent(frame.Content); err != nil {
			return errorFrame("invalid_message", err.Error()), true
		}
		if _, err := h.service.Submit(ctx, c.userID, c.sessionID, frame.Content); err != nil {
			switch {
			case errors.Is(err, session.ErrBusy):
				return errorFrame("busy", err.Error()), true
			case errors.Is(err, service.ErrSessionNotFound):
				return errorFrame("not_found", err.Error()), true
			default:
				c.log.Error("WebSocket submit failed", zap.Error(err))
				return errorFrame("internal", "failed to submit message"), true
			}
		}
	case model.ClientFrameCancel:
		if _, err := h.service.Cancel(ctx, c.userID, c.sessionID); err != nil {
			return errorFrame("not_found", err.Error()), true
		}
	default:
		return errorFrame("invalid_frame", "unknown frame type"), true
	}
	return model.Frame{}, false
}

// writePump owns all writes to the connection.
func (h *WSHandler) writePump(c *wsConn, snap session.Snapshot, sub *session.Subscription) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	write := func(f model.Frame) error {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return c.conn.WriteJSON(f)
	}

	if err := write(model.Frame{Type: model.EventTypeSnapshot, Data: snap}); err != nil {
		return
	}

	for {
		select {
		case u, ok := <-sub.C:
			if !ok {
				write(errorFrame("stream_closed", "session closed or subscriber fell behind; reconnect for a fresh snapshot"))
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := write(model.Frame{Type: model.EventTypeUpdate, Data: u}); err != nil {
				return
			}

		case f := <-c.replies:
			if err := write(f); err != nil {
				return
			}

		case <-c.readDone:
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorFrame(code, message string) model.Frame {
	return model.Frame{
		Type: model.EventTypeError,
		Data: &model.ErrorEvent{Code: code, Message: message},
	}
}

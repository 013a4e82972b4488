package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kainult/price-platform/internal/middleware"
	"github.com/kainult/price-platform/internal/model"
	"github.com/kainult/price-platform/internal/service"
	"github.com/kainult/price-platform/pkg/logger"
	"github.com/kainult/price-platform/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	service   *service.ChatService
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(svc *service.ChatService, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamHandler{
		service:   svc,
		logger:    log,
		heartbeat: heartbeat,
	}
}

// Stream handles GET /api/v1/sessions/{id}/stream. It sends the current
// transcript as a snapshot event and then one update event per session
// transition until the client leaves or the session goes away.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snap, sub, err := h.service.Subscribe(ctx, userID, sessionID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.IncrementSubscribers("sse")
	defer metrics.DecrementSubscribers("sse")

	log := h.logger.WithSession(sessionID, userID)

	if err := sendSSEEvent(w, flusher, model.EventTypeSnapshot, snap); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case u, ok := <-sub.C:
			if !ok {
				sendSSEEvent(w, flusher, model.EventTypeError, &model.ErrorEvent{
					Code:    "stream_closed",
					Message: "session closed or subscriber fell behind; reconnect for a fresh snapshot",
				})
				return
			}
			if err := sendSSEEvent(w, flusher, model.EventTypeUpdate, u); err != nil {
				log.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, model.EventTypeHeartbeat, &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event model.EventType, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

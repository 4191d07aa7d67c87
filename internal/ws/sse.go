package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/auth"
	"github.com/postmaster/postmaster-backend/internal/store"
)

type SSEHandler struct {
	subscriber Subscriber
	logger     *zap.SugaredLogger
	heartbeat  time.Duration
}

func NewSSEHandler(subscriber Subscriber, logger *zap.SugaredLogger) *SSEHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SSEHandler{
		subscriber: subscriber,
		logger:     logger,
		heartbeat:  30 * time.Second,
	}
}

// HandleSSE streams the signed-in user's notifications until the client
// disconnects.
func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	channel := store.NotificationChannel(user.ID)
	sub, err := h.subscriber.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Errorw("Notification subscribe failed", "user_id", user.ID, "error", err)
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.logger.Debugw("SSE connection established", "user_id", user.ID)
	h.sendEvent(w, "connected", "SSE connection established", nil)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected", "user_id", user.ID)
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg, ok := <-messages:
			if !ok {
				return
			}
			var data interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
				h.logger.Warnw("Failed to parse message payload", "error", err)
				continue
			}
			h.sendEvent(w, "notification", msg.Channel, data)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType, id string, data interface{}) {
	payload := []byte("{}")
	if data != nil {
		var err error
		if payload, err = json.Marshal(data); err != nil {
			h.logger.Errorw("Failed to marshal SSE data", "error", err)
			return
		}
	}
	fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", eventType, id, payload)

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

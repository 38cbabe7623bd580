package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"canditrack/internal/common"
	"canditrack/internal/platform/notify"
)

const eventsKeepAlive = 25 * time.Second

// QueueEventsHandler streams queue_updated events as Server-Sent Events.
type QueueEventsHandler struct {
	subscriber notify.Subscriber
	logger     *slog.Logger
}

func NewQueueEventsHandler(sub notify.Subscriber, logger *slog.Logger) *QueueEventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueEventsHandler{subscriber: sub, logger: logger}
}

func (h *QueueEventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.subscriber == nil {
		common.RespondWithError(w, http.StatusServiceUnavailable, "Live queue updates are not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		common.RespondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	events, err := h.subscriber.Subscribe(r.Context())
	if err != nil {
		h.logger.Error("queue event subscription failed", "err", err)
		common.RespondWithError(w, http.StatusServiceUnavailable, "Live queue updates unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

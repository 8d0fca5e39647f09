package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"skipper/internal/events"
	"skipper/internal/logging"
)

// heartbeatInterval keeps intermediary proxies from closing idle streams.
// Heartbeats are SSE comments, not domain events.
const heartbeatInterval = 30 * time.Second

// StreamHandler serves the live event streams over SSE.
type StreamHandler struct {
	registry *events.Registry
	logger   logging.Logger
}

func NewStreamHandler(registry *events.Registry) *StreamHandler {
	return &StreamHandler{
		registry: registry,
		logger:   logging.NewComponentLogger("StreamHandler"),
	}
}

// Session streams a session-scoped channel. No authentication: session ids
// are unguessable and act as bearer tokens.
func (h *StreamHandler) Session(c *gin.Context) {
	channelID := c.Param("channelId")

	ch, handle, err := h.registry.Subscribe(c.Request.Context(), channelID, events.ScopeSession, "")
	if err != nil {
		rejectStream(c, err)
		return
	}
	defer handle.Detach()

	h.logger.Info("SSE connection established for session channel %s", channelID)
	h.stream(c, channelID, ch, false)
}

// Execution streams an execution-scoped channel. The caller must present an
// identity and own the execution; the stream closes itself after forwarding
// a terminal event.
func (h *StreamHandler) Execution(c *gin.Context) {
	channelID := c.Param("channelId")
	userID := c.GetHeader("X-User-ID")

	ch, handle, err := h.registry.Subscribe(c.Request.Context(), channelID, events.ScopeExecution, userID)
	if err != nil {
		rejectStream(c, err)
		return
	}
	defer handle.Detach()

	h.logger.Info("SSE connection established for execution channel %s (user %s)", channelID, userID)
	h.stream(c, channelID, ch, true)
}

// rejectStream maps an authorization failure to a terminal status without
// ever opening the stream. Shared by the SSE and WebSocket endpoints so both
// transports report the same status per failure.
func rejectStream(c *gin.Context, err error) {
	switch {
	case errors.Is(err, events.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, events.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
	case errors.Is(err, events.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not the owner of this channel"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *StreamHandler) stream(c *gin.Context, channelID string, ch <-chan events.Event, closeOnTerminal bool) {
	w := c.Writer

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("serialize event on channel %s: %v", channelID, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				h.logger.Error("write SSE message on channel %s: %v", channelID, err)
				return
			}
			w.Flush()

			if closeOnTerminal && event.IsTerminal() {
				h.logger.Info("closing stream for channel %s after terminal event %s", channelID, event.Type)
				return
			}

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			w.Flush()

		case <-c.Request.Context().Done():
			h.logger.Info("SSE connection closed for channel %s", channelID)
			return
		}
	}
}

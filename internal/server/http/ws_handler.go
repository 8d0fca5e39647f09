package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"skipper/internal/events"
	"skipper/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WSHandler is the WebSocket variant of the session stream for clients that
// cannot consume SSE. Same channel semantics; events go out as JSON frames.
type WSHandler struct {
	registry *events.Registry
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewWSHandler(registry *events.Registry) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.NewComponentLogger("WSHandler"),
	}
}

// Session upgrades the connection and forwards the session channel.
func (h *WSHandler) Session(c *gin.Context) {
	channelID := c.Param("channelId")

	ch, handle, err := h.registry.Subscribe(c.Request.Context(), channelID, events.ScopeSession, "")
	if err != nil {
		rejectStream(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		handle.Detach()
		h.logger.Error("websocket upgrade for channel %s: %v", channelID, err)
		return
	}
	defer conn.Close()
	defer handle.Detach()

	h.logger.Info("websocket connection established for channel %s", channelID)

	// Reader goroutine exists only to observe the close frame; inbound
	// messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Error("write websocket frame on channel %s: %v", channelID, err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			h.logger.Info("websocket connection closed for channel %s", channelID)
			return

		case <-c.Request.Context().Done():
			return
		}
	}
}

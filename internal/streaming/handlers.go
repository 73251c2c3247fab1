package streaming

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sxriptor/colabify-app-sub001/internal/common/logger"
	"github.com/Sxriptor/colabify-app-sub001/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func marshalEvent(event *eventbus.Event) ([]byte, error) {
	return json.Marshal(event)
}

// WritePump relays messages from the client's send channel to its
// websocket connection, pinging periodically to detect dead peers.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump discards inbound messages (the stream is outbound-only) but
// keeps the connection's read deadline alive and detects client
// disconnects.
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WSHandler upgrades HTTP requests into Hub-registered clients.
type WSHandler struct {
	hub *Hub
	log *logger.Logger
}

// NewWSHandler creates a WSHandler over hub.
func NewWSHandler(hub *Hub, log *logger.Logger) *WSHandler {
	return &WSHandler{hub: hub, log: log.With(zap.String("component", "ws-handler"))}
}

// StreamProject upgrades the connection and subscribes it to one
// project's activity subject.
// GET /api/v1/projects/:projectId/stream
func (h *WSHandler) StreamProject(c *gin.Context) {
	projectID := c.Param("projectId")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "message": "projectId is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("project_id", projectID), zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), conn, h.hub, h.log)
	h.hub.Register(client)
	h.hub.Subscribe(client, projectID)

	go client.WritePump()
	go client.ReadPump()
}

// SetupRoutes registers the streaming endpoint under group.
func SetupRoutes(group *gin.RouterGroup, handler *WSHandler) {
	group.GET("/projects/:projectId/stream", handler.StreamProject)
}

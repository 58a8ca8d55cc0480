package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"userdash/pkg/logging"
	"userdash/pkg/response"
	"userdash/pkg/users"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Handler serves the user change feed and publishes service mutations to it.
type Handler struct {
	manager *ConnectionManager
	log     *slog.Logger
	now     func() time.Time
}

func NewHandler(manager *ConnectionManager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{manager: manager, log: log, now: time.Now}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced by the HTTP middleware in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws/users", h.HandleWebSocketGin)
	router.GET("/ws/users/status", h.GetStatusGin)
}

// PublishChange implements users.ChangePublisher.
func (h *Handler) PublishChange(kind users.ChangeKind, id int64, u *users.User) {
	evt := Event{
		ID:     uuid.NewString(),
		Type:   kind,
		UserID: id,
		User:   u,
		At:     h.now().UTC(),
	}
	n := h.manager.Broadcast(evt)
	h.log.Debug("change published", slog.String("type", string(kind)), slog.Int64("user_id", id), slog.Int("subscribers", n))
}

// HandleWebSocketGin upgrades the request and streams change events until the peer goes away.
func (h *Handler) HandleWebSocketGin(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", logging.Err(err))
		return
	}

	client := h.manager.AddClient(uuid.NewString(), conn)
	h.log.Info("change feed subscriber connected", slog.String("client_id", client.ID))
	_ = h.manager.SendTo(client.ID, Hello{Type: "hello", ClientID: client.ID})

	go h.readLoop(client)
	go h.writeLoop(client)
}

// @Summary      Change feed status
// @Tags         events
// @Produce      json
// @Success      200 {object} response.APIResponse
// @Router       /ws/users/status [get]
func (h *Handler) GetStatusGin(c *gin.Context) {
	response.SendAPIResponse(c, http.StatusOK, true, "change feed status", gin.H{
		"subscribers": h.manager.Count(),
	})
}

// readLoop drains inbound frames so control messages are processed.
func (h *Handler) readLoop(client *Client) {
	defer func() {
		h.manager.RemoveClient(client.ID)
		client.Conn.Close()
		h.log.Info("change feed subscriber disconnected", slog.String("client_id", client.ID))
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket error", slog.String("client_id", client.ID), logging.Err(err))
			}
			return
		}
	}
}

// writeLoop closes the connection on exit so readLoop unregisters the client at once.
func (h *Handler) writeLoop(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case <-client.Done:
			return

		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(message); err != nil {
				h.log.Warn("write error", slog.String("client_id", client.ID), logging.Err(err))
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Warn("ping error", slog.String("client_id", client.ID), logging.Err(err))
				return
			}
		}
	}
}

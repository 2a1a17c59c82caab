package httpserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var hubUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans notification payloads out to every connected websocket client.
// It satisfies notify.Sender so the reminder loop can push straight to
// browsers.
type Hub struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		log:     logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Serve upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := hubUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", n).Msg("notification client connected")

	// drain inbound frames so pings and close frames are processed
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
	return nil
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

type notificationPayload struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Send delivers one reminder to every connected client. Slow or broken
// clients are dropped rather than blocking the sweep.
func (h *Hub) Send(taskID, title, body string) {
	payload := notificationPayload{Type: "notification", TaskID: taskID, Title: title, Body: body}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(payload); err != nil {
			h.log.Warn().Err(err).Msg("dropping notification client")
			h.remove(conn)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

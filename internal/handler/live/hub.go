package live

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/flowchat/internal/middleware"
)

const writeWait = 2 * time.Second

type outgoingMessage struct {
	Type      string `json:"type"`
	ActiveID  int    `json:"activeId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Hub pushes redraw events to the browser tabs of a UI session whenever its
// chat store changes. It implements the store's Notifier.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

// NewHub 创建WebSocket推送中心
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[string]map[*client]struct{}),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and keeps the socket registered until
// the browser disconnects. Incoming frames are ignored.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	store, ok := middleware.StoreFrom(r.Context())
	if !ok {
		http.Error(w, "ui session unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	key := store.Key()
	c := &client{conn: conn}
	h.register(key, c)
	defer h.unregister(key, c)

	if err := c.send(outgoingMessage{Type: "hello", ActiveID: store.ActiveID(), Timestamp: time.Now().UnixMilli()}); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Notify sends a redraw event to every socket of the UI session key.
func (h *Hub) Notify(key string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[key]))
	for c := range h.clients[key] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := outgoingMessage{Type: "redraw", Timestamp: time.Now().UnixMilli()}
	for _, c := range targets {
		if err := c.send(msg); err != nil {
			h.logger.Debug("dropping websocket client", "error", err)
			c.conn.Close()
		}
	}
}

// Connections reports how many sockets are open for key.
func (h *Hub) Connections(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key])
}

func (h *Hub) register(key string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[key] == nil {
		h.clients[key] = make(map[*client]struct{})
	}
	h.clients[key][c] = struct{}{}
	h.logger.Debug("websocket connected", "ui", key, "total", len(h.clients[key]))
}

func (h *Hub) unregister(key string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()
	delete(h.clients[key], c)
	if len(h.clients[key]) == 0 {
		delete(h.clients, key)
	}
}

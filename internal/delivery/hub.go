package delivery

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/pkg/logger"
	"github.com/charlesng35/roomnotify/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 64
)

// Stream events.
const (
	EventUpdate = "notification.update"
	EventPong   = "pong"
)

// Message is a JSON payload delivered to stream clients.
type Message struct {
	Event string                   `json:"event"`
	Data  *notification.UpdateView `json:"data,omitempty"`
}

type controlMessage struct {
	Action string   `json:"action"`
	Rooms  []string `json:"rooms"`
}

// Hub fans notification updates out to websocket clients. A client receives
// updates for the rooms it subscribed to, or for every room when it has none.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*connection]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

var _ Sink = (*Hub)(nil)

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
		log: logger.WithModule("delivery.hub"),
	}
}

// Subscription describes who is listening and to which rooms.
type Subscription struct {
	Subject string
	// Rooms is the initial room filter. Empty means every permitted room.
	Rooms []string
	// Allow limits the rooms the client may ever see. Nil permits all.
	Allow func(roomID string) bool
}

// Serve upgrades the HTTP connection and streams updates until the client leaves.
func (h *Hub) Serve(sub Subscription, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := newConnection(h, conn, sub.Subject)
	client.allow = sub.Allow
	client.subscribe(sub.Rooms)
	h.register(client)

	go client.writeLoop()
	client.readLoop()
}

// Deliver implements Sink.
func (h *Hub) Deliver(_ context.Context, updates []notification.UpdateView) error {
	for i := range updates {
		h.Broadcast(updates[i])
	}
	return nil
}

// Broadcast sends one update to every interested client.
func (h *Hub) Broadcast(update notification.UpdateView) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.wants(update.RoomID) {
			u := update
			h.enqueue(client, Message{Event: EventUpdate, Data: &u})
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	metrics.StreamClients.Set(float64(len(h.clients)))
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	metrics.StreamClients.Set(float64(len(h.clients)))
}

func (h *Hub) enqueue(client *connection, message Message) {
	select {
	case client.send <- message:
	default:
		h.log.Warn("dropping backpressure client", zap.String("subject", client.subject))
		go client.close()
	}
}

type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	subject string
	send    chan Message
	once    sync.Once

	allow func(roomID string) bool

	mu    sync.RWMutex
	rooms map[string]struct{}
}

func newConnection(hub *Hub, conn *websocket.Conn, subject string) *connection {
	return &connection{
		hub:     hub,
		socket:  conn,
		subject: subject,
		send:    make(chan Message, defaultBufferSize),
		rooms:   make(map[string]struct{}),
	}
}

func (c *connection) wants(roomID string) bool {
	if c.allow != nil && !c.allow(roomID) {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.rooms) == 0 {
		return true
	}
	_, ok := c.rooms[roomID]
	return ok
}

func (c *connection) subscribe(rooms []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, room := range rooms {
		if room = strings.TrimSpace(room); room != "" {
			c.rooms[room] = struct{}{}
		}
	}
}

func (c *connection) unsubscribe(rooms []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, room := range rooms {
		delete(c.rooms, strings.TrimSpace(room))
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("subject", c.subject), zap.Error(err))
			}
			break
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("subject", c.subject), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.subscribe(ctrl.Rooms)
		case "unsubscribe":
			c.unsubscribe(ctrl.Rooms)
		case "ping":
			c.hub.mu.RLock()
			if _, ok := c.hub.clients[c]; ok {
				c.hub.enqueue(c, Message{Event: EventPong})
			}
			c.hub.mu.RUnlock()
		default:
			c.hub.log.Debug("unsupported control action", zap.String("action", ctrl.Action))
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				go c.close()
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				go c.close()
				return
			}
		}
	}
}

// close unregisters the client before closing send, so Broadcast never
// writes to a closed channel.
func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

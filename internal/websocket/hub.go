package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Message is the frame sent to browser clients: the event name plus the
// forwarded payload, untouched.
type Message struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub manages WebSocket connections and pushes forwarded events to the
// clients of each event's recipients. A client connected without a user id
// watches the whole board and receives every event.
type Hub struct {
	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	logger     *slog.Logger
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type outbound struct {
	event      string
	data       []byte
	recipients map[string]struct{}
}

// wants reports whether c should receive m. Events without recipients go
// to everyone.
func (c *client) wants(m outbound) bool {
	if c.userID == "" || len(m.recipients) == 0 {
		return true
	}
	_, ok := m.recipients[c.userID]
	return ok
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
}

// Run starts the hub's event loop. Should be called as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "user_id", c.userID, "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "user_id", c.userID, "total_clients", total)

		case m := <-h.broadcast:
			h.mu.Lock()
			delivered := 0
			for c := range h.clients {
				if !c.wants(m) {
					continue
				}
				select {
				case c.send <- m.data:
					delivered++
				default:
					// Slow consumer.
					h.remove(c)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("websocket event pushed", "event", m.event, "clients", delivered)
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues event for delivery. The payload's "recipients" list, when
// present, narrows delivery to those users. It never blocks; when the
// broadcast buffer is full the event is dropped.
func (h *Hub) Broadcast(event string, payload json.RawMessage) {
	if !json.Valid(payload) {
		h.logger.Error("refusing to broadcast invalid JSON payload", "event", event)
		return
	}
	var addressed struct {
		Recipients []string `json:"recipients"`
	}
	// Payloads that are not objects with a recipients list are unaddressed.
	_ = json.Unmarshal(payload, &addressed)
	data, err := json.Marshal(Message{Event: event, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "error", err, "event", event)
		return
	}

	m := outbound{event: event, data: data}
	if len(addressed.Recipients) > 0 {
		m.recipients = make(map[string]struct{}, len(addressed.Recipients))
		for _, id := range addressed.Recipients {
			m.recipients[id] = struct{}{}
		}
	}

	select {
	case h.broadcast <- m:
	default:
		h.logger.Warn("websocket broadcast channel full, dropping event", "event", event)
	}
}

// HandleWebSocket upgrades the connection and registers the client under the
// optional userId query parameter.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: strings.TrimSpace(r.URL.Query().Get("userId")),
		send:   make(chan []byte, 256),
	}

	h.register <- c

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection (handles pings/disconnects).
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

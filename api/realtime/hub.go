// Package realtime pushes report events to connected clients over
// WebSockets. Delivery is fire and forget; a slow or dead connection is
// dropped, never waited on.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// sendBuffer is how many pending events a client may fall behind
	// before the hub gives up on it.
	sendBuffer = 16

	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Adjust CORS as needed, e.g., check r.Header.Get("Origin")
	},
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan envelope
}

// writePump drains the send channel onto the connection. A stalled peer
// trips the write deadline, the connection closes, and the read loop in
// ServeWS deregisters the client.
func (c *client) writePump() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			zap.S().Warnw("realtime write failed", "event", msg.Event, "error", err)
			c.conn.Close()
			return
		}
	}
	c.conn.Close()
}

// Hub tracks connected clients and broadcasts events to all of them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ServeWS upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan envelope, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	zap.S().Infow("realtime client connected", "clients", count)

	go c.writePump()

	// Drain reads until the peer closes so we notice the disconnect.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	h.remove(c)
	zap.S().Infow("realtime client disconnected")
}

// Publish queues the event for every connected client and returns without
// waiting on any of them. A client whose buffer is full is evicted.
func (h *Hub) Publish(event string, payload interface{}) {
	msg := envelope{Event: event, Data: payload}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			zap.S().Warnw("dropping slow realtime client", "event", event)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// remove deregisters the client. Whichever side removes it from the map
// closes the send channel, so eviction and disconnect cannot double-close.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// ServeWSHandler wraps ServeWS as an http.Handler.
func (h *Hub) ServeWSHandler() http.Handler {
	return http.HandlerFunc(h.ServeWS)
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

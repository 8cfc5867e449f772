package publish

import (
	"net/http"
	"sync"
	"time"

	"FlowGuard/internal/metrics"
	"FlowGuard/internal/model"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans event batches out to WebSocket subscribers. A client whose send
// buffer is full is disconnected rather than slowing everyone else down.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.Discard()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// Name identifies the publisher in logs.
func (h *Hub) Name() string { return "websocket" }

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade WebSocket")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.metrics.WSClients.Set(float64(len(h.clients)))
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Publish encodes the batch once and queues it for every client.
func (h *Hub) Publish(batch model.Batch) error {
	data, err := Encode(batch)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.WithField("remote", c.conn.RemoteAddr().String()).Warn("WebSocket client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
	return nil
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.WSClients.Set(float64(len(h.clients)))
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.WithError(err).Debug("WebSocket write failed")
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/events"
)

// Envelope is one WebSocket broadcast message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcast message types.
const (
	msgFileUpdate     = "file_update"
	msgFileProgress   = "file_progress_update"
	msgScannerStatus  = "scanner_status"
	msgStorageUpdate  = "storage_update"
	msgMountStatus    = "mount_status"
	clientSendBacklog = 64
	writeWait         = 10 * time.Second
)

// Hub fans domain events out to connected WebSocket clients. A slow
// client drops messages rather than blocking the bus.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	unsubs []func()
}

// client owns its connection; writeLoop is the only writer, so event
// envelopes and pong replies are serialized through channels.
type client struct {
	conn *websocket.Conn
	send chan Envelope
	pong chan struct{}
}

// NewHub creates the hub and subscribes it to the event bus.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The control API is bound to localhost; the UI is served
			// from a different origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}

	forward := func(msgType string) func(string, any) {
		return func(_ string, data any) {
			h.broadcast(Envelope{Type: msgType, Data: data})
		}
	}

	h.unsubs = append(h.unsubs,
		bus.Subscribe(events.TopicFileStatus, forward(msgFileUpdate)),
		bus.Subscribe(events.TopicFileProgress, forward(msgFileProgress)),
		bus.Subscribe(events.TopicScannerStatus, forward(msgScannerStatus)),
		bus.Subscribe(events.TopicStorageStatus, forward(msgStorageUpdate)),
		bus.Subscribe(events.TopicMountStatus, forward(msgMountStatus)),
	)
	return h
}

// Close unsubscribes from the bus and disconnects all clients.
func (h *Hub) Close() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeHTTP handles GET /api/ws/live.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Envelope, clientSendBacklog),
		pong: make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop consumes client messages; a "ping" text answers "pong"
// through the write loop. Any read error disconnects the client.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)

	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.TextMessage && string(payload) == "ping" {
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}
	}
}

// writeLoop is the single writer for the connection.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				h.drop(c)
				return
			}
		case <-c.pong:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// broadcast queues the envelope for every client, dropping it for
// clients whose backlog is full.
func (h *Hub) broadcast(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			logger.Debug("websocket client too slow, dropping message")
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

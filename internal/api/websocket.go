package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bujo/bujo/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local single-user backend; clients connect from file:// and localhost.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHub fans event notifications out to connected clients. All writes
// go through the Run goroutine; gorilla connections allow only one concurrent
// writer.
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	broadcast chan Message
	done      chan struct{}
	stop      sync.Once
}

// NewWebSocketHub creates an empty hub. Call Run to start delivery.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 64),
		done:      make(chan struct{}),
	}
}

// Message is the envelope pushed to clients.
type Message struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Run delivers queued broadcasts until Close is called. Write failures drop
// the client.
func (h *WebSocketHub) Run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()

			for _, conn := range conns {
				if err := conn.WriteJSON(msg); err != nil {
					h.remove(conn)
				}
			}
		case <-h.done:
			return
		}
	}
}

// HandleWS upgrades the connection and keeps it registered until the client
// goes away. Client frames are read and discarded; the socket is push-only.
func (h *WebSocketHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	logging.WithField("clients", count).Debug("websocket client connected")

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast queues a typed message for every connected client. Delivery is
// best effort; the message is dropped when the queue is full or the hub is
// not running.
func (h *WebSocketHub) Broadcast(messageType string, payload any) {
	msg := Message{
		Type:      messageType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- msg:
	default:
		logging.Debug("websocket broadcast queue full, dropping %s", messageType)
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the Run loop and disconnects every client.
func (h *WebSocketHub) Close() {
	h.stop.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

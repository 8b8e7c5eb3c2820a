package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"bus-tracker/internal/publisher"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 32
	writeWait    = 5 * time.Second
)

// StreamMessage is one frame on the live stream.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans position and alert events out to websocket clients. It
// implements publisher.Sink; a client whose buffer is full misses the
// frame instead of stalling the publisher.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Hub) PublishPosition(msg publisher.PositionMessage) error {
	return h.broadcast(StreamMessage{Type: "position", Data: msg})
}

func (h *Hub) PublishAlert(msg publisher.AlertMessage) error {
	return h.broadcast(StreamMessage{Type: "alert", Data: msg})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(m StreamMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams events until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	log.Printf("stream client connected: %s", c.id)

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// Reads only detect the close; clients send nothing meaningful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	close(done)
	conn.Close()
	log.Printf("stream client disconnected: %s", c.id)
}

func (h *Hub) writeLoop(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Printf("stream write to %s: %v", c.id, err)
				c.conn.Close()
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.conn.Close()
	}
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // game clients connect from anywhere
	},
}

// wsClient represents one connected player channel
type wsClient struct {
	hub  *Hub
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub manages player WebSocket connections keyed by connection id. It is
// the in-process implementation of the push channel the notifier writes
// to: payloads are addressed to a connection id, not broadcast.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*wsClient
	onDisconnect func(connectionID string)
}

// NewHub creates a new connection hub. onDisconnect runs after a client
// channel goes away for any reason (client close, network error, server
// close) and is where ticket cancellation hooks in.
func NewHub(onDisconnect func(connectionID string)) *Hub {
	return &Hub{
		clients:      make(map[string]*wsClient),
		onDisconnect: onDisconnect,
	}
}

// Register upgrades an HTTP request to a WebSocket connection and returns
// the assigned connection id.
func (h *Hub) Register(w http.ResponseWriter, req *http.Request) (string, error) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return "", fmt.Errorf("upgrading connection: %w", err)
	}

	client := &wsClient{
		hub:  h,
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("connectionId", client.id).Int("total", total).Msg("hub: client connected")

	go client.writePump()
	go client.readPump()

	return client.id, nil
}

// Send delivers a payload to one connection. Unknown connection ids and
// full client buffers are delivery failures.
func (h *Hub) Send(ctx context.Context, connectionID string, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connectionID]
	if !ok {
		return fmt.Errorf("connection %s not registered", connectionID)
	}

	// Non-blocking send under the read lock: Close holds the write lock
	// while it closes the channel, so this cannot race with it.
	select {
	case client.send <- data:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", connectionID)
	}
}

// Close half-closes a client channel. Closing an unknown or already-closed
// connection is an error the caller is expected to tolerate. A server-side
// close deregisters the connection first, so the disconnect hook does not
// fire for it.
func (h *Hub) Close(ctx context.Context, connectionID string) error {
	h.mu.Lock()
	client, ok := h.clients[connectionID]
	if ok {
		delete(h.clients, connectionID)
		close(client.send)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("connection %s not registered", connectionID)
	}
	return nil
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// unregister removes a client and fires the disconnect hook once.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, present := h.clients[client.id]
	delete(h.clients, client.id)
	total := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	log.Info().Str("connectionId", client.id).Int("total", total).Msg("hub: client disconnected")
	if h.onDisconnect != nil {
		h.onDisconnect(client.id)
	}
}

// readPump reads messages from the WebSocket (and handles close)
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("connectionId", c.id).Msg("hub: read error")
			}
			break
		}
		// Clients don't send anything after the handshake
	}
}

// writePump sends messages to the WebSocket
func (c *wsClient) writePump() {
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

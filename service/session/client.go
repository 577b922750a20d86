package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one live websocket connection on this gateway node.
// Each connection has an independent outbound queue consumed by a single
// writer goroutine. The queue is closed only through Close, under the
// same lock that guards trySend, so a broadcast racing a disconnect can
// never hit a closed channel.
type Client struct {
	ConnID string
	WS     *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new client connection object.
func NewClient(connID string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
	}
}

// trySend queues a frame for the writer goroutine. A closed client drops
// the frame; a full queue drops it too, a slow client must never block
// the fanout pool.
func (c *Client) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// Close marks the client dead and closes the send queue so WritePump
// drains and exits. Idempotent, and safe against concurrent trySend.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// WritePump drains the send queue onto the wire; it returns when the queue
// closes or a write fails. Delivery to a closed connection is a no-op from
// the session layer's point of view.
func (c *Client) WritePump() {
	for data := range c.Send {
		if err := c.WS.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

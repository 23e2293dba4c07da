package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

const (
	// time allowed to write a frame to the peer
	writeWait = 10 * time.Second
	// time allowed to read the next pong before the connection is considered dead
	pongWait = 60 * time.Second
	// ping period, must be less than pongWait
	pingPeriod = 54 * time.Second
	// maximum inbound frame size
	maxMessageSize = 4096
	// outbound event buffer per connection
	sendBuffer = 256
)

// Client is one live connection. It starts unbound (opened), becomes bound to
// exactly one user identity on a join event (joined), and ends closed. The
// lifecycle fields identity and joined are written only on the connection's
// read goroutine; other goroutines observe them through the registry, whose
// mutex orders the accesses.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	identity int64
	joined   bool

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   xid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// enqueue hands an encoded event to the write pump without blocking. Delivery
// is a single best-effort attempt: a closed client or a full buffer drops the
// event and reports false.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once, which in turn stops the
// write pump. Safe to call multiple times.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump consumes inbound frames and hands them to the hub one at a time,
// so a single sender's messages are persisted and delivered in emit order.
// On any read error the connection is torn down through the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debugf("Connection %s read error: %v", c.id, err)
			}
			return
		}
		c.hub.dispatch(c, raw)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. Exits when the channel is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

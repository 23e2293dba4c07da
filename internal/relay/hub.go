// Package relay implements the presence-tracked message router: a registry of
// online users, a per-connection lifecycle, and a dispatcher that persists
// messages before delivering them to the recipient's live connection.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub owns the lifecycle of every connection: it accepts them from the HTTP
// layer, runs their pumps, binds identities into the registry on join and
// tears the binding down on close. One hub per process.
type Hub struct {
	logger   *zap.SugaredLogger
	registry *Registry
	router   *Router
	decoder  decoder

	mu     sync.Mutex
	conns  map[*Client]struct{}
	closed bool

	wg sync.WaitGroup
}

func NewHub(logger *zap.SugaredLogger, registry *Registry, router *Router) *Hub {
	return &Hub{
		logger:   logger,
		registry: registry,
		router:   router,
		conns:    make(map[*Client]struct{}),
	}
}

// HandleConn adopts an upgraded websocket connection and starts its pumps.
// The connection stays unbound until a join event arrives.
func (h *Hub) HandleConn(conn *websocket.Conn) {
	c := newClient(h, conn)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	h.logger.Infof("Connection %s accepted from %s, %d total", c.id, conn.RemoteAddr(), total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// dispatch decodes one inbound frame and routes it. Called from the
// connection's read goroutine, one frame at a time. A background context is
// used for persistence deliberately: a message accepted before a disconnect
// is still saved even if the sender drops mid-flight.
func (h *Hub) dispatch(c *Client, raw []byte) {
	event, err := h.decoder.decode(raw)
	if err != nil {
		h.logger.Warnf("Connection %s sent invalid event: %v", c.id, err)
		return
	}

	switch ev := event.(type) {
	case JoinEvent:
		h.join(c, ev.UserID)

	case SendMessageEvent:
		err := h.router.RouteMessage(context.Background(), ev.SenderID, ev.ReceiverID, ev.ChatID, ev.Text)
		switch err {
		case nil, ErrEmptyText:
			// empty text is rejected locally with no event, per contract
		default:
			h.logger.Errorf("Connection %s failed to send message in chat %d: %v", c.id, ev.ChatID, err)
			if payload, encErr := encodeEvent(evError, errorPayload{Message: "message was not sent"}); encErr == nil {
				c.enqueue(payload)
			}
		}

	case TypingEvent:
		h.router.RouteTyping(context.Background(), ev.ChatID, ev.UserID, ev.Stop)
	}
}

// join binds the connection to a user identity and announces the user online
// to everyone else. A repeated join on the same connection is ignored; a join
// with an identity already bound elsewhere replaces that binding, so the
// stale connection's eventual close will not announce the user offline.
func (h *Hub) join(c *Client, user int64) {
	if c.joined {
		h.logger.Warnf("Connection %s already joined as user %d, ignoring join as %d", c.id, c.identity, user)
		return
	}

	c.identity = user
	c.joined = true

	if prev := h.registry.Bind(user, c); prev != nil {
		h.logger.Infof("User %d rebound from connection %s to %s", user, prev.id, c.id)
	} else {
		h.logger.Infof("User %d online on connection %s", user, c.id)
	}

	h.router.BroadcastPresence(true, user)
}

// drop finishes a connection's life. Only the canonical binding for the
// identity announces the user offline; a connection that never joined, or
// whose identity was rebound by a faster reconnect, goes quietly.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	c.shutdown()

	if !c.joined {
		h.logger.Infof("Connection %s closed before joining", c.id)
		return
	}

	if h.registry.Unbind(c.identity, c) {
		h.logger.Infof("User %d offline, connection %s closed", c.identity, c.id)
		h.router.BroadcastPresence(false, c.identity)
	} else {
		h.logger.Infof("Connection %s closed, user %d already rebound", c.id, c.identity)
	}
}

// Shutdown closes every connection and waits for their pumps to finish,
// giving up after timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.logger.Infof("Closing %d connections", len(conns))
	for _, c := range conns {
		if c.conn != nil {
			c.conn.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("All connection pumps finished")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Shutdown timeout reached, some pumps may still be running")
		return context.DeadlineExceeded
	}
}

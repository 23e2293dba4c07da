package relay

import "sync"

// Registry maps a user id to its active connection and is the single source
// of truth for who is online. The mutex guards only the map itself; callers
// must never hold it across I/O, and the registry never touches storage or
// emits events on its own.
type Registry struct {
	mu      sync.Mutex
	clients map[int64]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[int64]*Client)}
}

// Bind maps user to c, replacing any previous binding so a reconnect needs no
// explicit logout. The replaced client, if any, is returned; the registry
// never closes connections itself.
func (r *Registry) Bind(user int64, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.clients[user]
	r.clients[user] = c
	return prev
}

// Lookup returns the connection currently bound to user, if any.
func (r *Registry) Lookup(user int64) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[user]
	return c, ok
}

// Unbind removes the binding for user only while it still points at c and
// reports whether an entry was removed. A stale reference left by a fast
// reconnect therefore cannot evict the newer binding.
func (r *Registry) Unbind(user int64, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[user] != c {
		return false
	}
	delete(r.clients, user)
	return true
}

// Snapshot returns a copy of all currently bound connections. Fan-out
// iterates over the copy, never over the live map.
func (r *Registry) Snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

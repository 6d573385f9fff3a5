package server

import "sync"

// registry tracks the connected clients. Snapshots are taken per
// broadcast so a slow write never holds the map lock.
type registry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func newRegistry() *registry {
	return &registry{clients: make(map[string]*Client)}
}

func (r *registry) add(c *Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *registry) snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// closeAll sends every client a close frame and drops the connections.
func (r *registry) closeAll(code uint16, reason string) {
	for _, c := range r.snapshot() {
		c.close(code, reason)
	}
}

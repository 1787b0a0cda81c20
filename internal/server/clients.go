package server

import (
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ClientInfo describes one connected client.
type ClientInfo struct {
	Addr        string
	ConnectedAt time.Time
}

// ClientRegistry manages connected WebSocket clients thread-safely
type ClientRegistry struct {
	clients map[*websocket.Conn]ClientInfo
	mu      sync.RWMutex
}

// NewClientRegistry creates a new client registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[*websocket.Conn]ClientInfo),
	}
}

// Add registers a new client connection
func (r *ClientRegistry) Add(conn *websocket.Conn, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[conn] = ClientInfo{Addr: addr, ConnectedAt: time.Now()}
}

// Remove unregisters a client connection
func (r *ClientRegistry) Remove(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, conn)
}

// Count returns the number of connected clients
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Info returns the registration of conn, if any.
func (r *ClientRegistry) Info(conn *websocket.Conn) (ClientInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.clients[conn]
	return info, ok
}

// ForEach executes a function for each connected client
func (r *ClientRegistry) ForEach(fn func(*websocket.Conn)) {
	r.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(r.clients))
	for conn := range r.clients {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		fn(conn)
	}
}

// remoteHost strips the port so limits apply per machine.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

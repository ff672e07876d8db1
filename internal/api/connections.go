package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Connections tracks the live assistant streams of each user.
type Connections struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnections creates an empty connection set.
func NewConnections() *Connections {
	return &Connections{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a stream for a user.
func (c *Connections) Register(userID, connID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.active[userID]; !exists {
		c.active[userID] = make(map[string]*websocket.Conn)
	}
	c.active[userID][connID] = conn
	slog.Info("Assistant stream registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes a stream if it is still the registered one.
func (c *Connections) Unregister(userID, connID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conns, ok := c.active[userID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(c.active, userID)
			}
			slog.Info("Assistant stream unregistered", "user_id", userID, "conn_id", connID)
		}
	}
}

// CloseUser terminates every stream of a user, e.g. after idle eviction.
func (c *Connections) CloseUser(userID string) {
	c.mu.Lock()
	conns := c.active[userID]
	delete(c.active, userID)
	c.mu.Unlock()

	for id, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "assistant closed")
		slog.Info("Assistant stream closed", "user_id", userID, "conn_id", id)
	}
}

// Count returns the number of open streams for a user.
func (c *Connections) Count(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active[userID])
}

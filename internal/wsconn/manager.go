// Package wsconn implements the Mesh's C6 Connection Manager and C7
// Client Connection, grounded on the teacher's websocket executor
// (internal/agent/executor/llm/internal/websocket/websocket_executor.go)
// for the writeMu-guarded send / done-channel-guarded close idiom, and
// on original_source/.../service/websocket.py (ConnectionManager,
// ClientConnection) for the §4.6/§4.7 contract this package implements.
package wsconn

import (
	"sync"

	"github.com/rapidaai/mesh/internal/commons"
)

// Manager is the C6 Connection Manager: a thread-safe set of live
// Connections. Broadcast snapshots the set before iterating so
// concurrent Register/Deregister calls never affect an in-flight
// broadcast pass, and never blocks on a single slow client.
type Manager struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	logger commons.Logger
}

// NewManager builds an empty Manager.
func NewManager(logger commons.Logger) *Manager {
	return &Manager{
		conns:  make(map[string]*Connection),
		logger: logger,
	}
}

// Register adds a Connection to the live set, keyed by session ID.
func (m *Manager) Register(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.SessionID()] = conn
}

// Deregister removes a Connection from the live set, if present.
func (m *Manager) Deregister(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, sessionID)
}

// Get returns the live Connection for sessionID, if any.
func (m *Manager) Get(sessionID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[sessionID]
	return c, ok
}

// Broadcast enqueues payload on every currently-registered connection.
// It snapshots the set first, then enqueues outside the lock so a slow
// or full queue on one connection never blocks delivery to the others.
func (m *Manager) Broadcast(payload []byte) {
	m.mu.RLock()
	snapshot := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.mu.RUnlock()

	for _, c := range snapshot {
		if err := c.Enqueue(payload); err != nil {
			m.logger.Warnf("wsconn: broadcast enqueue to %s failed: %v", c.SessionID(), err)
		}
	}
}

// Count returns the number of currently-registered connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

package gateway

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection represents a single WebSocket client connection with its
// associated identity and a write mutex for serializing outbound frames.
// The activity timestamp is written by the connection's read loop and read
// by the heartbeat goroutine, so it is kept atomic.
type Connection struct {
	SessionID string    // connection session ID (UUID)
	UserID    string    // authenticated user holding the connection
	Conn      net.Conn  // underlying TCP connection
	CreatedAt time.Time // when the connection was established
	lastPing  atomic.Int64
	writeMu   sync.Mutex
}

// Touch records client activity now.
func (c *Connection) Touch() {
	c.lastPing.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last observed client activity.
func (c *Connection) LastActive() time.Time {
	return time.Unix(0, c.lastPing.Load())
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame on the connection.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// Manager is a thread-safe registry of live connections, indexed by both
// session ID and user ID. A user holds at most one connection; a reconnect
// replaces the previous one.
type Manager struct {
	mu        sync.RWMutex
	bySession map[string]*Connection
	byUser    map[string]*Connection
}

// NewManager creates an empty connection manager.
func NewManager() *Manager {
	return &Manager{
		bySession: make(map[string]*Connection),
		byUser:    make(map[string]*Connection),
	}
}

// Add registers a connection. If the user already had a connection, the
// old one is closed and returned so the caller can clean up its
// subscriptions.
func (m *Manager) Add(conn *Connection) *Connection {
	m.mu.Lock()
	old := m.byUser[conn.UserID]
	if old != nil {
		delete(m.bySession, old.SessionID)
	}
	m.bySession[conn.SessionID] = conn
	m.byUser[conn.UserID] = conn
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return old
}

// Remove removes a connection by session ID and closes it. The user index
// is only cleared if it still points at this session, so removing a stale
// connection never evicts a newer one. Returns true if the connection was
// found and removed.
func (m *Manager) Remove(sessionID string) bool {
	m.mu.Lock()
	conn, ok := m.bySession[sessionID]
	if ok {
		delete(m.bySession, sessionID)
		if cur := m.byUser[conn.UserID]; cur != nil && cur.SessionID == sessionID {
			delete(m.byUser, conn.UserID)
		}
	}
	m.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// GetByUser returns the user's live connection, or nil.
func (m *Manager) GetByUser(userID string) *Connection {
	m.mu.RLock()
	conn := m.byUser[userID]
	m.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	n := len(m.bySession)
	m.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections, safe to iterate
// without holding the lock.
func (m *Manager) All() []*Connection {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.bySession))
	for _, conn := range m.bySession {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()
	return conns
}

package gateway

import (
	"context"
	"log"
	"time"
)

// Heartbeat tuning. Connections with no activity within heartbeatInterval
// + heartbeatTimeout are considered dead and evicted.
const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 10 * time.Second
)

// startHeartbeat begins a background goroutine that periodically pings all
// connections, evicts stale ones, and refreshes registry TTLs for the
// live ones. The goroutine exits when the server's done channel is closed.
func (s *Server) startHeartbeat() {
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.checkConnections()
			}
		}
	}()
}

// checkConnections iterates over all active connections. Stale connections
// are removed; live ones receive a WebSocket-level ping frame, which the
// browser answers automatically, and get their registry TTL refreshed.
func (s *Server) checkConnections() {
	deadline := heartbeatInterval + heartbeatTimeout
	now := time.Now()

	for _, c := range s.conns.All() {
		if idle := now.Sub(c.LastActive()); idle > deadline {
			log.Printf("gateway: heartbeat timeout user=%s session=%s last_activity=%s ago",
				c.UserID, c.SessionID, idle.Round(time.Second))
			s.removeConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("gateway: heartbeat ping failed user=%s session=%s: %v", c.UserID, c.SessionID, err)
			s.removeConnection(c)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = s.registry.RefreshTTL(ctx, c.UserID)
		cancel()
	}
}

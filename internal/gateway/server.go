// Package gateway is the WebSocket push gateway. Clients connect here to
// receive real-time message events; the gateway registers each user in the
// shared session registry and bridges the user's NATS event subject onto
// the WebSocket. Sends travel over the HTTP API, not this connection.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/siftchat/dm-app/internal/messaging"
	"github.com/siftchat/dm-app/internal/metrics"
	"github.com/siftchat/dm-app/internal/protocol"
	"github.com/siftchat/dm-app/internal/session"
)

// Config holds tunable parameters for the gateway.
type Config struct {
	ListenAddr     string        // address to listen on, e.g. ":8081"
	Name           string        // gateway instance name for the session registry
	MaxConnections int           // hard cap on total connections
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8081",
		Name:           "gateway-1",
		MaxConnections: 10000,
		WriteTimeout:   10 * time.Second,
	}
}

// Server upgrades HTTP connections to WebSocket, keeps a reader goroutine
// per connection, and forwards NATS push events to the owning user's
// connection.
type Server struct {
	config     Config
	conns      *Manager
	registry   *session.Store
	nats       *messaging.NATSClient
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a gateway server over the given session registry and
// NATS client.
func NewServer(config Config, registry *session.Store, nats *messaging.NATSClient) *Server {
	return &Server{
		config:   config,
		conns:    NewManager(),
		registry: registry,
		nats:     nats,
		done:     make(chan struct{}),
	}
}

// Start configures the HTTP server and begins accepting WebSocket
// connections. It starts the heartbeat monitor in the background and
// blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	s.startHeartbeat()

	log.Printf("gateway: listening on %s (name=%s, max_conns=%d)",
		s.config.ListenAddr, s.config.Name, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection. The
// fronting auth proxy validates the caller and passes the user id as a
// query parameter.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("gateway: upgrade failed: %v", err)
		return
	}

	c := &Connection{
		SessionID: uuid.New().String(),
		UserID:    userID,
		Conn:      conn,
		CreatedAt: time.Now(),
	}
	c.Touch()

	if old := s.conns.Add(c); old != nil {
		log.Printf("gateway: user %s reconnected, replacing session %s", userID, old.SessionID)
	} else {
		// First connection for this user on this gateway: bridge the
		// user's NATS event subject onto the WebSocket. The handler
		// resolves the current connection at delivery time, so it
		// survives reconnects.
		if err := s.nats.SubscribeUserEvents(userID, func(data []byte) {
			s.forward(userID, data)
		}); err != nil {
			log.Printf("gateway: subscribe events for user %s: %v", userID, err)
			s.conns.Remove(c.SessionID)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.registry.Register(ctx, userID, c.SessionID, s.config.Name); err != nil {
		log.Printf("gateway: register session for user %s: %v", userID, err)
	}

	if data, err := protocol.NewServerMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{
		SessionID: c.SessionID,
	}); err == nil {
		_ = c.WriteMessage(data)
	}

	metrics.GatewayConnections.Set(float64(s.conns.Count()))
	log.Printf("gateway: new connection user=%s session=%s (total=%d)",
		userID, c.SessionID, s.conns.Count())

	go s.readLoop(c)
}

// forward delivers a NATS event payload to the user's current connection.
// A missing connection (user dropped between publish and delivery) is
// silently ignored.
func (s *Server) forward(userID string, data []byte) {
	c := s.conns.GetByUser(userID)
	if c == nil {
		return
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteMessage(data)
	_ = c.Conn.SetWriteDeadline(time.Time{})

	if err != nil {
		log.Printf("gateway: forward to user=%s failed: %v", userID, err)
		s.removeConnection(c)
	}
}

// readLoop reads frames from a connection until it fails or closes.
// Clients only ever send keepalive pings; anything else gets a structured
// error response.
func (s *Server) readLoop(c *Connection) {
	defer s.removeConnection(c)

	for {
		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}

		// Any frame proves the connection is alive.
		c.Touch()

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			if header.OpCode == ws.OpPing {
				c.writeMu.Lock()
				err := ws.WriteFrame(c.Conn, ws.NewPongFrame(nil))
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
			continue
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return
			}
		}
		if len(data) == 0 {
			continue
		}

		s.handleFrame(c, data)
	}
}

// handleFrame processes one application data frame from the client.
func (s *Server) handleFrame(c *Connection, data []byte) {
	if _, err := protocol.ParseClientMessage(data); err != nil {
		log.Printf("gateway: bad frame user=%s session=%s: %v", c.UserID, c.SessionID, err)
		if resp, merr := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
			Code:    "unsupported_type",
			Message: "only ping frames are accepted on this channel",
		}); merr == nil {
			_ = c.WriteMessage(resp)
		}
		return
	}

	// Ping also refreshes the registry TTL so the session outlives quiet
	// periods.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	_ = s.registry.RefreshTTL(ctx, c.UserID)
	cancel()

	if resp, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{}); err == nil {
		_ = c.WriteMessage(resp)
	}
}

// removeConnection tears down a connection: manager entry, NATS
// subscription (unless a newer connection for the same user took over),
// and the registry record.
func (s *Server) removeConnection(c *Connection) {
	if !s.conns.Remove(c.SessionID) {
		return
	}

	if s.conns.GetByUser(c.UserID) == nil {
		if err := s.nats.UnsubscribeUserEvents(c.UserID); err != nil {
			log.Printf("gateway: unsubscribe events for user %s: %v", c.UserID, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.registry.Unregister(ctx, c.UserID, c.SessionID); err != nil {
		log.Printf("gateway: unregister session for user %s: %v", c.UserID, err)
	}

	metrics.GatewayConnections.Set(float64(s.conns.Count()))
	log.Printf("gateway: connection closed user=%s session=%s (total=%d)",
		c.UserID, c.SessionID, s.conns.Count())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown performs a graceful shutdown: stops the listener, closes all
// connections, and clears their registry entries.
func (s *Server) Shutdown() error {
	log.Println("gateway: shutting down...")

	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("gateway: http shutdown error: %v", err)
	}

	for _, c := range s.conns.All() {
		delCtx, delCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.registry.Unregister(delCtx, c.UserID, c.SessionID)
		delCancel()
		c.Close()
	}

	log.Printf("gateway: stopped, all connections closed")
	return nil
}

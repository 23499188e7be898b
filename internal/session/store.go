// Package session tracks which users currently hold a live gateway
// connection. The push path consults this registry to decide whether a
// real-time event is worth publishing at all; an absent entry means the
// user is offline and the event is silently skipped.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for all session hashes.
	KeyPrefix = "dmsession:"

	// TTL is the time-to-live for session keys. Gateways refresh it on
	// heartbeat; a crashed gateway's sessions age out on their own.
	TTL = 1 * time.Hour
)

// Session records one user's live gateway connection.
type Session struct {
	UserID      string `redis:"user_id"`
	SessionID   string `redis:"session_id"`
	Gateway     string `redis:"gateway"`      // which gateway instance holds the connection
	ConnectedAt int64  `redis:"connected_at"` // unix timestamp
}

// Store manages the session registry in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a session registry connected to Redis.
func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient creates a session registry on an existing Redis
// client. Used by tests and by processes that share one connection.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Register records a user's live connection. A reconnect overwrites the
// previous entry; only the latest connection receives push events.
func (s *Store) Register(ctx context.Context, userID, sessionID, gateway string) error {
	key := KeyPrefix + userID

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":      userID,
		"session_id":   sessionID,
		"gateway":      gateway,
		"connected_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Lookup returns the user's live session, or nil if the user is not
// currently connected.
func (s *Store) Lookup(ctx context.Context, userID string) (*Session, error) {
	key := KeyPrefix + userID
	var session Session
	err := s.client.HGetAll(ctx, key).Scan(&session)
	if err != nil {
		return nil, err
	}
	if session.UserID == "" {
		return nil, nil // not connected
	}
	return &session, nil
}

// RefreshTTL extends the session's TTL. Called by the gateway heartbeat.
func (s *Store) RefreshTTL(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, KeyPrefix+userID, TTL).Err()
}

// Unregister removes a user's session. The sessionID guard prevents a
// stale disconnect from tearing down a newer connection's entry.
func (s *Store) Unregister(ctx context.Context, userID, sessionID string) error {
	key := KeyPrefix + userID

	current, err := s.client.HGet(ctx, key, "session_id").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current != sessionID {
		return nil // a newer connection owns the entry
	}
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Package protocol defines the WebSocket message types exchanged between
// the gateway and clients. All messages are serialized as JSON with a
// consistent envelope format and a type discriminator.
//
// Clients send messages over the HTTP API; the WebSocket carries only
// server pushes plus the keepalive ping.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/siftchat/dm-app/internal/message"
)

// Client -> Server message types.
const (
	TypePing = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated = "session_created"

	// TypeNewMessage carries the filtered view of a message to its
	// receiver.
	TypeNewMessage = "new_message"

	// TypeMessageModerated carries the full moderation outcome back to
	// the sender, so an optimistically rendered message can be updated
	// in place.
	TypeMessageModerated = "message_moderated"

	TypePong  = "pong"
	TypeError = "error"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// SessionCreatedMsg is sent by the gateway when a connection is
// established and registered.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// NewMessageMsg delivers the receiver's filtered view of a message.
type NewMessageMsg struct {
	Type    string       `json:"type"`
	Message message.View `json:"message"`
}

// MessageModeratedMsg delivers the full message, including the moderation
// outcome, to the sender's own session.
type MessageModeratedMsg struct {
	Type    string          `json:"type"`
	Message message.Message `json:"message"`
}

// ErrorMsg communicates an error condition to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the gateway's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ParseClientMessage parses raw WebSocket bytes into the envelope type.
// Only ping is accepted from clients; everything else is rejected.
func ParseClientMessage(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("protocol: failed to parse message: %w", err)
	}
	if env.Type != TypePing {
		return env.Type, fmt.Errorf("protocol: unsupported client message type: %q", env.Type)
	}
	return env.Type, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

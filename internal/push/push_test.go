package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/siftchat/dm-app/internal/message"
	"github.com/siftchat/dm-app/internal/protocol"
	"github.com/siftchat/dm-app/internal/session"
)

type fakeRegistry struct {
	online map[string]bool
	err    error
}

func (f *fakeRegistry) Lookup(ctx context.Context, userID string) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.online[userID] {
		return nil, nil
	}
	return &session.Session{UserID: userID, SessionID: "sess-" + userID, Gateway: "gateway-1"}, nil
}

type published struct {
	userID string
	data   []byte
}

type fakePublisher struct {
	events []published
	err    error
}

func (f *fakePublisher) PublishUserEvent(userID string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{userID: userID, data: data})
	return nil
}

func sampleMessage() *message.Message {
	return &message.Message{
		ID:         "msg-1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Text:       "hello",
		Flagged:    true,
		Warnings: []message.Warning{
			{Kind: "text", Message: "warning", Severity: message.SeverityMedium},
		},
	}
}

func TestNotifySender_PublishesFullOutcome(t *testing.T) {
	registry := &fakeRegistry{online: map[string]bool{"alice": true}}
	publisher := &fakePublisher{}
	adapter := NewAdapter(registry, publisher)

	adapter.NotifySender(context.Background(), sampleMessage())

	if len(publisher.events) != 1 {
		t.Fatalf("published events = %d, want 1", len(publisher.events))
	}
	ev := publisher.events[0]
	if ev.userID != "alice" {
		t.Errorf("target = %q, want %q", ev.userID, "alice")
	}

	var payload struct {
		Type    string          `json:"type"`
		Message message.Message `json:"message"`
	}
	if err := json.Unmarshal(ev.data, &payload); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if payload.Type != protocol.TypeMessageModerated {
		t.Errorf("type = %q, want %q", payload.Type, protocol.TypeMessageModerated)
	}
	if !payload.Message.Flagged || len(payload.Message.Warnings) != 1 {
		t.Error("sender event must carry the full moderation outcome")
	}
}

func TestNotifyReceiver_PublishesFilteredView(t *testing.T) {
	registry := &fakeRegistry{online: map[string]bool{"bob": true}}
	publisher := &fakePublisher{}
	adapter := NewAdapter(registry, publisher)

	view, ok := message.VisibleTo(sampleMessage(), "bob")
	if !ok {
		t.Fatal("sample message must be visible to receiver")
	}
	adapter.NotifyReceiver(context.Background(), view)

	if len(publisher.events) != 1 {
		t.Fatalf("published events = %d, want 1", len(publisher.events))
	}
	ev := publisher.events[0]
	if ev.userID != "bob" {
		t.Errorf("target = %q, want %q", ev.userID, "bob")
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(ev.data, &payload); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	var msgType string
	json.Unmarshal(payload["type"], &msgType)
	if msgType != protocol.TypeNewMessage {
		t.Errorf("type = %q, want %q", msgType, protocol.TypeNewMessage)
	}

	var inner map[string]json.RawMessage
	if err := json.Unmarshal(payload["message"], &inner); err != nil {
		t.Fatalf("decode inner message: %v", err)
	}
	for _, field := range []string{"flagged", "blocked", "moderationWarnings"} {
		if _, present := inner[field]; present {
			t.Errorf("receiver event leaks moderation field %q", field)
		}
	}
}

func TestPublish_OfflineUserIsNoop(t *testing.T) {
	registry := &fakeRegistry{online: map[string]bool{}}
	publisher := &fakePublisher{}
	adapter := NewAdapter(registry, publisher)

	adapter.NotifySender(context.Background(), sampleMessage())

	if len(publisher.events) != 0 {
		t.Errorf("published events = %d, want 0 for offline user", len(publisher.events))
	}
}

func TestPublish_FailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name      string
		registry  *fakeRegistry
		publisher *fakePublisher
	}{
		{
			"registry error",
			&fakeRegistry{err: errors.New("redis down")},
			&fakePublisher{},
		},
		{
			"publish error",
			&fakeRegistry{online: map[string]bool{"alice": true}},
			&fakePublisher{err: errors.New("nats down")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewAdapter(tt.registry, tt.publisher)
			// Must not panic and must not surface the error.
			adapter.NotifySender(context.Background(), sampleMessage())
		})
	}
}

// Package push delivers real-time events to currently connected users. It
// is a best-effort hint layer, not a delivery guarantee: if the target has
// no live gateway session the event is dropped silently and the client
// catches up through the thread query.
package push

import (
	"context"
	"log"

	"github.com/siftchat/dm-app/internal/message"
	"github.com/siftchat/dm-app/internal/metrics"
	"github.com/siftchat/dm-app/internal/protocol"
	"github.com/siftchat/dm-app/internal/session"
)

// Registry answers whether a user currently holds a live gateway session.
// Implemented by session.Store; a nil session means not connected.
type Registry interface {
	Lookup(ctx context.Context, userID string) (*session.Session, error)
}

// Publisher sends an event payload toward a user's gateway session.
// Implemented by messaging.NATSClient.
type Publisher interface {
	PublishUserEvent(userID string, data []byte) error
}

// Adapter fans pipeline results out to connected sessions. Two distinct
// event kinds are used: message_moderated carries the full outcome to the
// sender; new_message carries the filtered view to the receiver.
type Adapter struct {
	registry  Registry
	publisher Publisher
}

// NewAdapter creates a push adapter over the given session registry and
// publisher.
func NewAdapter(registry Registry, publisher Publisher) *Adapter {
	return &Adapter{registry: registry, publisher: publisher}
}

// NotifySender pushes the full message, including blocked content and
// warnings, to the sender's own session.
func (a *Adapter) NotifySender(ctx context.Context, m *message.Message) {
	data, err := protocol.NewServerMessage(protocol.TypeMessageModerated, protocol.MessageModeratedMsg{
		Message: *m,
	})
	if err != nil {
		log.Printf("push: build message_moderated for %s: %v", m.SenderID, err)
		return
	}
	a.publish(ctx, m.SenderID, protocol.TypeMessageModerated, data)
}

// NotifyReceiver pushes the filtered view of a message to the receiver.
// The pipeline never calls this for blocked messages.
func (a *Adapter) NotifyReceiver(ctx context.Context, v message.View) {
	data, err := protocol.NewServerMessage(protocol.TypeNewMessage, protocol.NewMessageMsg{
		Message: v,
	})
	if err != nil {
		log.Printf("push: build new_message for %s: %v", v.ReceiverID, err)
		return
	}
	a.publish(ctx, v.ReceiverID, protocol.TypeNewMessage, data)
}

// publish checks for a live session and publishes the event. A missing
// session is a silent no-op; publish failures are logged and swallowed
// because push must never fail the send.
func (a *Adapter) publish(ctx context.Context, userID, kind string, data []byte) {
	sess, err := a.registry.Lookup(ctx, userID)
	if err != nil {
		log.Printf("push: session lookup for %s: %v", userID, err)
		return
	}
	if sess == nil {
		return // not connected
	}

	if err := a.publisher.PublishUserEvent(userID, data); err != nil {
		log.Printf("push: publish %s to %s: %v", kind, userID, err)
		return
	}
	metrics.PushEventsTotal.WithLabelValues(kind).Inc()
}

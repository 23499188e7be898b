// Package message defines the direct-message model, its moderation outcome
// fields, and the visibility rules that decide what each viewer may see.
package message

import (
	"fmt"
	"time"
)

// Severity levels for moderation warnings, derived from the scorer's
// confidence.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// BlockConfidence is the confidence threshold above which a positive
// verdict blocks delivery. It is shared by the text and image paths and is
// not configurable per call.
const BlockConfidence = 0.9

// Warning records one positive moderation verdict attached to a message.
// Warnings are ordered by check order: text before image.
type Warning struct {
	Kind       string   `json:"type"` // "text" or "image"
	Message    string   `json:"message"`
	Categories []string `json:"categories"`
	Severity   string   `json:"severity"`
}

// SeverityFor derives a warning severity from the scorer's confidence.
func SeverityFor(confidence float64) string {
	if confidence > BlockConfidence {
		return SeverityHigh
	}
	return SeverityMedium
}

// Message is one send attempt, persisted regardless of whether it was
// delivered to the receiver. The moderation outcome (Flagged, Blocked,
// Warnings) is set once at creation and never mutated.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"image,omitempty"`
	Flagged    bool      `json:"flagged"`
	Blocked    bool      `json:"blocked"`
	Warnings   []Warning `json:"moderationWarnings,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Validate checks the structural invariants that must hold before a
// message may be persisted. A blocked message may end up with no content
// at all: a blocking image verdict drops the image, and the empty record
// still has to be persisted so the sender can be told about the block.
func (m *Message) Validate() error {
	if m.Text == "" && m.ImageURL == "" && !m.Blocked {
		return fmt.Errorf("message: neither text nor image present")
	}
	if m.Blocked && !m.Flagged {
		return fmt.Errorf("message: blocked without flagged")
	}
	return nil
}

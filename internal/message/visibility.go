package message

import "time"

// View is the projection of a message that a particular viewer is allowed
// to see. For the sender it carries the full moderation outcome; for
// anyone else the moderation fields are absent.
type View struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// Moderation fields, populated only for the sender's own view.
	Flagged  *bool     `json:"flagged,omitempty"`
	Blocked  *bool     `json:"blocked,omitempty"`
	Warnings []Warning `json:"moderationWarnings,omitempty"`
}

// VisibleTo applies the visibility rule for a message and viewer. It is a
// pure function of its inputs.
//
// The sender always sees the full message, including blocked content and
// warnings. For every other viewer a blocked message does not exist: the
// second return value is false and the caller must omit it entirely.
// Non-blocked messages are reduced to the content fields only.
func VisibleTo(m *Message, viewerID string) (View, bool) {
	if viewerID == m.SenderID {
		flagged, blocked := m.Flagged, m.Blocked
		return View{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Text:       m.Text,
			ImageURL:   m.ImageURL,
			CreatedAt:  m.CreatedAt,
			UpdatedAt:  m.UpdatedAt,
			Flagged:    &flagged,
			Blocked:    &blocked,
			Warnings:   m.Warnings,
		}, true
	}

	if m.Blocked {
		return View{}, false
	}

	return View{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		ImageURL:   m.ImageURL,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, true
}

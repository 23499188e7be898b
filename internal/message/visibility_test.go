package message

import (
	"reflect"
	"testing"
	"time"
)

func sampleMessage(blocked bool) *Message {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Message{
		ID:         "msg-1",
		SenderID:   "alice",
		ReceiverID: "bob",
		Text:       "hello",
		ImageURL:   "http://cdn.local/dm/abc",
		Flagged:    true,
		Blocked:    blocked,
		Warnings: []Warning{
			{Kind: "text", Message: "warning", Categories: []string{"toxicity"}, Severity: SeverityHigh},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestVisibleTo_SenderSeesEverything(t *testing.T) {
	m := sampleMessage(true)

	view, ok := VisibleTo(m, "alice")
	if !ok {
		t.Fatal("sender's own message must always be visible")
	}
	if view.Flagged == nil || !*view.Flagged {
		t.Error("sender view missing flagged field")
	}
	if view.Blocked == nil || !*view.Blocked {
		t.Error("sender view missing blocked field")
	}
	if len(view.Warnings) != 1 {
		t.Errorf("sender view warnings = %d, want 1", len(view.Warnings))
	}
	if view.Text != m.Text || view.ImageURL != m.ImageURL {
		t.Error("sender view must carry full content")
	}
}

func TestVisibleTo_BlockedOmittedForOthers(t *testing.T) {
	m := sampleMessage(true)

	for _, viewer := range []string{"bob", "charlie"} {
		if _, ok := VisibleTo(m, viewer); ok {
			t.Errorf("blocked message visible to %q", viewer)
		}
	}
}

func TestVisibleTo_ReceiverGetsReducedProjection(t *testing.T) {
	m := sampleMessage(false)

	view, ok := VisibleTo(m, "bob")
	if !ok {
		t.Fatal("non-blocked message must be visible to receiver")
	}
	if view.Flagged != nil || view.Blocked != nil || view.Warnings != nil {
		t.Error("receiver view must not carry moderation fields")
	}
	if view.ID != m.ID || view.SenderID != m.SenderID || view.ReceiverID != m.ReceiverID {
		t.Error("receiver view missing identity fields")
	}
	if view.Text != m.Text || view.ImageURL != m.ImageURL {
		t.Error("receiver view missing content fields")
	}
	if !view.CreatedAt.Equal(m.CreatedAt) || !view.UpdatedAt.Equal(m.UpdatedAt) {
		t.Error("receiver view missing timestamps")
	}
}

// Filtering is a pure function: repeated calls on the same inputs yield
// identical output and leave the message untouched.
func TestVisibleTo_Pure(t *testing.T) {
	m := sampleMessage(false)
	before := *m

	first, ok1 := VisibleTo(m, "bob")
	second, ok2 := VisibleTo(m, "bob")
	if ok1 != ok2 || !reflect.DeepEqual(first, second) {
		t.Error("repeated filtering produced different results")
	}
	if !reflect.DeepEqual(before, *m) {
		t.Error("filtering mutated the message")
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.95, SeverityHigh},
		{0.91, SeverityHigh},
		{0.9, SeverityMedium}, // threshold is strictly greater-than
		{0.6, SeverityMedium},
		{0.0, SeverityMedium},
	}

	for _, tt := range tests {
		if got := SeverityFor(tt.confidence); got != tt.want {
			t.Errorf("SeverityFor(%v) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"text only", Message{Text: "hi"}, false},
		{"image only", Message{ImageURL: "http://x/y"}, false},
		{"empty", Message{}, true},
		{"blocked without flagged", Message{Text: "hi", Blocked: true}, true},
		{"blocked and flagged", Message{Text: "hi", Blocked: true, Flagged: true}, false},
		// A blocking image verdict drops the image; the empty blocked
		// record must still be persistable.
		{"blocked with no content", Message{Blocked: true, Flagged: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

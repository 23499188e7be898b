package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/siftchat/dm-app/internal/directory"
	"github.com/siftchat/dm-app/internal/message"
	"github.com/siftchat/dm-app/internal/modlog"
	"github.com/siftchat/dm-app/internal/pipeline"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSender struct {
	result *pipeline.SendResult
	err    error
	last   pipeline.SendRequest
}

func (f *fakeSender) Send(ctx context.Context, req pipeline.SendRequest) (*pipeline.SendResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeMessageReader struct {
	msgs []message.Message
	err  error
}

func (f *fakeMessageReader) ListBetween(ctx context.Context, userA, userB string) ([]message.Message, error) {
	return f.msgs, f.err
}

type fakeLedger struct {
	entries   []modlog.Entry
	reviewErr error
}

func (f *fakeLedger) List(ctx context.Context) ([]modlog.Entry, error) {
	return f.entries, nil
}

func (f *fakeLedger) ApplyReview(ctx context.Context, entryID, status, reviewerID, notes string) error {
	return f.reviewErr
}

type fakeDirectory struct {
	users []directory.UserSummary
}

func (f *fakeDirectory) ListAllExcept(ctx context.Context, userID string) ([]directory.UserSummary, error) {
	return f.users, nil
}

func (f *fakeDirectory) GetByID(ctx context.Context, userID string) (directory.UserSummary, error) {
	for _, u := range f.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return directory.UserSummary{}, directory.ErrUserNotFound
}

func newTestAPI() (*API, *fakeSender, *fakeMessageReader, *fakeLedger) {
	sender := &fakeSender{
		result: &pipeline.SendResult{Message: &message.Message{ID: "msg-1", SenderID: "alice", ReceiverID: "bob", Text: "hi"}},
	}
	messages := &fakeMessageReader{}
	ledger := &fakeLedger{}
	dir := &fakeDirectory{users: []directory.UserSummary{
		{ID: "bob", Username: "bob", DisplayName: "Bob"},
	}}
	api := New(sender, messages, ledger, dir)
	return api, sender, messages, ledger
}

func doRequest(api *API, method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

func TestHandleSend(t *testing.T) {
	api, sender, _, _ := newTestAPI()

	rec := doRequest(api, http.MethodPost, "/api/messages/send/bob", "alice", `{"text":"hi"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if sender.last.SenderID != "alice" || sender.last.ReceiverID != "bob" || sender.last.Text != "hi" {
		t.Errorf("pipeline request = %+v", sender.last)
	}

	var result pipeline.SendResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Message == nil || result.Message.ID != "msg-1" {
		t.Errorf("response message = %+v", result.Message)
	}
}

func TestHandleSend_MissingIdentity(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := doRequest(api, http.MethodPost, "/api/messages/send/bob", "", `{"text":"hi"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleSend_SelfSend(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := doRequest(api, http.MethodPost, "/api/messages/send/alice", "alice", `{"text":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// A receiver the directory cannot resolve fails up front, before the
// pipeline (and its moderation calls) runs at all.
func TestHandleSend_UnknownReceiver(t *testing.T) {
	api, sender, _, _ := newTestAPI()

	rec := doRequest(api, http.MethodPost, "/api/messages/send/ghost", "alice", `{"text":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}

	var body apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != string(pipeline.KindInvalidRequest) {
		t.Errorf("code = %q, want %q", body.Code, pipeline.KindInvalidRequest)
	}
	if sender.last.ReceiverID != "" {
		t.Error("pipeline must not run for an unknown receiver")
	}
}

func TestHandleSend_MalformedBody(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := doRequest(api, http.MethodPost, "/api/messages/send/bob", "alice", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// Each pipeline failure kind maps onto its own status and stable code.
func TestHandleSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		kind       pipeline.ErrorKind
		wantStatus int
	}{
		{pipeline.KindInvalidRequest, http.StatusBadRequest},
		{pipeline.KindModerationUnavailable, http.StatusServiceUnavailable},
		{pipeline.KindUploadFailed, http.StatusBadGateway},
		{pipeline.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			api, sender, _, _ := newTestAPI()
			sender.err = &pipeline.SendError{Kind: tt.kind, Err: errors.New("boom")}

			rec := doRequest(api, http.MethodPost, "/api/messages/send/bob", "alice", `{"text":"hi"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body apiError
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Code != string(tt.kind) {
				t.Errorf("code = %q, want %q", body.Code, tt.kind)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Thread
// ---------------------------------------------------------------------------

func TestHandleThread_AppliesVisibilityFilter(t *testing.T) {
	api, _, messages, _ := newTestAPI()
	messages.msgs = []message.Message{
		{ID: "m1", SenderID: "alice", ReceiverID: "bob", Text: "hello"},
		{ID: "m2", SenderID: "bob", ReceiverID: "alice", Text: "nasty", Flagged: true, Blocked: true},
		{ID: "m3", SenderID: "alice", ReceiverID: "bob", Text: "mine but blocked", Flagged: true, Blocked: true},
	}

	rec := doRequest(api, http.MethodGet, "/api/messages/bob", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var views []message.View
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	// m2 is bob's blocked message: invisible to alice. m3 is alice's own
	// blocked message: visible with moderation fields.
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[0].ID != "m1" || views[1].ID != "m3" {
		t.Errorf("view ids = %q, %q", views[0].ID, views[1].ID)
	}
	if views[1].Blocked == nil || !*views[1].Blocked {
		t.Error("caller's own blocked message must carry the blocked marker")
	}
	if views[0].Flagged != nil {
		t.Error("received message must not carry moderation fields")
	}
}

// ---------------------------------------------------------------------------
// Users, stats, review
// ---------------------------------------------------------------------------

func TestHandleListUsers_EmptyIsArray(t *testing.T) {
	api := New(&fakeSender{}, &fakeMessageReader{}, &fakeLedger{}, &fakeDirectory{})

	rec := doRequest(api, http.MethodGet, "/api/messages/users", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestHandleStats(t *testing.T) {
	api, _, _, ledger := newTestAPI()
	ledger.entries = []modlog.Entry{
		{Kind: "text", Inappropriate: true, Confidence: 0.95, Categories: []string{"toxicity"}},
		{Kind: "image", Inappropriate: false},
	}

	rec := doRequest(api, http.MethodGet, "/api/messages/moderation-stats", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats modlog.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalChecks != 2 || stats.FlaggedContent != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Categories["toxicity"] != 1 {
		t.Errorf("categories = %v", stats.Categories)
	}
}

func TestHandleReview(t *testing.T) {
	tests := []struct {
		name       string
		reviewErr  error
		wantStatus int
	}{
		{"accepted", nil, http.StatusOK},
		{"unknown entry", modlog.ErrEntryNotFound, http.StatusNotFound},
		{"bad status", fmt.Errorf("%w: status \"weird\"", modlog.ErrInvalidReview), http.StatusBadRequest},
		{"store failure", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _, _, ledger := newTestAPI()
			ledger.reviewErr = tt.reviewErr

			rec := doRequest(api, http.MethodPatch, "/api/moderation/entry-1/review", "mod-1",
				`{"status":"approved","notes":"ok"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := doRequest(api, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

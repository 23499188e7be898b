// Package httpapi is the client-facing HTTP surface: sending messages,
// reading threads and the user list, moderation stats, and the human
// review endpoint. The fronting auth proxy authenticates requests and
// installs the caller's id in the X-User-ID header.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/siftchat/dm-app/internal/directory"
	"github.com/siftchat/dm-app/internal/message"
	"github.com/siftchat/dm-app/internal/metrics"
	"github.com/siftchat/dm-app/internal/modlog"
	"github.com/siftchat/dm-app/internal/pipeline"
)

// userIDHeader carries the authenticated caller identity, set by the
// fronting auth proxy. Authentication itself is out of scope here.
const userIDHeader = "X-User-ID"

// Sender runs a send attempt through the delivery pipeline.
type Sender interface {
	Send(ctx context.Context, req pipeline.SendRequest) (*pipeline.SendResult, error)
}

// MessageReader lists raw messages between two users.
type MessageReader interface {
	ListBetween(ctx context.Context, userA, userB string) ([]message.Message, error)
}

// LedgerReader reads the moderation ledger and applies review decisions.
type LedgerReader interface {
	List(ctx context.Context) ([]modlog.Entry, error)
	ApplyReview(ctx context.Context, entryID, status, reviewerID, notes string) error
}

// API bundles the handlers' collaborators.
type API struct {
	sender    Sender
	messages  MessageReader
	ledger    LedgerReader
	directory directory.Directory
}

// New creates the API with its collaborators.
func New(sender Sender, messages MessageReader, ledger LedgerReader, dir directory.Directory) *API {
	return &API{
		sender:    sender,
		messages:  messages,
		ledger:    ledger,
		directory: dir,
	}
}

// Router builds the chi router for the API, including health and metrics
// endpoints.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/messages", func(r chi.Router) {
		r.Get("/users", a.handleListUsers)
		r.Get("/moderation-stats", a.handleStats)
		r.Post("/send/{id}", a.handleSend)
		// Registered last: {id} would otherwise shadow the fixed routes.
		r.Get("/{id}", a.handleThread)
	})

	r.Patch("/api/moderation/{id}/review", a.handleReview)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// callerID extracts the authenticated user id, writing an error response
// and returning "" if the header is missing.
func callerID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(userIDHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
	}
	return id
}

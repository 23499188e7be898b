package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/siftchat/dm-app/internal/directory"
	"github.com/siftchat/dm-app/internal/message"
	"github.com/siftchat/dm-app/internal/modlog"
	"github.com/siftchat/dm-app/internal/pipeline"
)

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// handleSend accepts a send attempt and runs it through the delivery
// pipeline. The response carries the full message (the sender's view),
// the warnings, and the block decision.
func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	senderID := callerID(w, r)
	if senderID == "" {
		return
	}
	receiverID := chi.URLParam(r, "id")
	if receiverID == "" || receiverID == senderID {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "invalid receiver")
		return
	}
	if _, err := a.directory.GetByID(r.Context(), receiverID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "unknown receiver")
			return
		}
		log.Printf("httpapi: resolve receiver %s: %v", receiverID, err)
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
		return
	}

	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "malformed request body")
		return
	}

	result, err := a.sender.Send(r.Context(), pipeline.SendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       body.Text,
		Image:      body.Image,
	})
	if err != nil {
		writeSendError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleThread returns the conversation between the caller and the other
// user, with the visibility filter applied per message: the caller's own
// blocked messages are included with warnings, the other party's blocked
// messages are omitted entirely.
func (a *API) handleThread(w http.ResponseWriter, r *http.Request) {
	viewerID := callerID(w, r)
	if viewerID == "" {
		return
	}
	otherID := chi.URLParam(r, "id")

	msgs, err := a.messages.ListBetween(r.Context(), viewerID, otherID)
	if err != nil {
		log.Printf("httpapi: list thread viewer=%s other=%s: %v", viewerID, otherID, err)
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
		return
	}

	views := make([]message.View, 0, len(msgs))
	for i := range msgs {
		if view, ok := message.VisibleTo(&msgs[i], viewerID); ok {
			views = append(views, view)
		}
	}

	writeJSON(w, http.StatusOK, views)
}

// handleListUsers returns every directory entry except the caller.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	viewerID := callerID(w, r)
	if viewerID == "" {
		return
	}

	users, err := a.directory.ListAllExcept(r.Context(), viewerID)
	if err != nil {
		log.Printf("httpapi: list users viewer=%s: %v", viewerID, err)
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
		return
	}
	if users == nil {
		users = []directory.UserSummary{} // keep the JSON an array, not null
	}

	writeJSON(w, http.StatusOK, users)
}

// handleStats recomputes the aggregate moderation stats over the full
// ledger.
func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if id := callerID(w, r); id == "" {
		return
	}

	entries, err := a.ledger.List(r.Context())
	if err != nil {
		log.Printf("httpapi: load ledger for stats: %v", err)
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, modlog.Aggregate(entries))
}

type reviewRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// handleReview records a human reviewer's decision on a ledger entry.
func (a *API) handleReview(w http.ResponseWriter, r *http.Request) {
	reviewerID := callerID(w, r)
	if reviewerID == "" {
		return
	}
	entryID := chi.URLParam(r, "id")

	var body reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "malformed request body")
		return
	}

	err := a.ledger.ApplyReview(r.Context(), entryID, body.Status, reviewerID, body.Notes)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": body.Status})
	case errors.Is(err, modlog.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "not_found", "moderation log entry not found")
	case errors.Is(err, modlog.ErrInvalidReview):
		writeError(w, http.StatusBadRequest, string(pipeline.KindInvalidRequest), err.Error())
	default:
		log.Printf("httpapi: apply review entry=%s: %v", entryID, err)
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
	}
}

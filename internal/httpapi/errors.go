package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/siftchat/dm-app/internal/pipeline"
)

// apiError is the JSON error body. The code is stable and machine
// readable so client UIs can react per failure kind (e.g. offer an
// upload retry without re-triggering moderation).
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Code: code, Message: msg})
}

// writeSendError maps a pipeline failure onto a distinct status and code.
func writeSendError(w http.ResponseWriter, err error) {
	var sendErr *pipeline.SendError
	if !errors.As(err, &sendErr) {
		log.Printf("httpapi: unexpected send error: %v", err)
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
		return
	}

	switch sendErr.Kind {
	case pipeline.KindInvalidRequest:
		writeError(w, http.StatusBadRequest, string(sendErr.Kind), "message must contain text or an image")
	case pipeline.KindModerationUnavailable:
		writeError(w, http.StatusServiceUnavailable, string(sendErr.Kind), "content moderation service unavailable")
	case pipeline.KindUploadFailed:
		writeError(w, http.StatusBadGateway, string(sendErr.Kind), "failed to store image")
	default:
		log.Printf("httpapi: send failed: %v", sendErr)
		writeError(w, http.StatusInternalServerError, string(pipeline.KindInternal), "internal server error")
	}
}

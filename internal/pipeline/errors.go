package pipeline

import "fmt"

// ErrorKind is a stable machine-readable code for a failed send. Each kind
// maps to a distinct HTTP status at the API boundary so clients can react
// differently (e.g. retry an upload without re-triggering moderation).
type ErrorKind string

const (
	// KindInvalidRequest: the send had neither text nor image. No side
	// effects were performed.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindModerationUnavailable: the scoring service failed to produce a
	// verdict. No message was persisted; the sender must retry manually.
	KindModerationUnavailable ErrorKind = "moderation_unavailable"

	// KindUploadFailed: the image passed moderation but storage upload
	// failed. No message was persisted, but ledger entries written during
	// moderation remain (accepted inconsistency: the audit log may contain
	// entries for sends that never completed).
	KindUploadFailed ErrorKind = "upload_failed"

	// KindInternal: unexpected failure such as a store write error. No
	// partial state is guaranteed rolled back.
	KindInternal ErrorKind = "internal_error"
)

// SendError wraps a send failure with its kind.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("pipeline: send failed (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func failed(kind ErrorKind, err error) *SendError {
	return &SendError{Kind: kind, Err: err}
}

// Package pipeline implements the moderation-gated delivery pipeline: the
// state machine that decides, per send attempt, whether to persist the
// message, which warnings to attach, whether to suppress delivery to the
// receiver, and how to fan the result out to both parties.
package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/siftchat/dm-app/internal/message"
	"github.com/siftchat/dm-app/internal/metrics"
	"github.com/siftchat/dm-app/internal/moderation"
	"github.com/siftchat/dm-app/internal/modlog"
)

// Moderator scores a single content unit. Implemented by moderation.Client.
type Moderator interface {
	Evaluate(ctx context.Context, kind moderation.Kind, content string) (moderation.Verdict, error)
}

// MessageStore appends messages. Implemented by message.Store.
type MessageStore interface {
	Insert(ctx context.Context, m *message.Message) error
}

// Ledger appends moderation log entries. Implemented by modlog.Store.
type Ledger interface {
	Insert(ctx context.Context, e *modlog.Entry) error
}

// Uploader stores a raw image payload and returns a resolvable URL.
// It is called only after the image passed moderation.
type Uploader interface {
	Upload(ctx context.Context, data string) (string, error)
}

// Notifier delivers the two real-time events: the full result to the
// sender and the filtered view to the receiver. Both are best-effort.
type Notifier interface {
	NotifySender(ctx context.Context, m *message.Message)
	NotifyReceiver(ctx context.Context, v message.View)
}

// SendRequest is one send attempt entering the pipeline. Image carries the
// raw (base64 or data-URI) payload as submitted by the client.
type SendRequest struct {
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
}

// SendResult is returned to the sender's own request/response channel.
type SendResult struct {
	Message  *message.Message  `json:"message"`
	Warnings []message.Warning `json:"warnings"`
	Blocked  bool              `json:"blocked"`
}

// Pipeline orchestrates moderate -> decide -> persist -> fan out. Each
// Send call is an independent unit of work; there is no cross-send
// coordination.
type Pipeline struct {
	moderator Moderator
	messages  MessageStore
	ledger    Ledger
	uploader  Uploader
	notifier  Notifier
}

// New creates a Pipeline with its collaborators.
func New(moderator Moderator, messages MessageStore, ledger Ledger, uploader Uploader, notifier Notifier) *Pipeline {
	return &Pipeline{
		moderator: moderator,
		messages:  messages,
		ledger:    ledger,
		uploader:  uploader,
		notifier:  notifier,
	}
}

// Pipeline states. The send loop walks these in order; any step may
// terminate with a SendError instead of advancing.
const (
	stateValidating      = "validating"
	stateModeratingText  = "moderating_text"
	stateModeratingImage = "moderating_image"
	stateUploading       = "uploading"
	statePersisting      = "persisting"
	stateDelivering      = "delivering"
	stateDone            = "done"
)

// sendState carries the in-flight send through the state machine.
type sendState struct {
	req      SendRequest
	warnings []message.Warning
	blocked  bool
	imageURL string
	msg      *message.Message
}

// Send runs one send attempt through the pipeline. On success the returned
// result carries the persisted message, the accumulated warnings, and the
// block decision. On failure the error is always a *SendError.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	st := &sendState{req: req}

	state := stateValidating
	for state != stateDone {
		var err error
		switch state {
		case stateValidating:
			state, err = p.validate(st)
		case stateModeratingText:
			state, err = p.moderateText(ctx, st)
		case stateModeratingImage:
			state, err = p.moderateImage(ctx, st)
		case stateUploading:
			state, err = p.upload(ctx, st)
		case statePersisting:
			state, err = p.persist(ctx, st)
		case stateDelivering:
			state, err = p.deliver(ctx, st)
		}
		if err != nil {
			metrics.SendsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
	}

	metrics.SendsTotal.WithLabelValues(outcome(st)).Inc()

	return &SendResult{
		Message:  st.msg,
		Warnings: st.warnings,
		Blocked:  st.blocked,
	}, nil
}

// validate rejects sends with neither text nor image before any side
// effect is performed.
func (p *Pipeline) validate(st *sendState) (string, error) {
	if st.req.Text == "" && st.req.Image == "" {
		return "", failed(KindInvalidRequest, errors.New("neither text nor image present"))
	}
	if st.req.Text == "" {
		return stateModeratingImage, nil
	}
	return stateModeratingText, nil
}

// moderateText scores the text part. A positive verdict writes a ledger
// entry and appends a warning; confidence above the block threshold also
// blocks the whole message.
func (p *Pipeline) moderateText(ctx context.Context, st *sendState) (string, error) {
	verdict, err := p.check(ctx, moderation.KindText, st.req.Text)
	if err != nil {
		return "", failed(KindModerationUnavailable, err)
	}

	if verdict.Inappropriate {
		entry := &modlog.Entry{
			Kind:          moderation.KindText,
			Content:       st.req.Text,
			SenderID:      st.req.SenderID,
			ReceiverID:    st.req.ReceiverID,
			Inappropriate: true,
			Confidence:    verdict.Confidence,
			Categories:    verdict.Categories,
		}
		if err := p.ledger.Insert(ctx, entry); err != nil {
			return "", failed(KindInternal, err)
		}

		st.warnings = append(st.warnings, message.Warning{
			Kind:       string(moderation.KindText),
			Message:    "Your message contains inappropriate language",
			Categories: verdict.Categories,
			Severity:   message.SeverityFor(verdict.Confidence),
		})
		if verdict.Confidence > message.BlockConfidence {
			st.blocked = true
		}
	}

	if st.req.Image == "" {
		return statePersisting, nil
	}
	return stateModeratingImage, nil
}

// moderateImage scores the image part, unless the text check already
// blocked the message: a blocked message drops its image entirely, so the
// image is neither moderated nor uploaded.
func (p *Pipeline) moderateImage(ctx context.Context, st *sendState) (string, error) {
	if st.blocked {
		return statePersisting, nil
	}

	verdict, err := p.check(ctx, moderation.KindImage, st.req.Image)
	if err != nil {
		return "", failed(KindModerationUnavailable, err)
	}

	if verdict.Inappropriate {
		entry := &modlog.Entry{
			Kind:          moderation.KindImage,
			SenderID:      st.req.SenderID,
			ReceiverID:    st.req.ReceiverID,
			Inappropriate: true,
			Confidence:    verdict.Confidence,
			Categories:    verdict.Categories,
		}
		if err := p.ledger.Insert(ctx, entry); err != nil {
			return "", failed(KindInternal, err)
		}

		st.warnings = append(st.warnings, message.Warning{
			Kind:       string(moderation.KindImage),
			Message:    "Image contains inappropriate content",
			Categories: verdict.Categories,
			Severity:   message.SeverityFor(verdict.Confidence),
		})
		if verdict.Confidence > message.BlockConfidence {
			st.blocked = true
		}
	}

	if st.blocked {
		return statePersisting, nil
	}
	return stateUploading, nil
}

// upload stores the image and records its URL. Moderation is not repeated
// on upload failure, and ledger entries already written are not rolled
// back.
func (p *Pipeline) upload(ctx context.Context, st *sendState) (string, error) {
	url, err := p.uploader.Upload(ctx, st.req.Image)
	if err != nil {
		return "", failed(KindUploadFailed, err)
	}
	st.imageURL = url
	return statePersisting, nil
}

// persist constructs the message from the accumulated moderation outcome
// and appends it to the store.
func (p *Pipeline) persist(ctx context.Context, st *sendState) (string, error) {
	st.msg = &message.Message{
		SenderID:   st.req.SenderID,
		ReceiverID: st.req.ReceiverID,
		Text:       st.req.Text,
		ImageURL:   st.imageURL,
		Flagged:    len(st.warnings) > 0,
		Blocked:    st.blocked,
		Warnings:   st.warnings,
	}
	if err := p.messages.Insert(ctx, st.msg); err != nil {
		return "", failed(KindInternal, err)
	}
	return stateDelivering, nil
}

// deliver fans the result out. The sender always receives the full message
// so an optimistically rendered message can be reconciled; the receiver is
// notified only when delivery is not blocked, with the filtered view.
func (p *Pipeline) deliver(ctx context.Context, st *sendState) (string, error) {
	p.notifier.NotifySender(ctx, st.msg)

	if !st.blocked {
		if view, ok := message.VisibleTo(st.msg, st.msg.ReceiverID); ok {
			p.notifier.NotifyReceiver(ctx, view)
		}
	}

	if st.blocked {
		log.Printf("pipeline: blocked message %s sender=%s receiver=%s warnings=%d",
			st.msg.ID, st.msg.SenderID, st.msg.ReceiverID, len(st.warnings))
	}
	return stateDone, nil
}

// check calls the scorer and records latency and verdict metrics.
func (p *Pipeline) check(ctx context.Context, kind moderation.Kind, content string) (moderation.Verdict, error) {
	start := time.Now()
	verdict, err := p.moderator.Evaluate(ctx, kind, content)
	if err != nil {
		return moderation.Verdict{}, err
	}
	metrics.ModerationLatency.Observe(time.Since(start).Seconds())

	label := "clean"
	if verdict.Inappropriate {
		label = "flagged"
	}
	metrics.ModerationChecksTotal.WithLabelValues(string(kind), label).Inc()
	return verdict, nil
}

func outcome(st *sendState) string {
	switch {
	case st.blocked:
		return "blocked"
	case len(st.warnings) > 0:
		return "flagged"
	default:
		return "clean"
	}
}

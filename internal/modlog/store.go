// Package modlog provides the append-only moderation ledger. One entry is
// written per positive moderation verdict, independent of whether the
// message itself was ultimately delivered. Entries feed the aggregate
// stats endpoint and a human review workflow.
package modlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/siftchat/dm-app/internal/moderation"
)

// Review workflow statuses.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// ErrEntryNotFound is returned when a ledger entry id does not exist.
var ErrEntryNotFound = errors.New("modlog: entry not found")

// ErrInvalidReview is returned when a review decision is malformed
// (unknown status or missing reviewer).
var ErrInvalidReview = errors.New("modlog: invalid review")

// Entry is one moderation check recorded in the ledger. Raw content is
// stored for text checks only; image payloads are never logged verbatim.
type Entry struct {
	ID            string
	Kind          moderation.Kind
	Content       string // empty for image checks
	SenderID      string
	ReceiverID    string
	Inappropriate bool
	Confidence    float64
	Categories    []string

	ReviewStatus  string // pending | approved | rejected
	ReviewerID    string
	ReviewerNotes string
	ReviewedAt    *time.Time

	CreatedAt time.Time
}

// Store manages the moderation ledger in PostgreSQL. The delivery pipeline
// is the only writer of new entries; the review workflow mutates only the
// review fields.
type Store struct {
	db *sql.DB
}

// NewStore creates a ledger store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert appends a ledger entry. The ID, review status, and creation time
// are assigned here.
func (s *Store) Insert(ctx context.Context, e *Entry) error {
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("modlog: confidence %v out of range", e.Confidence)
	}

	e.ID = uuid.New().String()
	e.ReviewStatus = ReviewPending
	e.CreatedAt = time.Now().UTC()

	// Image content is never logged verbatim.
	content := e.Content
	if e.Kind == moderation.KindImage {
		content = ""
		e.Content = ""
	}

	const query = `
		INSERT INTO moderation_log (id, content_kind, content, sender_id, receiver_id,
			is_inappropriate, confidence, categories, review_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		string(e.Kind),
		content,
		e.SenderID,
		e.ReceiverID,
		e.Inappropriate,
		e.Confidence,
		pq.Array(e.Categories),
		e.ReviewStatus,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("modlog: insert: %w", err)
	}
	return nil
}

// List returns the full ledger, oldest first. Stats are recomputed from a
// full scan on every call; there is no incremental aggregate to maintain.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT id, content_kind, content, sender_id, receiver_id,
			is_inappropriate, confidence, categories,
			review_status, reviewer_id, reviewer_notes, reviewed_at, created_at
		FROM moderation_log
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("modlog: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                        Entry
			kind                     string
			content, reviewer, notes sql.NullString
			reviewedAt               sql.NullTime
		)
		if err := rows.Scan(&e.ID, &kind, &content, &e.SenderID, &e.ReceiverID,
			&e.Inappropriate, &e.Confidence, pq.Array(&e.Categories),
			&e.ReviewStatus, &reviewer, &notes, &reviewedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("modlog: scan row: %w", err)
		}
		e.Kind = moderation.Kind(kind)
		e.Content = content.String
		e.ReviewerID = reviewer.String
		e.ReviewerNotes = notes.String
		if reviewedAt.Valid {
			t := reviewedAt.Time
			e.ReviewedAt = &t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("modlog: iterate rows: %w", err)
	}
	return entries, nil
}

// ApplyReview records a human reviewer's decision on a ledger entry. Only
// the review fields are mutable; the verdict itself never changes.
func (s *Store) ApplyReview(ctx context.Context, entryID, status, reviewerID, notes string) error {
	if status != ReviewApproved && status != ReviewRejected {
		return fmt.Errorf("%w: status %q", ErrInvalidReview, status)
	}
	if reviewerID == "" {
		return fmt.Errorf("%w: reviewer id is required", ErrInvalidReview)
	}

	const query = `
		UPDATE moderation_log
		SET review_status = $2, reviewer_id = $3, reviewer_notes = $4, reviewed_at = $5
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, entryID, status, reviewerID, notes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("modlog: apply review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("modlog: apply review result: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

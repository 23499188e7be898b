package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists messages in PostgreSQL. Each insert is a single atomic
// row append; messages are never updated or deleted.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert persists a new message. It assigns the ID and timestamps, so the
// caller passes a message without identity fields. The message is
// validated first; an invalid message is never written.
func (s *Store) Insert(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	m.ID = uuid.New().String()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	var warningsJSON []byte
	if len(m.Warnings) > 0 {
		var err error
		warningsJSON, err = json.Marshal(m.Warnings)
		if err != nil {
			return fmt.Errorf("message: marshal warnings: %w", err)
		}
	}

	const query = `
		INSERT INTO messages (id, sender_id, receiver_id, text, image_url, flagged, blocked, warnings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.SenderID,
		m.ReceiverID,
		nullIfEmpty(m.Text),
		nullIfEmpty(m.ImageURL),
		m.Flagged,
		m.Blocked,
		warningsJSON,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("message: insert: %w", err)
	}
	return nil
}

// ListBetween returns every message exchanged between the two users, in
// either direction, ordered by creation time ascending. No visibility
// filtering is applied here; callers apply VisibleTo per viewer.
func (s *Store) ListBetween(ctx context.Context, userA, userB string) ([]Message, error) {
	const query = `
		SELECT id, sender_id, receiver_id, text, image_url, flagged, blocked, warnings, created_at, updated_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("message: list between: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m            Message
			text, image  sql.NullString
			warningsJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &text, &image,
			&m.Flagged, &m.Blocked, &warningsJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("message: scan row: %w", err)
		}
		m.Text = text.String
		m.ImageURL = image.String
		if len(warningsJSON) > 0 {
			if err := json.Unmarshal(warningsJSON, &m.Warnings); err != nil {
				return nil, fmt.Errorf("message: unmarshal warnings for %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: iterate rows: %w", err)
	}
	return messages, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

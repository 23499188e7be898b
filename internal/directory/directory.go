// Package directory exposes the user directory consumed by the messaging
// surfaces. User management itself (signup, profiles, auth) lives in a
// separate service; this package only reads the shared users table.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned when a user id does not exist.
var ErrUserNotFound = errors.New("directory: user not found")

// UserSummary is the directory's public view of a user.
type UserSummary struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Directory lists and resolves users.
type Directory interface {
	// ListAllExcept returns every directory entry except the given user,
	// ordered by username.
	ListAllExcept(ctx context.Context, userID string) ([]UserSummary, error)

	// GetByID resolves a single user. Returns ErrUserNotFound if absent.
	GetByID(ctx context.Context, userID string) (UserSummary, error)
}

// Store is the PostgreSQL-backed directory implementation.
type Store struct {
	db *sql.DB
}

// NewStore creates a directory store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListAllExcept(ctx context.Context, userID string) ([]UserSummary, error) {
	const query = `
		SELECT id, username, display_name, avatar_url, created_at
		FROM users
		WHERE id <> $1
		ORDER BY username ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("directory: list users: %w", err)
	}
	defer rows.Close()

	var users []UserSummary
	for rows.Next() {
		var (
			u      UserSummary
			avatar sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &avatar, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("directory: scan user: %w", err)
		}
		u.AvatarURL = avatar.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) GetByID(ctx context.Context, userID string) (UserSummary, error) {
	const query = `
		SELECT id, username, display_name, avatar_url, created_at
		FROM users
		WHERE id = $1`

	var (
		u      UserSummary
		avatar sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&u.ID, &u.Username, &u.DisplayName, &avatar, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return UserSummary{}, ErrUserNotFound
	}
	if err != nil {
		return UserSummary{}, fmt.Errorf("directory: get user: %w", err)
	}
	u.AvatarURL = avatar.String
	return u, nil
}

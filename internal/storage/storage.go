package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// ErrSessionNotFound is returned when a session doesn't exist
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is the persisted form of a session.
//
// Attributes round-trip through JSON in every adapter except memory, so
// numbers come back as float64.
type SessionRecord struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// Clone returns a copy whose attribute map can be modified independently.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Attributes = maps.Clone(r.Attributes)
	return &c
}

// Expired reports whether the record is expired at now.
func (r *SessionRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SessionStore persists sessions. Implementations must make each operation
// atomic per session id.
type SessionStore interface {
	// GetSession returns ErrSessionNotFound for unknown ids. Expired records
	// are returned as-is; expiry policy belongs to the caller.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// SetSession inserts or replaces a session.
	SetSession(ctx context.Context, record *SessionRecord) error

	// UpdateSessionExpiry changes only the expiry. Returns ErrSessionNotFound
	// when the session is gone.
	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error

	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error

	// GetUserSessions lists every session of a user, expired ones included.
	GetUserSessions(ctx context.Context, userID string) ([]*SessionRecord, error)

	// DeleteUserSessions removes every session of a user.
	DeleteUserSessions(ctx context.Context, userID string) error

	// DeleteExpiredSessions removes expired sessions and reports how many.
	DeleteExpiredSessions(ctx context.Context) (int, error)

	Close() error
}

func encodeAttributes(attributes map[string]any) (string, error) {
	if len(attributes) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attributes)
	if err != nil {
		return "", fmt.Errorf("encoding session attributes: %w", err)
	}
	return string(data), nil
}

func decodeAttributes(data string) (map[string]any, error) {
	if data == "" {
		return map[string]any{}, nil
	}
	var attributes map[string]any
	if err := json.Unmarshal([]byte(data), &attributes); err != nil {
		return nil, fmt.Errorf("decoding session attributes: %w", err)
	}
	if attributes == nil {
		attributes = map[string]any{}
	}
	return attributes, nil
}

func validateRecord(record *SessionRecord) error {
	if record == nil {
		return fmt.Errorf("session record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if record.UserID == "" {
		return fmt.Errorf("session user id is required")
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Ensure SQLiteStorage implements SessionStore
var _ SessionStore = (*SQLiteStorage)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS auth_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	attributes TEXT NOT NULL DEFAULT '{}',
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS auth_sessions_user_id_idx ON auth_sessions (user_id);
CREATE INDEX IF NOT EXISTS auth_sessions_expires_at_idx ON auth_sessions (expires_at);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// SQLiteStorage persists sessions in a single SQLite file.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage opens (or creates) the database at path and applies the schema.
func NewSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

// GetSession loads a session by id.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, attributes, expires_at FROM auth_sessions WHERE id = ?`, id)

	record, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

// SetSession inserts or replaces a session.
func (s *SQLiteStorage) SetSession(ctx context.Context, record *SessionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	attributes, err := encodeAttributes(record.Attributes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO auth_sessions (id, user_id, attributes, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	user_id = excluded.user_id,
	attributes = excluded.attributes,
	expires_at = excluded.expires_at`,
		record.ID, record.UserID, attributes, toMillis(record.ExpiresAt))
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// UpdateSessionExpiry changes the expiry of an existing session.
func (s *SQLiteStorage) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auth_sessions SET expires_at = ? WHERE id = ?`, toMillis(expiresAt), id)
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session if present.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// GetUserSessions lists a user's sessions.
func (s *SQLiteStorage) GetUserSessions(ctx context.Context, userID string) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, attributes, expires_at FROM auth_sessions WHERE user_id = ? ORDER BY expires_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	defer rows.Close()

	records := []*SessionRecord{}
	for rows.Next() {
		record, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user sessions: %w", err)
	}
	return records, nil
}

// DeleteUserSessions removes all of a user's sessions.
func (s *SQLiteStorage) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every expired session.
func (s *SQLiteStorage) DeleteExpiredSessions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_sessions WHERE expires_at <= ?`, toMillis(s.now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(n), nil
}

// Close releases the underlying SQLite database.
func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*SessionRecord, error) {
	var (
		record     SessionRecord
		attributes string
		expiresAt  int64
	)
	if err := row.Scan(&record.ID, &record.UserID, &attributes, &expiresAt); err != nil {
		return nil, err
	}
	decoded, err := decodeAttributes(attributes)
	if err != nil {
		return nil, err
	}
	record.Attributes = decoded
	record.ExpiresAt = fromMillis(expiresAt)
	return &record, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure PostgresStorage implements SessionStore
var _ SessionStore = (*PostgresStorage)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS auth_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS auth_sessions_user_id_idx ON auth_sessions (user_id);
CREATE INDEX IF NOT EXISTS auth_sessions_expires_at_idx ON auth_sessions (expires_at);
`

// PostgresStorage persists sessions in PostgreSQL through a pgx pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStorage connects to dsn and applies the schema.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &PostgresStorage{pool: pool, now: time.Now}, nil
}

// GetSession loads a session by id.
func (s *PostgresStorage) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, attributes::text, expires_at FROM auth_sessions WHERE id = $1`, id)

	record, err := scanPostgresSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

// SetSession inserts or replaces a session.
func (s *PostgresStorage) SetSession(ctx context.Context, record *SessionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	attributes, err := encodeAttributes(record.Attributes)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO auth_sessions (id, user_id, attributes, expires_at)
VALUES ($1, $2, $3::jsonb, $4)
ON CONFLICT (id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	attributes = EXCLUDED.attributes,
	expires_at = EXCLUDED.expires_at`,
		record.ID, record.UserID, attributes, record.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// UpdateSessionExpiry changes the expiry of an existing session.
func (s *PostgresStorage) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auth_sessions SET expires_at = $1 WHERE id = $2`, expiresAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes a session if present.
func (s *PostgresStorage) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// GetUserSessions lists a user's sessions.
func (s *PostgresStorage) GetUserSessions(ctx context.Context, userID string) ([]*SessionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, attributes::text, expires_at FROM auth_sessions WHERE user_id = $1 ORDER BY expires_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	defer rows.Close()

	records := []*SessionRecord{}
	for rows.Next() {
		record, err := scanPostgresSession(rows)
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
func (s *PostgresStorage) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every expired session.
func (s *PostgresStorage) DeleteExpiredSessions(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the pool.
func (s *PostgresStorage) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func scanPostgresSession(row pgx.Row) (*SessionRecord, error) {
	var (
		record     SessionRecord
		attributes string
	)
	if err := row.Scan(&record.ID, &record.UserID, &attributes, &record.ExpiresAt); err != nil {
		return nil, err
	}
	decoded, err := decodeAttributes(attributes)
	if err != nil {
		return nil, err
	}
	record.Attributes = decoded
	record.ExpiresAt = record.ExpiresAt.UTC()
	return &record, nil
}

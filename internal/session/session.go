package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lewis-wow/auth/internal/crypto"
	"github.com/lewis-wow/auth/internal/envutil"
	"github.com/lewis-wow/auth/internal/log"
	"github.com/lewis-wow/auth/internal/storage"
)

const (
	// DefaultExpiresIn is the lifetime of a new or renewed session.
	DefaultExpiresIn = 30 * 24 * time.Hour

	// DefaultCookieName is the session cookie name.
	DefaultCookieName = "auth_session"
)

// Validation results reported to the Recorder.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
	ResultRenewed = "renewed"
)

// Session is a validated first-party session.
type Session struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Attributes map[string]any `json:"attributes"`
	ExpiresAt  time.Time      `json:"expiresAt"`
	// Fresh is set when the session was created or its expiry extended
	// during this call, so the transport should re-issue the cookie.
	Fresh bool `json:"fresh"`
}

// Recorder receives session lifecycle events.
type Recorder interface {
	SessionCreated()
	SessionValidated(result string)
	SessionInvalidated()
}

type noopRecorder struct{}

func (noopRecorder) SessionCreated()         {}
func (noopRecorder) SessionValidated(string) {}
func (noopRecorder) SessionInvalidated()     {}

// Manager creates, validates and invalidates sessions. It keeps no state
// between calls; the store is the source of truth.
type Manager struct {
	store            storage.SessionStore
	expiresIn        time.Duration
	renewalThreshold time.Duration
	cookie           CookieOptions
	recorder         Recorder
	now              func() time.Time
	renewals         singleflight.Group
}

// Option configures the manager
type Option func(*Manager)

// WithExpiresIn sets the session lifetime.
func WithExpiresIn(d time.Duration) Option {
	return func(m *Manager) {
		m.expiresIn = d
	}
}

// WithRenewalThreshold sets the remaining lifetime below which Validate
// extends a session. Defaults to half the lifetime.
func WithRenewalThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.renewalThreshold = d
	}
}

// WithCookie sets the session cookie attributes.
func WithCookie(opts CookieOptions) Option {
	return func(m *Manager) {
		m.cookie = opts
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager over store.
func NewManager(store storage.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		expiresIn: DefaultExpiresIn,
		recorder:  noopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.expiresIn <= 0 {
		m.expiresIn = DefaultExpiresIn
	}
	if m.renewalThreshold <= 0 || m.renewalThreshold > m.expiresIn {
		m.renewalThreshold = m.expiresIn / 2
	}
	m.cookie = m.cookie.withDefaults()
	return m
}

// Create persists a new session for userID.
func (m *Manager) Create(ctx context.Context, userID string, attributes map[string]any) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	id, err := crypto.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	record := &storage.SessionRecord{
		ID:         id,
		UserID:     userID,
		Attributes: maps.Clone(attributes),
		ExpiresAt:  m.now().Add(m.expiresIn),
	}
	if record.Attributes == nil {
		record.Attributes = map[string]any{}
	}
	if err := m.store.SetSession(ctx, record); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	m.recorder.SessionCreated()
	log.LogDebugWithFields("session", "Session created", map[string]any{
		"user_id":    userID,
		"expires_at": record.ExpiresAt,
	})

	s := fromRecord(record)
	s.Fresh = true
	return s, nil
}

// Validate returns the session for id, or nil when the id is malformed,
// unknown or expired. Expired sessions are deleted. A session close to
// expiry is extended and returned with Fresh set.
func (m *Manager) Validate(ctx context.Context, id string) (*Session, error) {
	if !crypto.IsValidSessionID(id) {
		m.recorder.SessionValidated(ResultInvalid)
		return nil, nil
	}

	record, err := m.store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		m.recorder.SessionValidated(ResultInvalid)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	now := m.now()
	if record.Expired(now) {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			log.LogWarnWithFields("session", "Failed to delete expired session", map[string]any{
				"error": err.Error(),
			})
		}
		m.recorder.SessionValidated(ResultInvalid)
		return nil, nil
	}

	s := fromRecord(record)
	if record.ExpiresAt.Sub(now) >= m.renewalThreshold {
		m.recorder.SessionValidated(ResultValid)
		return s, nil
	}

	v, err, _ := m.renewals.Do(id, func() (any, error) {
		expiresAt := m.now().Add(m.expiresIn)
		if err := m.store.UpdateSessionExpiry(ctx, id, expiresAt); err != nil {
			return nil, err
		}
		return expiresAt, nil
	})
	if errors.Is(err, storage.ErrSessionNotFound) {
		// deleted while renewing
		m.recorder.SessionValidated(ResultInvalid)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("renewing session: %w", err)
	}

	s.ExpiresAt = v.(time.Time)
	s.Fresh = true
	m.recorder.SessionValidated(ResultRenewed)
	log.LogTraceWithFields("session", "Session renewed", map[string]any{
		"user_id":    s.UserID,
		"expires_at": s.ExpiresAt,
	})
	return s, nil
}

// Invalidate deletes a session. Unknown and malformed ids are not an error;
// a malformed id never reaches the store.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	if !crypto.IsValidSessionID(id) {
		return nil
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	m.recorder.SessionInvalidated()
	return nil
}

// InvalidateUserSessions deletes every session of userID.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID string) error {
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	m.recorder.SessionInvalidated()
	return nil
}

// UserSessions lists the live sessions of userID.
func (m *Manager) UserSessions(ctx context.Context, userID string) ([]*Session, error) {
	records, err := m.store.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user sessions: %w", err)
	}

	now := m.now()
	sessions := make([]*Session, 0, len(records))
	for _, record := range records {
		if record.Expired(now) {
			continue
		}
		sessions = append(sessions, fromRecord(record))
	}
	return sessions, nil
}

// DeleteExpiredSessions sweeps expired sessions from the store.
func (m *Manager) DeleteExpiredSessions(ctx context.Context) (int, error) {
	return m.store.DeleteExpiredSessions(ctx)
}

func fromRecord(record *storage.SessionRecord) *Session {
	attributes := maps.Clone(record.Attributes)
	if attributes == nil {
		attributes = map[string]any{}
	}
	return &Session{
		ID:         record.ID,
		UserID:     record.UserID,
		Attributes: attributes,
		ExpiresAt:  record.ExpiresAt,
	}
}

func secureDefault() bool {
	return envutil.IsProduction()
}

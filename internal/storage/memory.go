package storage

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryStorage implements SessionStore
var _ SessionStore = (*MemoryStorage)(nil)

// MemoryStorage keeps sessions in process memory. Sessions are lost on restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord
	byUser   map[string]map[string]struct{}
	now      func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*SessionRecord),
		byUser:   make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// GetSession returns a copy of the stored session.
func (s *MemoryStorage) GetSession(_ context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return record.Clone(), nil
}

// SetSession inserts or replaces a session.
func (s *MemoryStorage) SetSession(_ context.Context, record *SessionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[record.ID]; ok && existing.UserID != record.UserID {
		s.unindex(existing)
	}
	s.sessions[record.ID] = record.Clone()
	ids, ok := s.byUser[record.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[record.UserID] = ids
	}
	ids[record.ID] = struct{}{}
	return nil
}

// UpdateSessionExpiry changes the expiry of an existing session.
func (s *MemoryStorage) UpdateSessionExpiry(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	record.ExpiresAt = expiresAt
	return nil
}

// DeleteSession removes a session if present.
func (s *MemoryStorage) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		s.unindex(record)
	}
	return nil
}

// GetUserSessions lists a user's sessions.
func (s *MemoryStorage) GetUserSessions(_ context.Context, userID string) ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	records := make([]*SessionRecord, 0, len(ids))
	for id := range ids {
		records = append(records, s.sessions[id].Clone())
	}
	return records, nil
}

// DeleteUserSessions removes all of a user's sessions.
func (s *MemoryStorage) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.byUser[userID] {
		delete(s.sessions, id)
	}
	delete(s.byUser, userID)
	return nil
}

// DeleteExpiredSessions removes every expired session.
func (s *MemoryStorage) DeleteExpiredSessions(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for id, record := range s.sessions {
		if record.Expired(now) {
			delete(s.sessions, id)
			s.unindex(record)
			count++
		}
	}
	return count, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

// unindex drops record from the per-user index. Callers hold mu.
func (s *MemoryStorage) unindex(record *SessionRecord) {
	ids := s.byUser[record.UserID]
	delete(ids, record.ID)
	if len(ids) == 0 {
		delete(s.byUser, record.UserID)
	}
}

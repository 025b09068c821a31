package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lewis-wow/auth/internal/crypto"
	"github.com/lewis-wow/auth/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *storage.MemoryStorage, *fakeClock) {
	t.Helper()
	store := storage.NewMemoryStorage()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(store, opts...), store, clock
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) SessionCreated()                { m.Called() }
func (m *mockRecorder) SessionValidated(result string) { m.Called(result) }
func (m *mockRecorder) SessionInvalidated()            { m.Called() }

// failingStore fails every read.
type failingStore struct {
	storage.SessionStore
}

func (failingStore) GetSession(context.Context, string) (*storage.SessionRecord, error) {
	return nil, errors.New("connection refused")
}

// deleteRecordingStore records the ids passed to DeleteSession.
type deleteRecordingStore struct {
	*storage.MemoryStorage
	mu      sync.Mutex
	deleted []string
}

func (s *deleteRecordingStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, id)
	s.mu.Unlock()
	return s.MemoryStorage.DeleteSession(ctx, id)
}

// countingStore counts expiry updates and holds them until release is closed.
type countingStore struct {
	*storage.MemoryStorage
	updates atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *countingStore) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	s.updates.Add(1)
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.MemoryStorage.UpdateSessionExpiry(ctx, id, expiresAt)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	m, store, clock := newTestManager(t)

	attrs := map[string]any{"id": "github:1", "name": "Ada"}
	s, err := m.Create(ctx, "github:1", attrs)
	require.NoError(t, err)

	assert.True(t, crypto.IsValidSessionID(s.ID))
	assert.Equal(t, "github:1", s.UserID)
	assert.True(t, s.Fresh)
	assert.Equal(t, clock.Now().Add(DefaultExpiresIn), s.ExpiresAt)

	attrs["name"] = "changed"
	record, err := store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", record.Attributes["name"])

	_, err = m.Create(ctx, "", nil)
	assert.Error(t, err)
}

func TestCreateUniqueIDs(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s, err := m.Create(ctx, "user", nil)
		require.NoError(t, err)
		require.False(t, seen[s.ID], "duplicate session id %s", s.ID)
		seen[s.ID] = true
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed and unknown ids", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		for _, id := range []string{"", "short", "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567", "abcdefghijklmnopqrstuvwxyz234567"} {
			s, err := m.Validate(ctx, id)
			assert.NoError(t, err, id)
			assert.Nil(t, s, id)
		}
	})

	t.Run("valid session is not renewed", func(t *testing.T) {
		m, _, clock := newTestManager(t)
		created, err := m.Create(ctx, "u1", map[string]any{"k": "v"})
		require.NoError(t, err)

		clock.Advance(time.Hour)
		s, err := m.Validate(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.False(t, s.Fresh)
		assert.Equal(t, created.ExpiresAt, s.ExpiresAt)
		assert.Equal(t, "v", s.Attributes["k"])
	})

	t.Run("session near expiry is renewed in place", func(t *testing.T) {
		m, store, clock := newTestManager(t)
		created, err := m.Create(ctx, "u1", nil)
		require.NoError(t, err)

		clock.Advance(16 * 24 * time.Hour)
		s, err := m.Validate(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.True(t, s.Fresh)
		assert.Equal(t, created.ID, s.ID)
		assert.Equal(t, clock.Now().Add(DefaultExpiresIn), s.ExpiresAt)

		record, err := store.GetSession(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ExpiresAt, record.ExpiresAt)

		sessions, err := store.GetUserSessions(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("expired session is deleted", func(t *testing.T) {
		m, store, clock := newTestManager(t)
		created, err := m.Create(ctx, "u1", nil)
		require.NoError(t, err)

		clock.Advance(DefaultExpiresIn)
		s, err := m.Validate(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, s)

		_, err = store.GetSession(ctx, created.ID)
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	})

	t.Run("store errors are returned", func(t *testing.T) {
		m := NewManager(failingStore{})
		id, err := crypto.GenerateSessionID()
		require.NoError(t, err)

		s, err := m.Validate(ctx, id)
		assert.Error(t, err)
		assert.Nil(t, s)
	})

	t.Run("custom renewal threshold", func(t *testing.T) {
		m, _, clock := newTestManager(t, WithExpiresIn(time.Hour), WithRenewalThreshold(10*time.Minute))
		created, err := m.Create(ctx, "u1", nil)
		require.NoError(t, err)

		clock.Advance(45 * time.Minute)
		s, err := m.Validate(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, s.Fresh)

		clock.Advance(10 * time.Minute)
		s, err = m.Validate(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, s.Fresh)
	})
}

func TestValidateConcurrentRenewal(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{
		MemoryStorage: storage.NewMemoryStorage(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	clock := &fakeClock{now: time.Now()}
	m := NewManager(store, WithClock(clock.Now))

	created, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(20 * 24 * time.Hour)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Session, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Validate(ctx, created.ID)
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}

	<-store.entered
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.LessOrEqual(t, int(store.updates.Load()), callers)
	assert.GreaterOrEqual(t, int(store.updates.Load()), 1)
	for _, s := range results {
		require.NotNil(t, s)
		assert.Equal(t, created.ID, s.ID)
	}

	sessions, err := store.GetUserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)

	s, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	require.NoError(t, m.Invalidate(ctx, s.ID))
	require.NoError(t, m.Invalidate(ctx, s.ID))

	for range 2 {
		got, err := m.Validate(ctx, s.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	_, err = store.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestInvalidateMalformedID(t *testing.T) {
	ctx := context.Background()
	store := &deleteRecordingStore{MemoryStorage: storage.NewMemoryStorage()}
	m := NewManager(store)

	s, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	for _, id := range []string{"", "a/b", "\xff", s.ID + "x", strings.ToUpper(s.ID)} {
		assert.NoError(t, m.Invalidate(ctx, id), "id %q", id)
	}
	assert.Empty(t, store.deleted)

	got, err := m.Validate(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, m.Invalidate(ctx, s.ID))
	assert.Equal(t, []string{s.ID}, store.deleted)
}

func TestUserSessions(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t, WithExpiresIn(time.Hour))

	first, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, err = m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	_, err = m.Create(ctx, "u2", nil)
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	sessions, err := m.UserSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotEqual(t, first.ID, sessions[0].ID)

	require.NoError(t, m.InvalidateUserSessions(ctx, "u1"))
	sessions, err = m.UserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	others, err := m.UserSessions(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestDeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t, WithExpiresIn(-time.Hour))

	// negative lifetimes fall back to the default
	s, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultExpiresIn), s.ExpiresAt)

	count, err := m.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	rec := &mockRecorder{}
	rec.On("SessionCreated").Once()
	rec.On("SessionValidated", ResultValid).Once()
	rec.On("SessionValidated", ResultInvalid).Once()
	rec.On("SessionInvalidated").Once()

	m, _, _ := newTestManager(t, WithRecorder(rec))
	s, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	_, err = m.Validate(ctx, s.ID)
	require.NoError(t, err)
	_, err = m.Validate(ctx, "nope")
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(ctx, s.ID))

	rec.AssertExpectations(t)
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupManager(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	now := time.Now()

	require.NoError(t, store.SetSession(ctx, &SessionRecord{ID: "old", UserID: "u1", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.SetSession(ctx, &SessionRecord{ID: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))

	cm := NewCleanupManager(store, time.Hour)
	cm.Start(ctx)

	assert.Eventually(t, func() bool {
		_, err := store.GetSession(ctx, "old")
		return err == ErrSessionNotFound
	}, time.Second, 10*time.Millisecond)

	cm.Stop()

	_, err := store.GetSession(ctx, "live")
	assert.NoError(t, err)
}

func TestCleanupManagerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cm := NewCleanupManager(NewMemoryStorage(), time.Hour)
	cm.Start(ctx)
	cancel()

	select {
	case <-cm.doneChan:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not exit after context cancel")
	}
}

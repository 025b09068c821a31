package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("AUTH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUTH_TEST_POSTGRES_DSN not set")
	}

	runStoreContract(t, func(t *testing.T) (SessionStore, func(func() time.Time)) {
		ctx := context.Background()
		store, err := NewPostgresStorage(ctx, dsn)
		require.NoError(t, err)
		_, err = store.pool.Exec(ctx, `TRUNCATE auth_sessions`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store, func(now func() time.Time) { store.now = now }
	})
}

func TestPostgresStorageRequiresDSN(t *testing.T) {
	_, err := NewPostgresStorage(context.Background(), "")
	assert.ErrorContains(t, err, "postgres dsn is required")
}

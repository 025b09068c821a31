package storage

import (
	"context"
	"time"

	"github.com/lewis-wow/auth/internal/log"
)

// CleanupManager periodically deletes expired sessions from a store.
type CleanupManager struct {
	store    SessionStore
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(store SessionStore, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting session cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop stops the loop and waits for it to exit. Call it at most once, after Start.
func (cm *CleanupManager) Stop() {
	log.Logf("Stopping session cleanup manager...")
	close(cm.stopChan)
	<-cm.doneChan
	log.Logf("Session cleanup manager stopped")
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			cm.cleanup(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.store.DeleteExpiredSessions(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired sessions", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired sessions", map[string]any{
			"count": count,
		})
	}
}

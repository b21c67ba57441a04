package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// ErrNotFound is returned when no verdict is cached for a sender
var ErrNotFound = errors.New("verdict not found")

// MemoryCache is an in-memory implementation of the core.VerdictCache interface
type MemoryCache struct {
	verdicts    map[string]*core.CachedVerdict
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMemoryCache creates a new in-memory verdict cache
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		verdicts:    make(map[string]*core.CachedVerdict),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go cache.startCleanupTask()

	return cache
}

// Get retrieves a cached verdict for a sender
func (c *MemoryCache) Get(ctx context.Context, sender string) (*core.CachedVerdict, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	verdict, ok := c.verdicts[sender]
	if !ok {
		return nil, ErrNotFound
	}

	if time.Now().After(verdict.ExpiresAt) {
		return nil, ErrNotFound
	}

	copied := *verdict
	return &copied, nil
}

// Set stores a verdict
func (c *MemoryCache) Set(ctx context.Context, verdict *core.CachedVerdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *verdict
	c.verdicts[verdict.Sender] = &copied
	return nil
}

// Delete removes a verdict
func (c *MemoryCache) Delete(ctx context.Context, sender string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.verdicts, sender)
	return nil
}

// Cleanup removes expired verdicts
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0

	for sender, verdict := range c.verdicts {
		if now.After(verdict.ExpiresAt) {
			delete(c.verdicts, sender)
			expired++
		}
	}

	c.logger.Debug("Cleaned up expired verdicts", zap.Int("expired_count", expired))
	return nil
}

// startCleanupTask starts a background task to clean up expired verdicts
func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up verdict cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	close(c.stopCh)
}

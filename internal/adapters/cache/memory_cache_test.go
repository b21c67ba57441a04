package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(zap.NewNop(), time.Hour)
	t.Cleanup(c.Stop)
	return c
}

func TestMemoryCacheSetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	entry := &core.CachedVerdict{
		Sender:     "a@b.c",
		Category:   core.CategorySpam,
		Confidence: 0.9,
		LastSeen:   time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	require.NoError(t, c.Set(ctx, entry))

	got, err := c.Get(ctx, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, core.CategorySpam, got.Category)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestMemoryCacheGetMissing(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Get(context.Background(), "nobody@b.c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheExpiredEntryNotReturned(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &core.CachedVerdict{
		Sender:    "stale@b.c",
		Category:  core.CategoryNeutral,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := c.Get(ctx, "stale@b.c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &core.CachedVerdict{
		Sender:    "gone@b.c",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, c.Delete(ctx, "gone@b.c"))

	_, err := c.Get(ctx, "gone@b.c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheCleanupRemovesOnlyExpired(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &core.CachedVerdict{
		Sender:    "fresh@b.c",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, c.Set(ctx, &core.CachedVerdict{
		Sender:    "stale@b.c",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	require.NoError(t, c.Cleanup(ctx))

	_, err := c.Get(ctx, "fresh@b.c")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "stale@b.c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheGetReturnsCopy(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &core.CachedVerdict{
		Sender:     "a@b.c",
		Category:   core.CategorySpam,
		Confidence: 0.9,
		ExpiresAt:  time.Now().Add(time.Hour),
	}))

	got, err := c.Get(ctx, "a@b.c")
	require.NoError(t, err)
	got.Category = core.CategoryNeutral

	again, err := c.Get(ctx, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, core.CategorySpam, again.Category, "mutating a returned verdict must not affect the cache")
}

package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// SQLiteCache is a SQLite implementation of the core.VerdictCache interface
type SQLiteCache struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewSQLiteCache creates a new SQLite verdict cache
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS verdict_cache (
			sender TEXT PRIMARY KEY,
			category TEXT,
			confidence REAL,
			last_seen TIMESTAMP,
			expires_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Index on expires_at keeps cleanup cheap
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_expires_at ON verdict_cache(expires_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	cache := &SQLiteCache{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go cache.startCleanupTask()

	return cache, nil
}

// Get retrieves a cached verdict for a sender
func (c *SQLiteCache) Get(ctx context.Context, sender string) (*core.CachedVerdict, error) {
	var category string
	var confidence float64
	var lastSeen, expiresAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT category, confidence, last_seen, expires_at
		FROM verdict_cache
		WHERE sender = ? AND expires_at > ?
	`, sender, time.Now().Format(time.RFC3339)).Scan(&category, &confidence, &lastSeen, &expiresAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query verdict cache: %w", err)
	}

	seen, err := time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_seen timestamp: %w", err)
	}
	expires, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at timestamp: %w", err)
	}

	return &core.CachedVerdict{
		Sender:     sender,
		Category:   core.Category(category),
		Confidence: confidence,
		LastSeen:   seen,
		ExpiresAt:  expires,
	}, nil
}

// Set stores a verdict
func (c *SQLiteCache) Set(ctx context.Context, verdict *core.CachedVerdict) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO verdict_cache (sender, category, confidence, last_seen, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, verdict.Sender, string(verdict.Category), verdict.Confidence,
		verdict.LastSeen.Format(time.RFC3339), verdict.ExpiresAt.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}
	return nil
}

// Delete removes a verdict
func (c *SQLiteCache) Delete(ctx context.Context, sender string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM verdict_cache WHERE sender = ?
	`, sender)
	if err != nil {
		return fmt.Errorf("failed to delete verdict: %w", err)
	}
	return nil
}

// Cleanup removes expired verdicts
func (c *SQLiteCache) Cleanup(ctx context.Context) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM verdict_cache WHERE expires_at <= ?
	`, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to clean up verdicts: %w", err)
	}

	if expired, err := res.RowsAffected(); err == nil {
		c.logger.Debug("Cleaned up expired verdicts", zap.Int64("expired_count", expired))
	}
	return nil
}

// startCleanupTask starts a background task to clean up expired verdicts
func (c *SQLiteCache) startCleanupTask() {
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

// Stop stops the background cleanup task and closes the database
func (c *SQLiteCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}

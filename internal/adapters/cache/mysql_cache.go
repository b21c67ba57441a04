package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// MySQLCache is a MySQL implementation of the core.VerdictCache interface,
// for deployments where several filter instances share one verdict store
type MySQLCache struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMySQLCache creates a new MySQL verdict cache
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS verdict_cache (
			sender VARCHAR(320) PRIMARY KEY,
			category VARCHAR(16),
			confidence DOUBLE,
			last_seen DATETIME,
			expires_at DATETIME,
			INDEX idx_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	cache := &MySQLCache{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go cache.startCleanupTask()

	return cache, nil
}

// Get retrieves a cached verdict for a sender
func (c *MySQLCache) Get(ctx context.Context, sender string) (*core.CachedVerdict, error) {
	var category string
	var confidence float64
	var lastSeen, expiresAt time.Time

	err := c.db.QueryRowContext(ctx, `
		SELECT category, confidence, last_seen, expires_at
		FROM verdict_cache
		WHERE sender = ? AND expires_at > NOW()
	`, sender).Scan(&category, &confidence, &lastSeen, &expiresAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query verdict cache: %w", err)
	}

	return &core.CachedVerdict{
		Sender:     sender,
		Category:   core.Category(category),
		Confidence: confidence,
		LastSeen:   lastSeen,
		ExpiresAt:  expiresAt,
	}, nil
}

// Set stores a verdict
func (c *MySQLCache) Set(ctx context.Context, verdict *core.CachedVerdict) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO verdict_cache (sender, category, confidence, last_seen, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			category = VALUES(category),
			confidence = VALUES(confidence),
			last_seen = VALUES(last_seen),
			expires_at = VALUES(expires_at)
	`, verdict.Sender, string(verdict.Category), verdict.Confidence,
		verdict.LastSeen, verdict.ExpiresAt)

	if err != nil {
		return fmt.Errorf("failed to upsert verdict: %w", err)
	}
	return nil
}

// Delete removes a verdict
func (c *MySQLCache) Delete(ctx context.Context, sender string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM verdict_cache WHERE sender = ?
	`, sender)
	if err != nil {
		return fmt.Errorf("failed to delete verdict: %w", err)
	}
	return nil
}

// Cleanup removes expired verdicts
func (c *MySQLCache) Cleanup(ctx context.Context) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM verdict_cache WHERE expires_at <= NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to clean up verdicts: %w", err)
	}

	if expired, err := res.RowsAffected(); err == nil {
		c.logger.Debug("Cleaned up expired verdicts", zap.Int64("expired_count", expired))
	}
	return nil
}

// startCleanupTask starts a background task to clean up expired verdicts
func (c *MySQLCache) startCleanupTask() {
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

// Stop stops the background cleanup task and closes the connection pool
func (c *MySQLCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close MySQL connection", zap.Error(err))
	}
}

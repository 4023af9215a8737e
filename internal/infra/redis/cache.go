package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tallyops/settlebook/internal/ledger"
	"github.com/tallyops/settlebook/pkg/logger"
)

const (
	// DefaultTTL keeps cached summaries short-lived; the log is the
	// source of truth and the cache only absorbs read bursts.
	DefaultTTL = 30 * time.Second

	// KeyPrefix is the prefix for summary cache keys
	KeyPrefix = "summary:"
)

// SummaryCache is a Redis-backed read-through cache for settlement
// summaries. Every write path must invalidate the chat's entry, since
// summaries are always derived from the transaction log.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewSummaryCache creates a summary cache with the default TTL.
func NewSummaryCache(client *redis.Client, log *logger.Logger) *SummaryCache {
	return NewSummaryCacheWithTTL(client, DefaultTTL, log)
}

// NewSummaryCacheWithTTL creates a summary cache with a custom TTL.
func NewSummaryCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *SummaryCache {
	return &SummaryCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "summary_cache"),
	}
}

type cachedSummary struct {
	Summary     *ledger.Summary `json:"summary"`
	PeriodStart time.Time       `json:"period_start"`
	CachedAt    time.Time       `json:"cached_at"`
}

func summaryKey(chatID int64) string {
	return fmt.Sprintf("%schat:%d", KeyPrefix, chatID)
}

// Get retrieves a cached summary for a chat. The entry only counts as a
// hit when it was computed for the same period start.
func (c *SummaryCache) Get(ctx context.Context, chatID int64, periodStart time.Time) (*ledger.Summary, bool, error) {
	key := summaryKey(chatID)

	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", "chat_id", chatID)
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "chat_id", chatID, "error", err)
		return nil, false, fmt.Errorf("failed to get cached summary: %w", err)
	}

	var cached cachedSummary
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached summary: %w", err)
	}

	if !cached.PeriodStart.Equal(periodStart) {
		// A period rollover happened since the entry was written.
		return nil, false, nil
	}

	c.logger.Debug("cache hit", "chat_id", chatID)
	return cached.Summary, true, nil
}

// Set stores a summary for the chat's current period.
func (c *SummaryCache) Set(ctx context.Context, summary *ledger.Summary, periodStart time.Time) error {
	key := summaryKey(summary.ChatID)

	cached := cachedSummary{
		Summary:     summary,
		PeriodStart: periodStart,
		CachedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "chat_id", summary.ChatID, "error", err)
		return fmt.Errorf("failed to set cached summary: %w", err)
	}

	return nil
}

// Invalidate drops the chat's cached summary after a write.
func (c *SummaryCache) Invalidate(ctx context.Context, chatID int64) error {
	if err := c.client.Del(ctx, summaryKey(chatID)).Err(); err != nil {
		c.logger.Error("cache error", "operation", "invalidate", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to invalidate cached summary: %w", err)
	}
	return nil
}

// Clear removes every cached summary.
func (c *SummaryCache) Clear(ctx context.Context) error {
	pattern := fmt.Sprintf("%s*", KeyPrefix)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			pipe = c.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	return iter.Err()
}

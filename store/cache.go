package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tax-engagement-service/models"

	"github.com/redis/go-redis/v9"
)

// statsTTL bounds how stale a cached stats row may get if an invalidation is
// lost.
const statsTTL = 5 * time.Minute

// CachedStore is a read-through Redis cache over another Store. Only the
// stats row is cached; it is the hottest read (every progress and level
// request) and the only one the dashboard polls. All other methods pass
// through unchanged.
type CachedStore struct {
	Store
	rdb *redis.Client
	log *slog.Logger
}

func NewCachedStore(inner Store, rdb *redis.Client, log *slog.Logger) *CachedStore {
	return &CachedStore{Store: inner, rdb: rdb, log: log}
}

func statsKey(userID string) string {
	return "engagement:stats:" + userID
}

func (c *CachedStore) GetStats(ctx context.Context, userID string) (*models.UserStats, error) {
	key := statsKey(userID)
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var stats models.UserStats
		if err := json.Unmarshal(data, &stats); err == nil {
			return &stats, nil
		}
		// Corrupt entry; fall through to the source of truth.
		c.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		c.log.Warn("stats cache read failed", "user_id", userID, "error", err)
	}

	stats, err := c.Store.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(stats); err == nil {
		if err := c.rdb.Set(ctx, key, data, statsTTL).Err(); err != nil {
			c.log.Warn("stats cache write failed", "user_id", userID, "error", err)
		}
	}
	return stats, nil
}

func (c *CachedStore) UpdateStats(ctx context.Context, userID string, mutate func(*models.UserStats) error) (*models.UserStats, error) {
	stats, err := c.Store.UpdateStats(ctx, userID, mutate)
	if err != nil {
		return nil, err
	}
	// Invalidate rather than write-through; the next read repopulates with
	// whatever the database actually settled on.
	if err := c.rdb.Del(ctx, statsKey(userID)).Err(); err != nil {
		c.log.Warn("stats cache invalidation failed", "user_id", userID, "error", err)
	}
	return stats, nil
}

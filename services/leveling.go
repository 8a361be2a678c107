package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tax-engagement-service/models"
	"tax-engagement-service/store"
)

// BaseXPPerLevel anchors the level curve; level 1 always needs 100 XP.
const BaseXPPerLevel = 100

// xpForNextLevel returns the XP needed to clear the given level, i.e. the
// size of the bucket a user at `level` must fill to reach level+1.
// The curve is floor((level+1)^1.5 * 100) from the first level-up on.
func xpForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Pow(float64(level+1), 1.5) * BaseXPPerLevel)
}

// LevelingService owns XP awards and the level carry loop.
type LevelingService struct {
	Store store.Store
	Log   *slog.Logger
	Now   func() time.Time
}

func NewLevelingService(st store.Store, log *slog.Logger) *LevelingService {
	return &LevelingService{Store: st, Log: log, Now: time.Now}
}

// AwardXP adds xp to the user's totals and settles any level-ups. XP may spill
// across several levels in one award; the loop carries the remainder forward
// until the current bucket is no longer full. The whole read-settle-write
// runs as one atomic store mutation, so concurrent awards both land.
func (s *LevelingService) AwardXP(ctx context.Context, userID string, xp int64, reason string) (*models.UserStats, error) {
	if xp < 0 {
		return nil, fmt.Errorf("xp must not be negative, got %d", xp)
	}

	stats, err := s.Store.UpdateStats(ctx, userID, func(stats *models.UserStats) error {
		stats.TotalXP += xp
		stats.CurrentLevelXP += xp

		leveled := false
		for stats.CurrentLevelXP >= stats.NextLevelXP {
			stats.CurrentLevelXP -= stats.NextLevelXP
			stats.Level++
			stats.NextLevelXP = xpForNextLevel(stats.Level)
			leveled = true
		}
		if leveled {
			now := s.Now()
			stats.LastLevelUpAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("award xp to %s: %w", userID, err)
	}

	s.Log.Info("xp awarded",
		"user_id", userID,
		"xp", xp,
		"reason", reason,
		"total_xp", stats.TotalXP,
		"level", stats.Level,
	)
	return stats, nil
}

// LevelProgress is the read-model for the level endpoint.
type LevelProgress struct {
	Level          int     `json:"level"`
	TotalXP        int64   `json:"total_xp"`
	CurrentLevelXP int64   `json:"current_level_xp"`
	NextLevelXP    int64   `json:"next_level_xp"`
	Percent        float64 `json:"percent"`
}

// GetProgressToNextLevel returns the user's position on the level curve, or
// nil when the user has no stats row yet.
func (s *LevelingService) GetProgressToNextLevel(ctx context.Context, userID string) (*LevelProgress, error) {
	stats, err := s.Store.GetStats(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stats for %s: %w", userID, err)
	}

	pct := 0.0
	if stats.NextLevelXP > 0 {
		pct = math.Min(100, float64(stats.CurrentLevelXP)/float64(stats.NextLevelXP)*100)
	}
	return &LevelProgress{
		Level:          stats.Level,
		TotalXP:        stats.TotalXP,
		CurrentLevelXP: stats.CurrentLevelXP,
		NextLevelXP:    stats.NextLevelXP,
		Percent:        pct,
	}, nil
}

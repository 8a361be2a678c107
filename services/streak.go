package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tax-engagement-service/models"
	"tax-engagement-service/store"
)

// StreakService maintains the consecutive-day login counter. Day boundaries
// are local midnight; two logins in the same calendar day are one streak day.
type StreakService struct {
	Store store.Store
	Log   *slog.Logger
	Now   func() time.Time
}

func NewStreakService(st store.Store, log *slog.Logger) *StreakService {
	return &StreakService{Store: st, Log: log, Now: time.Now}
}

// dateOnly truncates t to its calendar day in t's location.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// UpdateStreak records a login for streak purposes and returns the user's
// stats. Same-day repeat logins leave the row untouched; a login exactly one
// day after the last extends the streak; anything older resets it to 1.
func (s *StreakService) UpdateStreak(ctx context.Context, userID string) (*models.UserStats, error) {
	today := dateOnly(s.Now())

	stats, err := s.Store.UpdateStats(ctx, userID, func(stats *models.UserStats) error {
		if stats.LastLoginDate != nil {
			last := dateOnly(*stats.LastLoginDate)
			switch {
			case last.Equal(today):
				return store.ErrNoChange
			case last.AddDate(0, 0, 1).Equal(today):
				stats.LoginStreak++
			default:
				stats.LoginStreak = 1
			}
		} else {
			stats.LoginStreak = 1
		}

		if stats.LoginStreak > stats.LongestLoginStreak {
			stats.LongestLoginStreak = stats.LoginStreak
		}
		stats.LastLoginDate = &today
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update streak for %s: %w", userID, err)
	}

	s.Log.Debug("login streak updated",
		"user_id", userID,
		"streak", stats.LoginStreak,
		"longest", stats.LongestLoginStreak,
	)
	return stats, nil
}

// BreakStaleStreaks zeroes the streak of every user whose last login day is
// before yesterday. Run nightly so streak displays do not show counts the
// user has already lost.
func (s *StreakService) BreakStaleStreaks(ctx context.Context) error {
	userIDs, err := s.Store.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	today := dateOnly(s.Now())
	for _, userID := range userIDs {
		stats, err := s.Store.GetStats(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			s.Log.Error("load stats", "user_id", userID, "error", err)
			continue
		}
		if stats.LoginStreak == 0 || stats.LastLoginDate == nil {
			continue
		}
		last := dateOnly(*stats.LastLoginDate)
		if !last.Before(today.AddDate(0, 0, -1)) {
			continue
		}
		if _, err := s.Store.UpdateStats(ctx, userID, func(row *models.UserStats) error {
			// Re-check under the row lock; the user may have logged in
			// between the scan read and this write.
			if row.LoginStreak == 0 || row.LastLoginDate == nil ||
				!dateOnly(*row.LastLoginDate).Before(today.AddDate(0, 0, -1)) {
				return store.ErrNoChange
			}
			row.LoginStreak = 0
			return nil
		}); err != nil {
			s.Log.Error("reset streak", "user_id", userID, "error", err)
		}
	}
	return nil
}

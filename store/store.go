// Package store defines the persistence boundary of the engagement engine.
// The engine depends only on the Store interface; Postgres (via GORM) backs
// it in production and an in-memory implementation backs the tests.
package store

import (
	"context"
	"errors"
	"time"

	"tax-engagement-service/models"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a keyed record does not exist. Callers treat
// it as a soft condition (lazy creation, empty results), never as a failure.
var ErrNotFound = errors.New("store: record not found")

// ErrNoChange may be returned by an UpdateStats mutation to abort the write;
// UpdateStats then returns the current row with a nil error. The mutation
// must not have modified the row before returning it.
var ErrNoChange = errors.New("store: no change")

// Store is the capability set the engine needs: keyed reads, lazy creates,
// updates, the atomic unlock flip, and the aggregate queries the
// standing-query evaluators run.
type Store interface {
	// Users (snapshots synced from the profile service; read-only here).
	GetUser(ctx context.Context, externalUserID string) (*models.TaxUser, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	// Achievement catalog.
	ListActiveDefinitions(ctx context.Context) ([]models.AchievementDefinition, error)
	GetDefinition(ctx context.Context, id string) (*models.AchievementDefinition, error)
	SaveDefinition(ctx context.Context, def *models.AchievementDefinition) error // upsert by slug

	// Per-user achievement progress.
	GetProgress(ctx context.Context, userID, achievementID string) (*models.UserAchievementProgress, error)
	CreateProgress(ctx context.Context, p *models.UserAchievementProgress) error
	SaveProgress(ctx context.Context, p *models.UserAchievementProgress) error
	ListProgress(ctx context.Context, userID string) ([]models.UserAchievementProgress, error)

	// MarkUnlocked flips is_unlocked in a single conditional update
	// (… WHERE is_unlocked = false). It reports whether this call performed
	// the flip; a false return means another evaluation won the race and the
	// caller must not award XP.
	MarkUnlocked(ctx context.Context, userID, achievementID string, at time.Time, progress int) (bool, error)

	// User stats (XP, level, streak, accumulators).
	GetStats(ctx context.Context, userID string) (*models.UserStats, error)

	// UpdateStats applies mutate to the user's stats row as one atomic unit:
	// the read, the mutation and the write cannot interleave with another
	// writer, so concurrent XP awards and counter bumps never lose updates.
	// A missing row is seeded (level 1) before mutate runs. Returning
	// ErrNoChange from mutate skips the write.
	UpdateStats(ctx context.Context, userID string, mutate func(*models.UserStats) error) (*models.UserStats, error)

	// Business facts recorded by triggers.
	CreateFiling(ctx context.Context, f *models.TaxReturn) error
	CreateCommission(ctx context.Context, c *models.Commission) error
	CreateReferral(ctx context.Context, r *models.Referral) error
	MarkReferralConverted(ctx context.Context, referredID string, at time.Time) error

	// Aggregates for standing-query criteria.
	CountClients(ctx context.Context, userID string) (int64, error)
	CountActiveClients(ctx context.Context, userID string, since time.Time) (int64, error)
	CountFilings(ctx context.Context, userID string) (int64, error)
	CountFilingsSince(ctx context.Context, userID string, since time.Time) (int64, error)
	// FilingDays returns the user's distinct filing days, newest first,
	// capped at limit.
	FilingDays(ctx context.Context, userID string, limit int) ([]time.Time, error)
	CountReferrals(ctx context.Context, referrerID string) (int64, error)
	CountConvertedReferrals(ctx context.Context, referrerID string) (int64, error)
	SumCommissions(ctx context.Context, userID string) (decimal.Decimal, error)
}

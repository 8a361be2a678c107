package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tax-engagement-service/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm is the Postgres-backed Store.
type Gorm struct {
	DB *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{DB: db}
}

var _ Store = (*Gorm)(nil)

func (g *Gorm) GetUser(ctx context.Context, externalUserID string) (*models.TaxUser, error) {
	var u models.TaxUser
	err := g.DB.WithContext(ctx).Where("external_user_id = ?", externalUserID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (g *Gorm) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := g.DB.WithContext(ctx).Model(&models.TaxUser{}).
		Pluck("external_user_id", &ids).Error
	return ids, err
}

func (g *Gorm) ListActiveDefinitions(ctx context.Context) ([]models.AchievementDefinition, error) {
	var defs []models.AchievementDefinition
	err := g.DB.WithContext(ctx).Where("is_active = ?", true).Find(&defs).Error
	return defs, err
}

func (g *Gorm) GetDefinition(ctx context.Context, id string) (*models.AchievementDefinition, error) {
	var def models.AchievementDefinition
	err := g.DB.WithContext(ctx).Where("id = ?", id).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

func (g *Gorm) SaveDefinition(ctx context.Context, def *models.AchievementDefinition) error {
	return g.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "icon_url", "points", "target_roles", "criteria", "is_active", "updated_at",
		}),
	}).Create(def).Error
}

func (g *Gorm) GetProgress(ctx context.Context, userID, achievementID string) (*models.UserAchievementProgress, error) {
	var p models.UserAchievementProgress
	err := g.DB.WithContext(ctx).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *Gorm) CreateProgress(ctx context.Context, p *models.UserAchievementProgress) error {
	// Two concurrent evaluations may both miss the row; the unique index on
	// (user_id, achievement_id) makes the second insert a no-op.
	return g.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(p).Error
}

func (g *Gorm) SaveProgress(ctx context.Context, p *models.UserAchievementProgress) error {
	return g.DB.WithContext(ctx).Save(p).Error
}

func (g *Gorm) ListProgress(ctx context.Context, userID string) ([]models.UserAchievementProgress, error) {
	var rows []models.UserAchievementProgress
	err := g.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error
	return rows, err
}

func (g *Gorm) MarkUnlocked(ctx context.Context, userID, achievementID string, at time.Time, progress int) (bool, error) {
	res := g.DB.WithContext(ctx).Model(&models.UserAchievementProgress{}).
		Where("user_id = ? AND achievement_id = ? AND is_unlocked = ?", userID, achievementID, false).
		Updates(map[string]any{
			"is_unlocked": true,
			"unlocked_at": at,
			"progress":    progress,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) GetStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var s models.UserStats
	err := g.DB.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateStats runs mutate inside a transaction with the stats row locked
// (SELECT ... FOR UPDATE), so concurrent writers serialize instead of
// clobbering each other's increments.
func (g *Gorm) UpdateStats(ctx context.Context, userID string, mutate func(*models.UserStats) error) (*models.UserStats, error) {
	var out models.UserStats
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.UserStats
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A concurrent first writer may land the row between the read
			// and this insert; the unique index turns ours into a no-op and
			// the locked re-read picks up theirs.
			seed := models.NewUserStats(userID)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoNothing: true,
			}).Create(seed).Error; err != nil {
				return err
			}
			err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ?", userID).
				First(&s).Error
		}
		if err != nil {
			return err
		}
		if err := mutate(&s); err != nil {
			if errors.Is(err, ErrNoChange) {
				out = s
				return nil
			}
			return err
		}
		if err := tx.Save(&s).Error; err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *Gorm) CreateFiling(ctx context.Context, f *models.TaxReturn) error {
	return g.DB.WithContext(ctx).Create(f).Error
}

func (g *Gorm) CreateCommission(ctx context.Context, c *models.Commission) error {
	return g.DB.WithContext(ctx).Create(c).Error
}

func (g *Gorm) CreateReferral(ctx context.Context, r *models.Referral) error {
	return g.DB.WithContext(ctx).Create(r).Error
}

func (g *Gorm) MarkReferralConverted(ctx context.Context, referredID string, at time.Time) error {
	res := g.DB.WithContext(ctx).Model(&models.Referral{}).
		Where("referred_id = ? AND converted = ?", referredID, false).
		Updates(map[string]any{"converted": true, "converted_at": at})
	// Zero rows affected means already converted or unknown referral; both
	// are soft conditions.
	return res.Error
}

func (g *Gorm) CountClients(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.TaxReturn{}).
		Where("user_id = ?", userID).
		Distinct("client_id").
		Count(&n).Error
	return n, err
}

func (g *Gorm) CountActiveClients(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.TaxReturn{}).
		Where("user_id = ? AND filed_at >= ?", userID, since).
		Distinct("client_id").
		Count(&n).Error
	return n, err
}

func (g *Gorm) CountFilings(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.TaxReturn{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (g *Gorm) CountFilingsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.TaxReturn{}).
		Where("user_id = ? AND filed_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

func (g *Gorm) FilingDays(ctx context.Context, userID string, limit int) ([]time.Time, error) {
	var days []time.Time
	err := g.DB.WithContext(ctx).Raw(`
		SELECT DISTINCT date_trunc('day', filed_at) AS day
		FROM tax_returns
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY day DESC
		LIMIT ?
	`, userID, limit).Scan(&days).Error
	return days, err
}

func (g *Gorm) CountReferrals(ctx context.Context, referrerID string) (int64, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_id = ?", referrerID).
		Count(&n).Error
	return n, err
}

func (g *Gorm) CountConvertedReferrals(ctx context.Context, referrerID string) (int64, error) {
	var n int64
	err := g.DB.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_id = ? AND converted = ?", referrerID, true).
		Count(&n).Error
	return n, err
}

func (g *Gorm) SumCommissions(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := g.DB.WithContext(ctx).Model(&models.Commission{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum commissions for %s: %w", userID, err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

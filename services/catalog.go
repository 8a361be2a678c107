package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tax-engagement-service/models"
	"tax-engagement-service/store"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CatalogService owns the achievement catalog: seeding the defaults and
// validating definitions before they are stored.
type CatalogService struct {
	Store store.Store
	Log   *slog.Logger
}

func NewCatalogService(st store.Store, log *slog.Logger) *CatalogService {
	return &CatalogService{Store: st, Log: log}
}

var titleCaser = cases.Title(language.English)

// seedDef builds a definition from a human title; the slug is derived so
// seed titles and external keys can never drift apart.
func seedDef(title, description string, points int64, roles models.RoleTags, criteria models.Criteria) models.AchievementDefinition {
	return models.AchievementDefinition{
		Slug:        slug.Make(title),
		Title:       titleCaser.String(title),
		Description: description,
		Points:      points,
		TargetRoles: roles,
		Criteria:    models.CriteriaSpec{Criteria: criteria},
		IsActive:    true,
	}
}

// defaultCatalog is the stock achievement set. Seeding upserts by slug, so
// redeploys refresh titles and points without duplicating rows or touching
// anyone's unlock state.
func defaultCatalog() []models.AchievementDefinition {
	preparers := models.RoleTags{models.RolePreparer}
	affiliates := models.RoleTags{models.RoleAffiliate}
	everyone := models.RoleTags{models.RolePreparer, models.RoleAffiliate, models.RoleClient}

	return []models.AchievementDefinition{
		seedDef("first client", "File a return for your first client.", 50, preparers,
			models.ClientCountCriteria{Threshold: 1}),
		seedDef("fifty clients strong", "Serve fifty distinct clients.", 500, preparers,
			models.ClientCountCriteria{Threshold: 50}),
		seedDef("busy season regular", "Keep twenty clients active over ninety days.", 300, preparers,
			models.ActiveClientsCriteria{Threshold: 20, Days: 90}),
		seedDef("paper trail", "Process one hundred client documents.", 150, preparers,
			models.DocumentsProcessedCriteria{Threshold: 100}),
		seedDef("speed filer", "Complete a return in under two hours.", 200, preparers,
			models.FilingSpeedCriteria{MaxHours: 2}),
		seedDef("ahead of the deadline", "File a return thirty days before the deadline.", 150, preparers,
			models.EarlyFilingCriteria{DaysBefore: 30}),
		seedDef("peak season warrior", "File during the March-April peak.", 100, preparers,
			models.SeasonalFilingCriteria{Season: "peak"}),
		seedDef("five a day", "File five returns in a single day.", 250, preparers,
			models.ReturnsPerDayCriteria{Count: 5}),
		seedDef("filing streak", "File returns on seven consecutive days.", 300, preparers,
			models.FilingStreakCriteria{Days: 7}),
		seedDef("client favorite", "Hold a 4.5 client satisfaction rating.", 400, preparers,
			models.SatisfactionRatingCriteria{Rating: 4.5}),

		seedDef("first referral", "Refer your first signup.", 50, affiliates,
			models.ReferralCountCriteria{Threshold: 1}),
		seedDef("network builder", "Refer twenty-five signups.", 400, affiliates,
			models.ReferralCountCriteria{Threshold: 25}),
		seedDef("closer", "Convert half of your first ten referrals.", 500, affiliates,
			models.ConversionRateCriteria{Rate: 50, MinReferrals: 10}),
		seedDef("first thousand", "Earn your first $1,000 in commissions.", 300, affiliates,
			models.EarningsCriteria{Threshold: decimal.NewFromInt(1000)}),
		seedDef("link spinner", "Create ten tracking links.", 100, affiliates,
			models.LinksCreatedCriteria{Threshold: 10}),
		seedDef("word of mouth", "Share five marketing materials.", 100, affiliates,
			models.MaterialsSharedCriteria{Threshold: 5}),

		seedDef("week one streak", "Log in seven days in a row.", 100, everyone,
			models.LoginStreakCriteria{Days: 7}),
		seedDef("month of mornings", "Log in thirty days in a row.", 500, everyone,
			models.LoginStreakCriteria{Days: 30}),
		seedDef("early bird", "Log in before 6 AM.", 50, everyone,
			models.EarlyLoginCriteria{Hour: 5}),
		seedDef("night owl", "Log in after 11 PM.", 50, everyone,
			models.LateLoginCriteria{Hour: 23}),
		seedDef("all filled in", "Complete every profile field.", 75, everyone,
			models.ProfileCompleteCriteria{Fields: []string{
				"first_name", "last_name", "phone", "bio", "picture_url",
			}}),
		seedDef("conversationalist", "Send one hundred messages.", 100, everyone,
			models.MessagesSentCriteria{Threshold: 100}),
		seedDef("founding member", "Joined during the launch year.", 200, everyone,
			models.SignupDateCriteria{Before: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)}),
	}
}

// SeedDefaults upserts the stock catalog. Every definition is validated
// first; a single bad seed aborts the whole seeding so a typo cannot ship a
// half-catalog.
func (c *CatalogService) SeedDefaults(ctx context.Context) error {
	for _, def := range defaultCatalog() {
		def := def
		if err := def.Validate(); err != nil {
			return fmt.Errorf("seed %q: %w", def.Slug, err)
		}
		if err := c.Store.SaveDefinition(ctx, &def); err != nil {
			return fmt.Errorf("seed %q: %w", def.Slug, err)
		}
	}
	c.Log.Info("achievement catalog seeded", "definitions", len(defaultCatalog()))
	return nil
}

// SaveDefinition validates and upserts an admin-authored definition.
func (c *CatalogService) SaveDefinition(ctx context.Context, def *models.AchievementDefinition) error {
	if def.Slug == "" && def.Title != "" {
		def.Slug = slug.Make(def.Title)
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("definition %q: %w", def.Slug, err)
	}
	return c.Store.SaveDefinition(ctx, def)
}

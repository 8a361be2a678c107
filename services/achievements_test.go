package services

import (
	"context"
	"fmt"
	"testing"

	"tax-engagement-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEngine) addDefinition(t *testing.T, def models.AchievementDefinition) models.AchievementDefinition {
	t.Helper()
	def.IsActive = true
	require.NoError(t, e.Store.SaveDefinition(context.Background(), &def))
	return def
}

func TestCheckAndUnlockAwardsXPExactlyOnce(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.addUser("prep", models.RolePreparer)
	e.addDefinition(t, models.AchievementDefinition{
		Slug:        "first-client",
		Title:       "First Client",
		Points:      50,
		TargetRoles: models.RoleTags{models.RolePreparer},
		Criteria:    spec(models.ClientCountCriteria{Threshold: 1}),
	})
	e.fileReturn(t, "prep", "c1", e.now)

	unlocked, err := e.Achievements.CheckAndUnlock(ctx, "prep", nil)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first-client", unlocked[0].Achievement.Slug)
	assert.True(t, unlocked[0].Achieved)
	assert.Equal(t, int64(50), unlocked[0].XPAwarded)

	stats, err := e.Store.GetStats(ctx, "prep")
	require.NoError(t, err)
	assert.Equal(t, int64(50), stats.TotalXP)

	// Re-running the pass must not unlock or award again.
	unlocked, err = e.Achievements.CheckAndUnlock(ctx, "prep", nil)
	require.NoError(t, err)
	assert.Empty(t, unlocked)

	stats, err = e.Store.GetStats(ctx, "prep")
	require.NoError(t, err)
	assert.Equal(t, int64(50), stats.TotalXP, "no double award")
}

func TestCheckAndUnlockPersistsPartialProgress(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.addUser("prep", models.RolePreparer)
	def := e.addDefinition(t, models.AchievementDefinition{
		Slug:        "ten-clients",
		Title:       "Ten Clients",
		Points:      100,
		TargetRoles: models.RoleTags{models.RolePreparer},
		Criteria:    spec(models.ClientCountCriteria{Threshold: 10}),
	})
	for i := 0; i < 4; i++ {
		e.fileReturn(t, "prep", fmt.Sprintf("c%d", i), e.now)
	}

	results, err := e.Achievements.CheckAndUnlock(ctx, "prep", nil)
	require.NoError(t, err)
	require.Len(t, results, 1, "a locked goal still reports its progress")
	assert.Equal(t, "ten-clients", results[0].Achievement.Slug)
	assert.False(t, results[0].Achieved)
	assert.Equal(t, 40, results[0].Progress)
	assert.Zero(t, results[0].XPAwarded)

	progress, err := e.Store.GetProgress(ctx, "prep", def.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, progress.Progress)
	assert.False(t, progress.IsUnlocked)
}

func TestCheckAndUnlockRespectsRoleScope(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.addUser("client-user", models.RoleClient)
	def := e.addDefinition(t, models.AchievementDefinition{
		Slug:        "first-referral",
		Title:       "First Referral",
		Points:      50,
		TargetRoles: models.RoleTags{models.RoleAffiliate},
		Criteria:    spec(models.ReferralCountCriteria{Threshold: 1}),
	})
	require.NoError(t, e.Store.CreateReferral(ctx, &models.Referral{
		ReferrerID: "client-user", ReferredID: "someone",
	}))

	unlocked, err := e.Achievements.CheckAndUnlock(ctx, "client-user", nil)
	require.NoError(t, err)
	assert.Empty(t, unlocked)

	// No progress row is even created for out-of-scope achievements.
	_, err = e.Store.GetProgress(ctx, "client-user", def.ID)
	assert.Error(t, err)
}

func TestCheckAndUnlockUnknownUserIsNoOp(t *testing.T) {
	e := newTestEngine()

	unlocked, err := e.Achievements.CheckAndUnlock(context.Background(), "ghost", nil)
	require.NoError(t, err)
	assert.Empty(t, unlocked)
}

func TestCheckAndUnlockOneBadDefinitionDoesNotBlockOthers(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.addUser("prep", models.RolePreparer)

	// profile_complete needs the user row; this one evaluates fine. The
	// empty-criteria definition fails evaluation and must be isolated.
	e.addDefinition(t, models.AchievementDefinition{
		Slug:        "broken",
		Title:       "Broken",
		Points:      10,
		TargetRoles: models.RoleTags{models.RolePreparer},
		Criteria:    models.CriteriaSpec{},
	})
	e.addDefinition(t, models.AchievementDefinition{
		Slug:        "first-client",
		Title:       "First Client",
		Points:      50,
		TargetRoles: models.RoleTags{models.RolePreparer},
		Criteria:    spec(models.ClientCountCriteria{Threshold: 1}),
	})
	e.fileReturn(t, "prep", "c1", e.now)

	unlocked, err := e.Achievements.CheckAndUnlock(ctx, "prep", nil)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first-client", unlocked[0].Achievement.Slug)
}

func TestListUserAchievements(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.addUser("prep", models.RolePreparer)
	e.addDefinition(t, models.AchievementDefinition{
		Slug:        "first-client",
		Title:       "First Client",
		Points:      50,
		TargetRoles: models.RoleTags{models.RolePreparer},
		Criteria:    spec(models.ClientCountCriteria{Threshold: 1}),
	})
	e.addDefinition(t, models.AchievementDefinition{
		Slug:        "affiliate-only",
		Title:       "Affiliate Only",
		Points:      50,
		TargetRoles: models.RoleTags{models.RoleAffiliate},
		Criteria:    spec(models.ReferralCountCriteria{Threshold: 1}),
	})
	e.fileReturn(t, "prep", "c1", e.now)

	_, err := e.Achievements.CheckAndUnlock(ctx, "prep", nil)
	require.NoError(t, err)

	list, err := e.Achievements.ListUserAchievements(ctx, "prep")
	require.NoError(t, err)
	require.Len(t, list, 1, "affiliate achievements are filtered out")
	assert.Equal(t, "first-client", list[0].Achievement.Slug)
	assert.True(t, list[0].IsUnlocked)
	assert.Equal(t, 100, list[0].Progress)
	require.NotNil(t, list[0].UnlockedAt)
}

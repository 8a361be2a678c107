package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"tax-engagement-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMarkUnlockedFlipsOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateProgress(ctx, &models.UserAchievementProgress{
		UserID: "u1", AchievementID: "a1",
	}))

	now := time.Now()
	won, err := m.MarkUnlocked(ctx, "u1", "a1", now, 100)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = m.MarkUnlocked(ctx, "u1", "a1", now, 100)
	require.NoError(t, err)
	assert.False(t, won, "second flip loses")

	p, err := m.GetProgress(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.True(t, p.IsUnlocked)
	assert.Equal(t, 100, p.Progress)
	require.NotNil(t, p.UnlockedAt)
}

func TestMemoryMarkUnlockedConcurrentSingleWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateProgress(ctx, &models.UserAchievementProgress{
		UserID: "u1", AchievementID: "a1",
	}))

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := m.MarkUnlocked(ctx, "u1", "a1", time.Now(), 100)
			assert.NoError(t, err)
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMemoryMarkUnlockedMissingRow(t *testing.T) {
	m := NewMemory()

	won, err := m.MarkUnlocked(context.Background(), "u1", "missing", time.Now(), 100)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestMemoryCreateProgressIgnoresDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := &models.UserAchievementProgress{UserID: "u1", AchievementID: "a1", Progress: 40}
	require.NoError(t, m.CreateProgress(ctx, first))
	require.NoError(t, m.CreateProgress(ctx, &models.UserAchievementProgress{
		UserID: "u1", AchievementID: "a1", Progress: 99,
	}))

	p, err := m.GetProgress(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 40, p.Progress, "duplicate insert is a no-op")
}

func TestMemorySaveDefinitionUpsertsBySlug(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	def := &models.AchievementDefinition{Slug: "first-client", Title: "First Client", IsActive: true,
		TargetRoles: models.RoleTags{models.RolePreparer},
		Criteria:    models.CriteriaSpec{Criteria: models.ClientCountCriteria{Threshold: 1}},
	}
	require.NoError(t, m.SaveDefinition(ctx, def))
	originalID := def.ID

	update := *def
	update.ID = ""
	update.Title = "Very First Client"
	require.NoError(t, m.SaveDefinition(ctx, &update))
	assert.Equal(t, originalID, update.ID, "identity survives the upsert")

	defs, err := m.ListActiveDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Very First Client", defs[0].Title)
}

func TestMemoryUpdateStatsSeedsAndPersists(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	stats, err := m.UpdateStats(ctx, "u1", func(s *models.UserStats) error {
		s.TotalXP += 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Level, "missing row is seeded before the mutation")
	assert.Equal(t, int64(100), stats.NextLevelXP)
	assert.Equal(t, int64(10), stats.TotalXP)

	got, err := m.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalXP)
}

func TestMemoryUpdateStatsNoChange(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.UpdateStats(ctx, "u1", func(s *models.UserStats) error {
		s.LoginStreak = 5
		return nil
	})
	require.NoError(t, err)

	stats, err := m.UpdateStats(ctx, "u1", func(s *models.UserStats) error {
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.LoginStreak, "aborted mutation still returns the current row")

	got, err := m.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.LoginStreak)
}

func TestMemoryUpdateStatsConcurrentIncrements(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.UpdateStats(ctx, "u1", func(s *models.UserStats) error {
				s.MessagesSent++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := m.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), stats.MessagesSent)
}

func TestMemoryGetUserNotFound(t *testing.T) {
	m := NewMemory()

	_, err := m.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFilingAggregates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, time.June, 15, 14, 0, 0, 0, time.UTC)

	for _, f := range []struct {
		client string
		at     time.Time
	}{
		{"c1", base},
		{"c1", base.Add(-2 * time.Hour)}, // same client, same day
		{"c2", base.AddDate(0, 0, -1)},
		{"c3", base.AddDate(0, 0, -40)},
	} {
		require.NoError(t, m.CreateFiling(ctx, &models.TaxReturn{
			UserID: "u1", ClientID: f.client, FiledAt: f.at,
		}))
	}

	clients, err := m.CountClients(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), clients)

	active, err := m.CountActiveClients(ctx, "u1", base.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	days, err := m.FilingDays(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.True(t, days[0].After(days[1]), "newest first")
}

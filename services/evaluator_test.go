package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tax-engagement-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spec(c models.Criteria) models.CriteriaSpec {
	return models.CriteriaSpec{Criteria: c}
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func (e *testEngine) fileReturn(t *testing.T, userID, clientID string, at time.Time) {
	t.Helper()
	require.NoError(t, e.Store.CreateFiling(context.Background(), &models.TaxReturn{
		UserID:   userID,
		ClientID: clientID,
		FiledAt:  at,
	}))
}

func TestEvaluateClientCount(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e.fileReturn(t, "u1", fmt.Sprintf("client-%d", i), e.now)
	}
	// Repeat filings for the same client do not inflate the count.
	e.fileReturn(t, "u1", "client-0", e.now)

	res, err := e.Evaluator.Evaluate(ctx, "u1", spec(models.ClientCountCriteria{Threshold: 10}), nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Achieved)
	assert.Equal(t, 30, res.Progress)

	res, err = e.Evaluator.Evaluate(ctx, "u1", spec(models.ClientCountCriteria{Threshold: 3}), nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)
	assert.Equal(t, 100, res.Progress)
}

func TestEvaluateActiveClientsWindow(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	e.fileReturn(t, "u1", "old-client", e.now.AddDate(0, 0, -120))
	e.fileReturn(t, "u1", "recent-client", e.now.AddDate(0, 0, -10))

	res, err := e.Evaluator.Evaluate(ctx, "u1",
		spec(models.ActiveClientsCriteria{Threshold: 1, Days: 90}), nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	res, err = e.Evaluator.Evaluate(ctx, "u1",
		spec(models.ActiveClientsCriteria{Threshold: 2, Days: 90}), nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, 50, res.Progress)
}

func TestEvaluateConversionRateNeedsMinimumSample(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	crit := spec(models.ConversionRateCriteria{Rate: 50, MinReferrals: 10})

	// 5 referrals, all converted: still below the sample floor.
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Store.CreateReferral(ctx, &models.Referral{
			ReferrerID: "aff", ReferredID: fmt.Sprintf("r%d", i),
		}))
		require.NoError(t, e.Store.MarkReferralConverted(ctx, fmt.Sprintf("r%d", i), e.now))
	}
	res, err := e.Evaluator.Evaluate(ctx, "aff", crit, nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, 0, res.Progress)

	// Grow to 10 referrals with 6 conversions: 60% >= 50%.
	for i := 5; i < 10; i++ {
		require.NoError(t, e.Store.CreateReferral(ctx, &models.Referral{
			ReferrerID: "aff", ReferredID: fmt.Sprintf("r%d", i),
		}))
	}
	require.NoError(t, e.Store.MarkReferralConverted(ctx, "r5", e.now))
	res, err = e.Evaluator.Evaluate(ctx, "aff", crit, nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)
	assert.Equal(t, 100, res.Progress)
}

func TestEvaluateEarnings(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	require.NoError(t, e.Store.CreateCommission(ctx, &models.Commission{
		UserID: "aff", Amount: decimal.NewFromFloat(250.50), EarnedAt: e.now,
	}))
	require.NoError(t, e.Store.CreateCommission(ctx, &models.Commission{
		UserID: "aff", Amount: decimal.NewFromFloat(249.50), EarnedAt: e.now,
	}))

	res, err := e.Evaluator.Evaluate(ctx, "aff",
		spec(models.EarningsCriteria{Threshold: decimal.NewFromInt(1000)}), nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, 50, res.Progress)

	res, err = e.Evaluator.Evaluate(ctx, "aff",
		spec(models.EarningsCriteria{Threshold: decimal.NewFromInt(500)}), nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)
}

func TestEvaluateProfileComplete(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	first := "Ada"
	e.Store.PutUser(models.TaxUser{
		ExternalUserID: "u1",
		Username:       "ada",
		Role:           models.RolePreparer,
		FirstName:      &first,
	})

	res, err := e.Evaluator.Evaluate(ctx, "u1",
		spec(models.ProfileCompleteCriteria{Fields: []string{"first_name", "last_name", "phone", "bio"}}), nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, 25, res.Progress)
}

func TestEvaluateSignupDate(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	e.Store.PutUser(models.TaxUser{
		ExternalUserID: "u1",
		Username:       "u1",
		SignupAt:       time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	})

	res, err := e.Evaluator.Evaluate(ctx, "u1",
		spec(models.SignupDateCriteria{Before: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)}), nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	res, err = e.Evaluator.Evaluate(ctx, "u1",
		spec(models.SignupDateCriteria{Before: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}), nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, 0, res.Progress)
}

func TestEvaluateReturnsPerDayCountsTodayOnly(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	e.fileReturn(t, "u1", "c1", e.now.AddDate(0, 0, -1)) // yesterday
	e.fileReturn(t, "u1", "c2", e.now)
	e.fileReturn(t, "u1", "c3", e.now)

	res, err := e.Evaluator.Evaluate(ctx, "u1", spec(models.ReturnsPerDayCriteria{Count: 2}), nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	res, err = e.Evaluator.Evaluate(ctx, "u1", spec(models.ReturnsPerDayCriteria{Count: 3}), nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
}

func TestEvaluateFilingStreak(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// Three consecutive days ending today, then a gap, then an older day.
	for d := 0; d < 3; d++ {
		e.fileReturn(t, "u1", "c", e.now.AddDate(0, 0, -d))
	}
	e.fileReturn(t, "u1", "c", e.now.AddDate(0, 0, -7))

	res, err := e.Evaluator.Evaluate(ctx, "u1", spec(models.FilingStreakCriteria{Days: 3}), nil)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	res, err = e.Evaluator.Evaluate(ctx, "u1", spec(models.FilingStreakCriteria{Days: 5}), nil)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
	assert.Equal(t, 60, res.Progress)
}

func TestEvaluateEventGatedNotApplicableWithoutEvent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	gated := []models.Criteria{
		models.FilingSpeedCriteria{MaxHours: 2},
		models.EarlyFilingCriteria{DaysBefore: 30},
		models.SeasonalFilingCriteria{Season: "peak"},
		models.ContestWinnerCriteria{Position: 3},
		models.EarlyLoginCriteria{Hour: 5},
		models.LateLoginCriteria{Hour: 23},
	}
	for _, c := range gated {
		res, err := e.Evaluator.Evaluate(ctx, "u1", spec(c), &models.Event{Type: models.EventRecalculate})
		require.NoError(t, err)
		assert.Nil(t, res, "criteria %s should be skipped without its event", c.CriteriaType())
	}
}

func TestEvaluateFilingSpeed(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	crit := spec(models.FilingSpeedCriteria{MaxHours: 2})

	fast := &models.Event{Type: models.EventReturnFiled, Filing: &models.FilingEvent{
		FilingTimeMs: int64Ptr(90 * 60 * 1000), // 1.5h
	}}
	res, err := e.Evaluator.Evaluate(ctx, "u1", crit, fast)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	slow := &models.Event{Type: models.EventReturnFiled, Filing: &models.FilingEvent{
		FilingTimeMs: int64Ptr(3 * 60 * 60 * 1000),
	}}
	res, err = e.Evaluator.Evaluate(ctx, "u1", crit, slow)
	require.NoError(t, err)
	assert.False(t, res.Achieved)

	// Filing event without a duration cannot decide either way.
	res, err = e.Evaluator.Evaluate(ctx, "u1", crit,
		&models.Event{Type: models.EventReturnFiled, Filing: &models.FilingEvent{}})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestEvaluateSeasonalFilingWindow(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	crit := spec(models.SeasonalFilingCriteria{Season: "peak"})

	cases := []struct {
		filedAt  time.Time
		achieved bool
	}{
		{time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2026, time.April, 15, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC), false},
		{time.Date(2026, time.April, 16, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		event := &models.Event{Type: models.EventReturnFiled, Filing: &models.FilingEvent{FiledAt: tc.filedAt}}
		res, err := e.Evaluator.Evaluate(ctx, "u1", crit, event)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, tc.achieved, res.Achieved, "filed at %s", tc.filedAt)
	}
}

func TestEvaluateLoginHourCriteria(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	early := &models.Event{Type: models.EventLogin, Login: &models.LoginEvent{Hour: intPtr(5)}}
	late := &models.Event{Type: models.EventLogin, Login: &models.LoginEvent{Hour: intPtr(23)}}

	res, err := e.Evaluator.Evaluate(ctx, "u1", spec(models.EarlyLoginCriteria{Hour: 5}), early)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	res, err = e.Evaluator.Evaluate(ctx, "u1", spec(models.EarlyLoginCriteria{Hour: 5}), late)
	require.NoError(t, err)
	assert.False(t, res.Achieved)

	res, err = e.Evaluator.Evaluate(ctx, "u1", spec(models.LateLoginCriteria{Hour: 23}), late)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	// No explicit hour: falls back to the clock (10:00).
	bare := &models.Event{Type: models.EventLogin}
	res, err = e.Evaluator.Evaluate(ctx, "u1", spec(models.EarlyLoginCriteria{Hour: 5}), bare)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
}

func TestEvaluateContestWinner(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	crit := spec(models.ContestWinnerCriteria{Position: 3})

	podium := &models.Event{Type: models.EventContestEnded, Contest: &models.ContestEvent{Position: 2}}
	res, err := e.Evaluator.Evaluate(ctx, "u1", crit, podium)
	require.NoError(t, err)
	assert.True(t, res.Achieved)

	fourth := &models.Event{Type: models.EventContestEnded, Contest: &models.ContestEvent{Position: 4}}
	res, err = e.Evaluator.Evaluate(ctx, "u1", crit, fourth)
	require.NoError(t, err)
	assert.False(t, res.Achieved)
}

func TestEvaluateStubCriteriaNeverAchieve(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	stubs := []models.Criteria{
		models.MarketingChannelsCriteria{Threshold: 3},
		models.RatingWithReviewsCriteria{Rating: 4.5, Reviews: 10},
		models.ErrorFreeReturnsCriteria{Threshold: 50},
	}
	for _, c := range stubs {
		res, err := e.Evaluator.Evaluate(ctx, "u1", spec(c), nil)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.False(t, res.Achieved)
		assert.Equal(t, 0, res.Progress)
	}
}

func TestEvaluateEmptySpecErrors(t *testing.T) {
	e := newTestEngine()

	_, err := e.Evaluator.Evaluate(context.Background(), "u1", models.CriteriaSpec{}, nil)
	assert.Error(t, err)
}

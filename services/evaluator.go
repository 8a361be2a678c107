package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tax-engagement-service/models"
	"tax-engagement-service/store"

	"github.com/shopspring/decimal"
)

// EvalResult is one criterion's verdict for one user.
type EvalResult struct {
	Achieved bool
	Progress int // 0..100
}

// Evaluator turns a criteria spec plus the user's current state into an
// EvalResult. Standing queries read aggregates from the store; event-gated
// criteria inspect the triggering event and return (nil, nil) when the event
// at hand cannot satisfy them.
type Evaluator struct {
	Store store.Store
	Log   *slog.Logger
	Now   func() time.Time
}

func NewEvaluator(st store.Store, log *slog.Logger) *Evaluator {
	return &Evaluator{Store: st, Log: log, Now: time.Now}
}

// thresholdProgress maps current/threshold onto 0..100, capped.
func thresholdProgress(current, threshold int64) int {
	if threshold <= 0 {
		return 0
	}
	p := current * 100 / threshold
	if p > 100 {
		p = 100
	}
	return int(p)
}

func ratioProgress(current, required float64) int {
	if required <= 0 {
		return 0
	}
	p := int(current / required * 100)
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

func counted(current, threshold int64) *EvalResult {
	// Catalog validation rejects non-positive thresholds; a row that slipped
	// past must not auto-unlock everyone.
	if threshold <= 0 {
		return &EvalResult{Achieved: false, Progress: 0}
	}
	return &EvalResult{
		Achieved: current >= threshold,
		Progress: thresholdProgress(current, threshold),
	}
}

// Evaluate runs one criterion. A nil result with nil error means the
// criterion is not applicable to this evaluation pass (event-gated criterion,
// wrong or missing event) and the caller should leave progress untouched.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, spec models.CriteriaSpec, event *models.Event) (*EvalResult, error) {
	switch c := spec.Criteria.(type) {
	case models.ClientCountCriteria:
		n, err := e.Store.CountClients(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count clients: %w", err)
		}
		return counted(n, c.Threshold), nil

	case models.ActiveClientsCriteria:
		since := e.Now().AddDate(0, 0, -c.Days)
		n, err := e.Store.CountActiveClients(ctx, userID, since)
		if err != nil {
			return nil, fmt.Errorf("count active clients: %w", err)
		}
		return counted(n, c.Threshold), nil

	case models.DocumentsProcessedCriteria:
		stats, err := e.statsOrZero(ctx, userID)
		if err != nil {
			return nil, err
		}
		return counted(stats.DocumentsProcessed, c.Threshold), nil

	case models.SatisfactionRatingCriteria:
		stats, err := e.statsOrZero(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &EvalResult{
			Achieved: stats.ClientSatisfaction >= c.Rating,
			Progress: ratioProgress(stats.ClientSatisfaction, c.Rating),
		}, nil

	case models.EarningsCriteria:
		sum, err := e.Store.SumCommissions(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("sum commissions: %w", err)
		}
		progress := 0
		if c.Threshold.IsPositive() {
			pct := sum.Div(c.Threshold).Mul(decimal.NewFromInt(100))
			progress = int(pct.IntPart())
			if progress > 100 {
				progress = 100
			}
			if progress < 0 {
				progress = 0
			}
		}
		return &EvalResult{
			Achieved: sum.GreaterThanOrEqual(c.Threshold),
			Progress: progress,
		}, nil

	case models.ReferralCountCriteria:
		n, err := e.Store.CountReferrals(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count referrals: %w", err)
		}
		return counted(n, c.Threshold), nil

	case models.ConversionRateCriteria:
		total, err := e.Store.CountReferrals(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count referrals: %w", err)
		}
		// Rate is meaningless on a tiny sample; below the floor the user
		// simply has not started yet.
		if total < c.MinReferrals {
			return &EvalResult{Achieved: false, Progress: 0}, nil
		}
		converted, err := e.Store.CountConvertedReferrals(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count converted referrals: %w", err)
		}
		rate := float64(converted) / float64(total) * 100
		return &EvalResult{
			Achieved: rate >= c.Rate,
			Progress: ratioProgress(rate, c.Rate),
		}, nil

	case models.LinksCreatedCriteria:
		stats, err := e.statsOrZero(ctx, userID)
		if err != nil {
			return nil, err
		}
		return counted(stats.LinksCreated, c.Threshold), nil

	case models.LoginStreakCriteria:
		stats, err := e.statsOrZero(ctx, userID)
		if err != nil {
			return nil, err
		}
		return counted(int64(stats.LoginStreak), int64(c.Days)), nil

	case models.MessagesSentCriteria:
		stats, err := e.statsOrZero(ctx, userID)
		if err != nil {
			return nil, err
		}
		return counted(stats.MessagesSent, c.Threshold), nil

	case models.ProfileCompleteCriteria:
		user, err := e.Store.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
		filled := 0
		for _, field := range c.Fields {
			if v, _ := user.ProfileField(field); v != "" {
				filled++
			}
		}
		return counted(int64(filled), int64(len(c.Fields))), nil

	case models.SignupDateCriteria:
		user, err := e.Store.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
		if user.SignupAt.Before(c.Before) {
			return &EvalResult{Achieved: true, Progress: 100}, nil
		}
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.ReturnsPerDayCriteria:
		today := dateOnly(e.Now())
		n, err := e.Store.CountFilingsSince(ctx, userID, today)
		if err != nil {
			return nil, fmt.Errorf("count today's filings: %w", err)
		}
		return counted(n, c.Count), nil

	case models.FilingStreakCriteria:
		days, err := e.Store.FilingDays(ctx, userID, c.Days)
		if err != nil {
			return nil, fmt.Errorf("list filing days: %w", err)
		}
		streak := consecutiveDays(days)
		return counted(int64(streak), int64(c.Days)), nil

	case models.MaterialsSharedCriteria:
		stats, err := e.statsOrZero(ctx, userID)
		if err != nil {
			return nil, err
		}
		return counted(stats.MaterialsShared, c.Threshold), nil

	case models.MarketingChannelsCriteria:
		// TODO: count distinct channels once the marketing service exposes its
		// channel-activation feed.
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.RatingWithReviewsCriteria:
		// TODO: wire to the review service's aggregate endpoint when it ships.
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.ErrorFreeReturnsCriteria:
		// TODO: needs the filing service to report rejection/amendment counts.
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.FilingSpeedCriteria:
		if event == nil || event.Filing == nil || event.Filing.FilingTimeMs == nil {
			return nil, nil
		}
		hours := float64(*event.Filing.FilingTimeMs) / float64(time.Hour.Milliseconds())
		if hours <= c.MaxHours {
			return &EvalResult{Achieved: true, Progress: 100}, nil
		}
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.EarlyFilingCriteria:
		if event == nil || event.Filing == nil || event.Filing.DaysBeforeDeadline == nil {
			return nil, nil
		}
		if *event.Filing.DaysBeforeDeadline >= c.DaysBefore {
			return &EvalResult{Achieved: true, Progress: 100}, nil
		}
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.SeasonalFilingCriteria:
		if event == nil || event.Filing == nil {
			return nil, nil
		}
		if inPeakSeason(event.Filing.FiledAt) {
			return &EvalResult{Achieved: true, Progress: 100}, nil
		}
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.ContestWinnerCriteria:
		if event == nil || event.Contest == nil {
			return nil, nil
		}
		if event.Contest.Position >= 1 && event.Contest.Position <= c.Position {
			return &EvalResult{Achieved: true, Progress: 100}, nil
		}
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.EarlyLoginCriteria:
		hour, ok := loginHour(event, e.Now)
		if !ok {
			return nil, nil
		}
		if hour <= c.Hour {
			return &EvalResult{Achieved: true, Progress: 100}, nil
		}
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case models.LateLoginCriteria:
		hour, ok := loginHour(event, e.Now)
		if !ok {
			return nil, nil
		}
		if hour >= c.Hour {
			return &EvalResult{Achieved: true, Progress: 100}, nil
		}
		return &EvalResult{Achieved: false, Progress: 0}, nil

	case nil:
		return nil, errors.New("criteria spec is empty")

	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownCriteriaType, spec.Type())
	}
}

// statsOrZero loads the user's stats row, substituting a zero-valued row when
// none exists yet. Accumulator criteria then read naturally as zero.
func (e *Evaluator) statsOrZero(ctx context.Context, userID string) (*models.UserStats, error) {
	stats, err := e.Store.GetStats(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	return stats, nil
}

// loginHour extracts the hour from a login event, falling back to the current
// hour when the caller sent no explicit one. Non-login events yield no hour.
func loginHour(event *models.Event, now func() time.Time) (int, bool) {
	if event == nil || event.Type != models.EventLogin {
		return 0, false
	}
	if event.Login != nil && event.Login.Hour != nil {
		return *event.Login.Hour, true
	}
	return now().Hour(), true
}

// inPeakSeason reports whether t falls in the peak filing window,
// March 1 through April 15 of t's year.
func inPeakSeason(t time.Time) bool {
	start := time.Date(t.Year(), time.March, 1, 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year(), time.April, 16, 0, 0, 0, 0, t.Location())
	return !t.Before(start) && t.Before(end)
}

// consecutiveDays counts how many of the given days (newest first, distinct,
// midnight-truncated) form an unbroken run ending at the most recent one.
func consecutiveDays(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i].AddDate(0, 0, 1).Equal(days[i-1]) {
			streak++
			continue
		}
		break
	}
	return streak
}

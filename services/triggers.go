package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tax-engagement-service/models"
	"tax-engagement-service/store"

	"github.com/shopspring/decimal"
)

// evalTimeout bounds one background evaluation pass.
const evalTimeout = 30 * time.Second

// TriggerService is the façade the rest of the platform talks to: one entry
// point per business event. Each call records the underlying fact first, then
// kicks off achievement evaluation. With Async set (production), evaluation
// runs in a background goroutine and the caller never waits on it; tests
// clear Async to evaluate inline.
//
// Trigger methods return an error only for bad caller input. A failure to
// record the underlying fact is logged and swallowed; the caller's own
// workflow must never fail because gamification did.
type TriggerService struct {
	Store        store.Store
	Achievements *AchievementService
	Streaks      *StreakService
	Log          *slog.Logger
	Async        bool
	Now          func() time.Time
}

func NewTriggerService(st store.Store, ach *AchievementService, streaks *StreakService, log *slog.Logger) *TriggerService {
	return &TriggerService{
		Store:        st,
		Achievements: ach,
		Streaks:      streaks,
		Log:          log,
		Async:        true,
		Now:          time.Now,
	}
}

// dispatch runs one evaluation pass for the event, inline or in the
// background depending on Async. Panics in a background pass are contained;
// a gamification failure must never take the caller down with it.
func (t *TriggerService) dispatch(userID string, event *models.Event) {
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				t.Log.Error("evaluation pass panicked",
					"user_id", userID,
					"event", event.Type,
					"panic", r,
				)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
		defer cancel()
		if _, err := t.Achievements.CheckAndUnlock(ctx, userID, event); err != nil {
			t.Log.Error("evaluation pass failed",
				"user_id", userID,
				"event", event.Type,
				"error", err,
			)
		}
	}
	if t.Async {
		go run()
		return
	}
	run()
}

// OnReturnFiled records the filed return and evaluates. The filing row is the
// source of truth for client counts, per-day counters and filing streaks.
func (t *TriggerService) OnReturnFiled(ctx context.Context, userID string, filing models.FilingEvent) error {
	if filing.FiledAt.IsZero() {
		filing.FiledAt = t.Now()
	}
	row := &models.TaxReturn{
		UserID:             userID,
		ClientID:           filing.ClientID,
		FilingTimeMs:       filing.FilingTimeMs,
		DaysBeforeDeadline: filing.DaysBeforeDeadline,
		FiledAt:            filing.FiledAt,
	}
	if err := t.Store.CreateFiling(ctx, row); err != nil {
		t.Log.Error("record filing failed", "user_id", userID, "error", err)
	}
	t.dispatch(userID, &models.Event{Type: models.EventReturnFiled, Filing: &filing})
	return nil
}

// OnLogin advances the daily streak, then evaluates. The streak must settle
// before evaluation so a login_streak criterion sees today's count.
func (t *TriggerService) OnLogin(ctx context.Context, userID string, login models.LoginEvent) error {
	if _, err := t.Streaks.UpdateStreak(ctx, userID); err != nil {
		t.Log.Error("update streak failed", "user_id", userID, "error", err)
	}
	t.dispatch(userID, &models.Event{Type: models.EventLogin, Login: &login})
	return nil
}

// OnReferralCreated records a new referral for the referrer.
func (t *TriggerService) OnReferralCreated(ctx context.Context, referrerID, referredID, code string) error {
	row := &models.Referral{
		ReferrerID:       referrerID,
		ReferredID:       referredID,
		ReferralCodeUsed: code,
	}
	if err := t.Store.CreateReferral(ctx, row); err != nil {
		t.Log.Error("record referral failed", "referrer_id", referrerID, "error", err)
	}
	t.dispatch(referrerID, &models.Event{Type: models.EventReferralCreated})
	return nil
}

// OnReferralConverted marks the referred user's signup as converted and
// re-evaluates the referrer's conversion goals.
func (t *TriggerService) OnReferralConverted(ctx context.Context, referrerID, referredID string) error {
	if err := t.Store.MarkReferralConverted(ctx, referredID, t.Now()); err != nil {
		t.Log.Error("mark referral converted failed", "referred_id", referredID, "error", err)
	}
	t.dispatch(referrerID, &models.Event{Type: models.EventReferralConverted})
	return nil
}

// OnDocumentUploaded bumps the document counter and evaluates.
func (t *TriggerService) OnDocumentUploaded(ctx context.Context, userID string) error {
	return t.bumpCounter(ctx, userID, models.EventDocumentUploaded, func(s *models.UserStats) {
		s.DocumentsProcessed++
	})
}

// OnMessageSent bumps the message counter and evaluates.
func (t *TriggerService) OnMessageSent(ctx context.Context, userID string) error {
	return t.bumpCounter(ctx, userID, models.EventMessageSent, func(s *models.UserStats) {
		s.MessagesSent++
	})
}

// OnTrackingLinkCreated bumps the link counter and evaluates.
func (t *TriggerService) OnTrackingLinkCreated(ctx context.Context, userID string) error {
	return t.bumpCounter(ctx, userID, models.EventLinkCreated, func(s *models.UserStats) {
		s.LinksCreated++
	})
}

// OnMaterialShared bumps the shared-materials counter and evaluates.
func (t *TriggerService) OnMaterialShared(ctx context.Context, userID string) error {
	return t.bumpCounter(ctx, userID, models.EventMaterialShared, func(s *models.UserStats) {
		s.MaterialsShared++
	})
}

// OnContestEnded evaluates contest placements for one participant.
func (t *TriggerService) OnContestEnded(ctx context.Context, userID string, contest models.ContestEvent) error {
	t.dispatch(userID, &models.Event{Type: models.EventContestEnded, Contest: &contest})
	return nil
}

// OnProfileUpdated re-evaluates profile-completeness goals.
func (t *TriggerService) OnProfileUpdated(ctx context.Context, userID string) error {
	t.dispatch(userID, &models.Event{Type: models.EventProfileUpdated})
	return nil
}

// OnCommissionEarned records the commission amount and evaluates earnings
// goals.
func (t *TriggerService) OnCommissionEarned(ctx context.Context, userID string, commission models.CommissionEvent) error {
	if commission.Amount.IsNegative() {
		return fmt.Errorf("commission amount must not be negative, got %s", commission.Amount)
	}
	if commission.Amount.Equal(decimal.Zero) {
		t.Log.Debug("ignoring zero commission", "user_id", userID)
		return nil
	}
	row := &models.Commission{
		UserID:   userID,
		Amount:   commission.Amount,
		Source:   commission.Source,
		EarnedAt: t.Now(),
	}
	if err := t.Store.CreateCommission(ctx, row); err != nil {
		t.Log.Error("record commission failed", "user_id", userID, "error", err)
	}
	t.dispatch(userID, &models.Event{Type: models.EventCommissionEarned, Commission: &commission})
	return nil
}

// OnSatisfactionRated stores the user's latest client satisfaction score and
// re-evaluates rating goals against it.
func (t *TriggerService) OnSatisfactionRated(ctx context.Context, userID string, rating float64) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("rating must be in 0..5, got %v", rating)
	}
	if _, err := t.Store.UpdateStats(ctx, userID, func(s *models.UserStats) error {
		s.ClientSatisfaction = rating
		return nil
	}); err != nil {
		t.Log.Error("satisfaction update failed", "user_id", userID, "error", err)
	}
	t.dispatch(userID, &models.Event{Type: models.EventSatisfactionRated})
	return nil
}

// Recalculate re-runs every standing query for one user, with no event in
// hand. Event-gated criteria are skipped by construction.
func (t *TriggerService) Recalculate(ctx context.Context, userID string) error {
	_, err := t.Achievements.CheckAndUnlock(ctx, userID, &models.Event{Type: models.EventRecalculate})
	return err
}

// RecalculateAll sweeps every known user. Used by the nightly job and the
// admin endpoint; per-user failures are logged and do not stop the sweep.
func (t *TriggerService) RecalculateAll(ctx context.Context) error {
	userIDs, err := t.Store.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, userID := range userIDs {
		if err := t.Recalculate(ctx, userID); err != nil {
			t.Log.Error("recalculate failed", "user_id", userID, "error", err)
		}
	}
	t.Log.Info("recalculation sweep finished", "users", len(userIDs))
	return nil
}

// bumpCounter is the shared path for the plain accumulator triggers. The bump
// runs as one atomic store mutation so concurrent triggers never lose counts.
func (t *TriggerService) bumpCounter(ctx context.Context, userID string, eventType models.EventType, bump func(*models.UserStats)) error {
	if _, err := t.Store.UpdateStats(ctx, userID, func(stats *models.UserStats) error {
		bump(stats)
		return nil
	}); err != nil {
		t.Log.Error("counter bump failed", "user_id", userID, "event", eventType, "error", err)
	}
	t.dispatch(userID, &models.Event{Type: eventType})
	return nil
}

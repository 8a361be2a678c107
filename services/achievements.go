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

// AchievementResult describes one achievement an evaluation pass examined:
// either a fresh unlock (Achieved true, XP awarded) or the current partial
// progress toward a still-locked goal.
type AchievementResult struct {
	Achievement models.AchievementDefinition `json:"achievement"`
	Achieved    bool                         `json:"achieved"`
	Progress    int                          `json:"progress"`
	XPAwarded   int64                        `json:"xp_awarded,omitempty"`
}

// AchievementService orchestrates an evaluation pass: load the catalog for
// the user's role, evaluate each criterion, persist progress, and award XP on
// the unlocks this pass actually performed.
type AchievementService struct {
	Store     store.Store
	Evaluator *Evaluator
	Leveling  *LevelingService
	Log       *slog.Logger
	Now       func() time.Time
}

func NewAchievementService(st store.Store, ev *Evaluator, lv *LevelingService, log *slog.Logger) *AchievementService {
	return &AchievementService{Store: st, Evaluator: ev, Leveling: lv, Log: log, Now: time.Now}
}

// CheckAndUnlock runs every active, role-applicable achievement for the user
// against the given event and returns one result per evaluated definition:
// unlocks performed by this pass plus the partial progress of everything still
// locked. Already-unlocked and not-applicable definitions produce no entry.
// A user unknown to the snapshot table yields no results and no error; the
// sync worker will catch them up. One broken definition never blocks the rest
// of the pass.
func (s *AchievementService) CheckAndUnlock(ctx context.Context, userID string, event *models.Event) ([]AchievementResult, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		s.Log.Debug("skipping evaluation for unknown user", "user_id", userID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	defs, err := s.Store.ListActiveDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	var results []AchievementResult
	for _, def := range defs {
		if !def.AppliesTo(user.Role) {
			continue
		}
		res, err := s.checkOne(ctx, userID, def, event)
		if err != nil {
			s.Log.Error("achievement evaluation failed",
				"user_id", userID,
				"achievement", def.Slug,
				"error", err,
			)
			continue
		}
		if res != nil {
			results = append(results, *res)
		}
	}
	return results, nil
}

// checkOne evaluates a single definition. It returns the unlock when this
// call performed it, the partial progress when the goal stays locked, and nil
// when there is nothing to report (already unlocked, not applicable, or a
// concurrent pass won the unlock).
func (s *AchievementService) checkOne(ctx context.Context, userID string, def models.AchievementDefinition, event *models.Event) (*AchievementResult, error) {
	progress, err := s.Store.GetProgress(ctx, userID, def.ID)
	if errors.Is(err, store.ErrNotFound) {
		progress = &models.UserAchievementProgress{
			UserID:        userID,
			AchievementID: def.ID,
		}
		if err := s.Store.CreateProgress(ctx, progress); err != nil {
			return nil, fmt.Errorf("create progress: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	// Unlocks are permanent; nothing to re-evaluate.
	if progress.IsUnlocked {
		return nil, nil
	}

	res, err := s.Evaluator.Evaluate(ctx, userID, def.Criteria, event)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if res == nil {
		// Not applicable to this event; leave progress as it was.
		return nil, nil
	}

	if !res.Achieved {
		if res.Progress != progress.Progress {
			progress.Progress = res.Progress
			if err := s.Store.SaveProgress(ctx, progress); err != nil {
				return nil, fmt.Errorf("save progress: %w", err)
			}
		}
		return &AchievementResult{Achievement: def, Progress: res.Progress}, nil
	}

	// The conditional update is the only writer allowed to flip is_unlocked,
	// so concurrent passes race harmlessly: exactly one sees won=true and
	// awards the XP.
	won, err := s.Store.MarkUnlocked(ctx, userID, def.ID, s.Now(), 100)
	if err != nil {
		return nil, fmt.Errorf("mark unlocked: %w", err)
	}
	if !won {
		return nil, nil
	}

	if _, err := s.Leveling.AwardXP(ctx, userID, def.Points, "achievement:"+def.Slug); err != nil {
		// The unlock stands; the XP award failing is its own incident.
		s.Log.Error("xp award after unlock failed",
			"user_id", userID,
			"achievement", def.Slug,
			"error", err,
		)
	}

	s.Log.Info("achievement unlocked",
		"user_id", userID,
		"achievement", def.Slug,
		"points", def.Points,
	)
	return &AchievementResult{Achievement: def, Achieved: true, Progress: 100, XPAwarded: def.Points}, nil
}

// UserAchievement pairs a definition with the user's progress toward it, for
// the read endpoints.
type UserAchievement struct {
	Achievement models.AchievementDefinition `json:"achievement"`
	Progress    int                          `json:"progress"`
	IsUnlocked  bool                         `json:"is_unlocked"`
	UnlockedAt  *time.Time                   `json:"unlocked_at,omitempty"`
}

// ListUserAchievements returns every active achievement applicable to the
// user's role with the user's progress merged in. Achievements the user has
// never been evaluated against show as zero progress.
func (s *AchievementService) ListUserAchievements(ctx context.Context, userID string) ([]UserAchievement, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	defs, err := s.Store.ListActiveDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	rows, err := s.Store.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	byAchievement := make(map[string]models.UserAchievementProgress, len(rows))
	for _, p := range rows {
		byAchievement[p.AchievementID] = p
	}

	out := make([]UserAchievement, 0, len(defs))
	for _, def := range defs {
		if !def.AppliesTo(user.Role) {
			continue
		}
		ua := UserAchievement{Achievement: def}
		if p, ok := byAchievement[def.ID]; ok {
			ua.Progress = p.Progress
			ua.IsUnlocked = p.IsUnlocked
			ua.UnlockedAt = p.UnlockedAt
		}
		out = append(out, ua)
	}
	return out, nil
}

package services

import (
	"io"
	"log/slog"
	"time"

	"tax-engagement-service/models"
	"tax-engagement-service/store"
)

// testEngine wires the full service stack over the in-memory store with a
// fixed clock and inline (synchronous) trigger dispatch.
type testEngine struct {
	Store        *store.Memory
	Leveling     *LevelingService
	Streaks      *StreakService
	Evaluator    *Evaluator
	Achievements *AchievementService
	Triggers     *TriggerService
	Catalog      *CatalogService

	now time.Time
}

func newTestEngine() *testEngine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()

	e := &testEngine{
		Store: mem,
		now:   time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return e.now }

	e.Leveling = NewLevelingService(mem, log)
	e.Leveling.Now = clock
	e.Streaks = NewStreakService(mem, log)
	e.Streaks.Now = clock
	e.Evaluator = NewEvaluator(mem, log)
	e.Evaluator.Now = clock
	e.Achievements = NewAchievementService(mem, e.Evaluator, e.Leveling, log)
	e.Achievements.Now = clock
	e.Triggers = NewTriggerService(mem, e.Achievements, e.Streaks, log)
	e.Triggers.Now = clock
	e.Triggers.Async = false
	e.Catalog = NewCatalogService(mem, log)
	return e
}

// advance moves the test clock forward.
func (e *testEngine) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// addUser seeds a snapshot row with the given role.
func (e *testEngine) addUser(userID string, role models.RoleTag) {
	e.Store.PutUser(models.TaxUser{
		ExternalUserID: userID,
		Username:       userID,
		Role:           role,
		SignupAt:       e.now.AddDate(-1, 0, 0),
	})
}

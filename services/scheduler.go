// services/scheduler.go
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the engine's periodic jobs: the nightly standing-query
// sweep and the stale-streak reset shortly after local midnight.
type Scheduler struct {
	Triggers *TriggerService
	Streaks  *StreakService
	Log      *slog.Logger

	sched gocron.Scheduler
}

func NewScheduler(triggers *TriggerService, streaks *StreakService, log *slog.Logger) *Scheduler {
	return &Scheduler{Triggers: triggers, Streaks: streaks, Log: log}
}

// Start registers and starts the jobs. Returns the underlying scheduler's
// construction error only; job failures are logged from inside the tasks.
func (s *Scheduler) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.sched = sched

	// 00:10 local: zero out streaks whose run ended before yesterday.
	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 10, 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := s.Streaks.BreakStaleStreaks(ctx); err != nil {
				s.Log.Error("stale streak sweep failed", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	// 02:30 local: full standing-query recalculation, catching anything a
	// dropped event or mid-day catalog change left behind.
	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(2, 30, 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Hour)
			defer cancel()
			if err := s.Triggers.RecalculateAll(ctx); err != nil {
				s.Log.Error("nightly recalculation failed", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	sched.Start()
	s.Log.Info("scheduler started", "jobs", 2)
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() {
	if s.sched != nil {
		_ = s.sched.Shutdown()
	}
}

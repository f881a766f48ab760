// Package service runs the habit use cases: it asks the daily gate, lets
// the habit aggregate change itself inside a repository transaction and
// refreshes the cached statistics afterwards.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/gate"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/metrics"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/stats"
	"github.com/julianstephens/habitmaster/internal/storage"
)

type Service struct {
	store storage.Provider
	loc   *time.Location
	now   func() time.Time
}

type Option func(*Service)

// WithLocation sets the calendar used by the daily gate and monthly stats.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store storage.Provider, opts ...Option) *Service {
	s := &Service{
		store: store,
		loc:   time.Local,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the calendar the service uses.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Now returns the current time from the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// detach keeps a write running when the caller that started it goes away.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (s *Service) findHabit(ctx context.Context, profileID, habitID string) (models.Habit, error) {
	habits, err := s.store.ListHabits(ctx, profileID)
	if err != nil {
		return models.Habit{}, err
	}
	for _, h := range habits {
		if h.ID == habitID {
			return h, nil
		}
	}
	return models.Habit{}, fmt.Errorf("habit %s: %w", habitID, errors.ErrNotFound)
}

// CreateHabit registers a new habit from raw form input.
func (s *Service) CreateHabit(ctx context.Context, profileID string, in models.HabitInput) (models.Habit, error) {
	h, err := models.NewHabit(in, s.now())
	if err != nil {
		metrics.HabitWrite("create", metrics.ResultRefused)
		return models.Habit{}, err
	}
	if err := s.store.AddHabitToProfile(detach(ctx), profileID, h); err != nil {
		metrics.HabitWrite("create", metrics.ResultOf(err, errors.IsExpected))
		return models.Habit{}, err
	}
	metrics.HabitWrite("create", metrics.ResultOK)
	logger.Info("Created habit", "profile", profileID, "habit", h.ID)
	s.refreshStatsQuietly(ctx, profileID)
	return h, nil
}

// EditHabit applies a partial update to the latest stored version of the habit.
func (s *Service) EditHabit(ctx context.Context, profileID, habitID string, edit models.HabitEdit) (models.Habit, error) {
	h, err := s.store.MutateHabit(detach(ctx), profileID, habitID, func(h *models.Habit) error {
		return h.Edit(edit)
	})
	metrics.HabitWrite("edit", metrics.ResultOf(err, errors.IsExpected))
	if err != nil {
		return models.Habit{}, err
	}
	s.refreshStatsQuietly(ctx, profileID)
	return h, nil
}

// CompleteHabit records today's completion. It returns the habit as it
// was before the attempt together with the error when the gate refuses or
// the write fails, so a caller showing optimistic state can roll it back.
func (s *Service) CompleteHabit(ctx context.Context, profileID, habitID string) (models.Habit, error) {
	now := s.now()

	before, err := s.findHabit(ctx, profileID, habitID)
	if err != nil {
		metrics.Completion(metrics.ResultOf(err, errors.IsExpected))
		return models.Habit{}, err
	}
	if !gate.CanComplete(before.LastSuccessDate, now, s.loc) {
		metrics.Completion(metrics.ResultRefused)
		return before, errors.ErrAlreadyCompletedToday
	}

	// The gate is checked again inside the transaction against the latest
	// stored habit, in case another device completed it meanwhile
	after, err := s.store.MutateHabit(detach(ctx), profileID, habitID, func(h *models.Habit) error {
		return h.RecordCompletion(now, s.loc)
	})
	if err != nil {
		if errors.IsExpected(err) {
			metrics.Completion(metrics.ResultRefused)
		} else {
			metrics.Completion(metrics.ResultFailed)
			logger.Error("Failed to record completion", "profile", profileID, "habit", habitID, "error", err)
		}
		return before, err
	}

	metrics.Completion(metrics.ResultAccepted)
	logger.Debug("Recorded completion", "profile", profileID, "habit", habitID, "ledger", after.CompleteList.String())
	s.refreshStatsQuietly(ctx, profileID)
	return after, nil
}

// RecordMiss appends a missed day. It is the hook for the day rollover
// process and is never triggered by a user action.
func (s *Service) RecordMiss(ctx context.Context, profileID, habitID string) (models.Habit, error) {
	h, err := s.store.MutateHabit(detach(ctx), profileID, habitID, func(h *models.Habit) error {
		h.RecordMiss()
		return nil
	})
	metrics.HabitWrite("miss", metrics.ResultOf(err, errors.IsExpected))
	if err != nil {
		return models.Habit{}, err
	}
	s.refreshStatsQuietly(ctx, profileID)
	return h, nil
}

// DeleteHabit removes a habit; the store refreshes the cached statistics.
func (s *Service) DeleteHabit(ctx context.Context, profileID, habitID string) error {
	err := s.store.DeleteHabit(detach(ctx), profileID, habitID)
	metrics.HabitWrite("delete", metrics.ResultOf(err, errors.IsExpected))
	return err
}

// Stats computes the current snapshot without writing it. Trends compare
// against the cached snapshot.
func (s *Service) Stats(ctx context.Context, profileID string) (stats.Snapshot, error) {
	habits, err := s.store.ListHabits(ctx, profileID)
	if err != nil {
		return stats.Snapshot{}, err
	}
	previous, err := s.store.GetUserStatus(ctx, profileID)
	if err != nil {
		return stats.Snapshot{}, err
	}
	return stats.Compute(habits, previous, s.now(), s.loc), nil
}

// RefreshStats recomputes the snapshot and stores it as the new cache entry.
func (s *Service) RefreshStats(ctx context.Context, profileID string) (stats.Snapshot, error) {
	start := time.Now()
	defer metrics.TimeStatsRecompute(start)

	snap, err := s.Stats(ctx, profileID)
	if err != nil {
		return stats.Snapshot{}, err
	}
	if err := s.store.SaveUserStatus(detach(ctx), profileID, snap.Status()); err != nil {
		return stats.Snapshot{}, err
	}
	return snap, nil
}

// refreshStatsQuietly keeps the cache in step after a habit write. The
// cache can always be rebuilt, so a failure here does not fail the write.
func (s *Service) refreshStatsQuietly(ctx context.Context, profileID string) {
	if _, err := s.RefreshStats(detach(ctx), profileID); err != nil {
		logger.Warn("Failed to refresh statistics cache", "profile", profileID, "error", err)
	}
}

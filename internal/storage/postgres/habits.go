package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/storage"
)

const habitColumns = `id, title, achievement_rate, complete_list, target_count, period_value, period_unit, start_date, is_active, last_success_date`

func scanHabit(sc scanner, extra ...any) (models.Habit, error) {
	var h models.Habit
	var ledger string
	var unit string
	var lastSuccess sql.NullInt64

	dest := append(extra,
		&h.ID, &h.Title, &h.AchievementRate, &ledger, &h.TargetCount,
		&h.PeriodValue, &unit, &h.StartDate, &h.IsActive, &lastSuccess)
	if err := sc.Scan(dest...); err != nil {
		return models.Habit{}, err
	}

	var err error
	h.CompleteList, err = storage.DecodeLedger(ledger)
	if err != nil {
		return models.Habit{}, fmt.Errorf("habit %s: %w", h.ID, err)
	}
	h.PeriodUnit = models.ParsePeriodUnit(unit)
	if lastSuccess.Valid {
		ts := lastSuccess.Int64
		h.LastSuccessDate = &ts
	}
	return h, nil
}

func listHabits(ctx context.Context, q querier, profileID string) ([]models.Habit, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE profile_id = $1 ORDER BY position`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	habits := []models.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

// lockHabit reads a habit and holds its row lock until the transaction ends.
func lockHabit(ctx context.Context, q querier, profileID, habitID string) (models.Habit, error) {
	h, err := scanHabit(q.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE profile_id = $1 AND id = $2 FOR UPDATE`, profileID, habitID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, fmt.Errorf("habit %s: %w", habitID, apperrors.ErrNotFound)
	}
	return h, err
}

func lastSuccessArg(h models.Habit) any {
	if h.LastSuccessDate == nil {
		return nil
	}
	return *h.LastSuccessDate
}

func insertHabit(ctx context.Context, q querier, profileID string, position int, h models.Habit) error {
	ledger, err := storage.EncodeLedger(h.CompleteList)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO habits (profile_id, id, position, title, achievement_rate, complete_list,
			target_count, period_value, period_unit, start_date, is_active, last_success_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		profileID, h.ID, position, h.Title, h.AchievementRate, ledger,
		h.TargetCount, h.PeriodValue, string(h.PeriodUnit), h.StartDate, h.IsActive, lastSuccessArg(h))
	return err
}

func updateHabit(ctx context.Context, q querier, profileID string, h models.Habit) error {
	ledger, err := storage.EncodeLedger(h.CompleteList)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE habits SET title = $1, achievement_rate = $2, complete_list = $3, target_count = $4,
			period_value = $5, period_unit = $6, start_date = $7, is_active = $8, last_success_date = $9
		WHERE profile_id = $10 AND id = $11`,
		h.Title, h.AchievementRate, ledger, h.TargetCount,
		h.PeriodValue, string(h.PeriodUnit), h.StartDate, h.IsActive, lastSuccessArg(h),
		profileID, h.ID)
	return err
}

func (s *Store) ObserveHabits(ctx context.Context, profileID string) *storage.Subscription[[]models.Habit] {
	return observe(ctx, s, "habits",
		func(c storage.Change) bool { return c.AffectsHabits(profileID) },
		func(ctx context.Context) ([]models.Habit, error) { return s.ListHabits(ctx, profileID) })
}

func (s *Store) ListHabits(ctx context.Context, profileID string) ([]models.Habit, error) {
	db, err := s.conn()
	if err != nil {
		return nil, storage.Fail("list habits", err)
	}
	if err := profileExists(ctx, db, profileID); err != nil {
		return nil, storage.Fail("list habits", err)
	}
	habits, err := listHabits(ctx, db, profileID)
	if err != nil {
		return nil, storage.Fail("list habits", err)
	}
	return habits, nil
}

func (s *Store) AddHabitToProfile(ctx context.Context, profileID string, habit models.Habit) error {
	if err := habit.Validate(); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		// Locking the owning profile orders concurrent inserts for positions
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = $1 FOR UPDATE`, profileID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", profileID, apperrors.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM habits WHERE profile_id = $1 AND id = $2)`, profileID, habit.ID).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, apperrors.Invalid("id", "already used by another habit of this profile")
		}

		var position int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM habits WHERE profile_id = $1`, profileID).Scan(&position); err != nil {
			return nil, err
		}
		if err := insertHabit(ctx, tx, profileID, position, habit); err != nil {
			return nil, err
		}
		return []storage.Change{{Kind: storage.ChangeHabits, ProfileID: profileID}}, nil
	})
	if err != nil {
		return storage.Fail("add habit", err)
	}
	logger.Debug("Added habit", "profile", profileID, "habit", habit.ID)
	return nil
}

func (s *Store) UpdateHabit(ctx context.Context, profileID string, habit models.Habit) error {
	_, err := s.MutateHabit(ctx, profileID, habit.ID, func(h *models.Habit) error {
		*h = habit.Clone()
		return nil
	})
	return err
}

// MutateHabit holds the habit's row lock (SELECT ... FOR UPDATE) across the
// read, fn and the write.
func (s *Store) MutateHabit(ctx context.Context, profileID, habitID string, fn storage.HabitMutation) (models.Habit, error) {
	var written models.Habit
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		current, err := lockHabit(ctx, tx, profileID, habitID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return nil, err
		}
		if next.ID != current.ID {
			return nil, apperrors.Invalid("id", "cannot be changed")
		}
		if err := next.Validate(); err != nil {
			return nil, err
		}
		if err := updateHabit(ctx, tx, profileID, next); err != nil {
			return nil, err
		}
		written = next
		return []storage.Change{{Kind: storage.ChangeHabits, ProfileID: profileID}}, nil
	})
	if err != nil {
		return models.Habit{}, storage.Fail("update habit", err)
	}
	return written, nil
}

func (s *Store) DeleteHabit(ctx context.Context, profileID, habitID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		res, err := tx.ExecContext(ctx, `DELETE FROM habits WHERE profile_id = $1 AND id = $2`, profileID, habitID)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("habit %s: %w", habitID, apperrors.ErrNotFound)
		}

		remaining, err := listHabits(ctx, tx, profileID)
		if err != nil {
			return nil, err
		}
		previous, err := getStatus(ctx, tx, profileID)
		if err != nil {
			return nil, err
		}
		now := s.opts.Now()
		if err := upsertStatus(ctx, tx, profileID, storage.RecomputeStatus(remaining, previous, now, s.opts.Location), now); err != nil {
			return nil, err
		}
		return []storage.Change{
			{Kind: storage.ChangeHabits, ProfileID: profileID},
			{Kind: storage.ChangeStatus, ProfileID: profileID},
		}, nil
	})
	if err != nil {
		return storage.Fail("delete habit", err)
	}
	logger.Info("Deleted habit", "profile", profileID, "habit", habitID)
	return nil
}

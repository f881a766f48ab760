package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/gate"
)

type PeriodUnit string

const (
	PeriodDay   PeriodUnit = "day"
	PeriodWeek  PeriodUnit = "week"
	PeriodMonth PeriodUnit = "month"
)

// ParsePeriodUnit maps user input to a PeriodUnit, falling back to PeriodDay.
// The labels used by the mobile app ("일마다", "주마다", "개월마다") are accepted
// so that imported documents keep their cadence.
func ParsePeriodUnit(s string) PeriodUnit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "weeks", "weekly", "w", "주마다":
		return PeriodWeek
	case "month", "months", "monthly", "m", "개월마다", "달마다":
		return PeriodMonth
	default:
		return PeriodDay
	}
}

// ParseTargetCount parses a target count, returning 0 for anything that is
// not a non-negative integer.
func ParseTargetCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return constants.DefaultTargetCount
	}
	return n
}

// ParsePeriodValue parses a period value, returning 1 for anything that is
// not a positive integer.
func ParsePeriodValue(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return constants.DefaultPeriodValue
	}
	return n
}

// Habit is a recurring practice owned by exactly one profile.
//
// CompleteList and AchievementRate are derived state: they are written only
// by RecordCompletion and RecordMiss so that the rate always reflects the ledger.
type Habit struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	AchievementRate float64    `json:"achievement_rate"`
	CompleteList    Ledger     `json:"complete_list"`
	TargetCount     int        `json:"target_count"`
	PeriodValue     int        `json:"period_value"`
	PeriodUnit      PeriodUnit `json:"period_unit"`
	StartDate       int64      `json:"start_date"` // epoch millis
	IsActive        bool       `json:"is_active"`
	LastSuccessDate *int64     `json:"last_success_date,omitempty"` // epoch millis
}

// HabitInput carries the raw form values used to register a habit.
type HabitInput struct {
	Title       string
	TargetCount string
	PeriodValue string
	PeriodUnit  string
	StartDate   int64 // epoch millis, zero means now
}

// HabitEdit is a partial update; nil fields are left unchanged.
type HabitEdit struct {
	Title       *string
	TargetCount *string
	PeriodValue *string
	PeriodUnit  *string
	StartDate   *int64
	IsActive    *bool
}

// NewHabit validates input and returns a fresh habit with an empty ledger.
func NewHabit(in HabitInput, now time.Time) (Habit, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Habit{}, errors.Invalid("title", "must not be blank")
	}

	start := in.StartDate
	if start == 0 {
		start = now.UnixMilli()
	}

	return Habit{
		ID:              uuid.New().String(),
		Title:           title,
		AchievementRate: 0,
		CompleteList:    Ledger{},
		TargetCount:     ParseTargetCount(in.TargetCount),
		PeriodValue:     ParsePeriodValue(in.PeriodValue),
		PeriodUnit:      ParsePeriodUnit(in.PeriodUnit),
		StartDate:       start,
		IsActive:        true,
	}, nil
}

// Validate checks the structural invariants of a stored habit.
func (h *Habit) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return errors.Invalid("id", "must not be empty")
	}
	if strings.TrimSpace(h.Title) == "" {
		return errors.Invalid("title", "must not be blank")
	}
	if h.TargetCount < 0 {
		return errors.Invalid("target_count", "must not be negative")
	}
	if h.PeriodValue < 1 {
		return errors.Invalid("period_value", "must be at least 1")
	}
	if len(h.CompleteList) > constants.LedgerCapacity {
		return errors.Invalid("complete_list", "holds more than a week of entries")
	}
	if h.AchievementRate < 0 || h.AchievementRate > 1 {
		return errors.Invalid("achievement_rate", "must be between 0 and 1")
	}
	return nil
}

// Edit applies a partial update. The ledger and the cached rate are left as
// they are; a changed target shows up in the rate at the next ledger change.
func (h *Habit) Edit(e HabitEdit) error {
	if e.Title != nil {
		title := strings.TrimSpace(*e.Title)
		if title == "" {
			return errors.Invalid("title", "must not be blank")
		}
		h.Title = title
	}
	if e.TargetCount != nil {
		h.TargetCount = ParseTargetCount(*e.TargetCount)
	}
	if e.PeriodValue != nil {
		h.PeriodValue = ParsePeriodValue(*e.PeriodValue)
	}
	if e.PeriodUnit != nil {
		h.PeriodUnit = ParsePeriodUnit(*e.PeriodUnit)
	}
	if e.StartDate != nil {
		h.StartDate = *e.StartDate
	}
	if e.IsActive != nil {
		h.IsActive = *e.IsActive
	}
	return nil
}

// RecordCompletion marks the habit done for the calendar day of now in loc.
// A second completion on the same day returns errors.ErrAlreadyCompletedToday
// and leaves the habit untouched.
func (h *Habit) RecordCompletion(now time.Time, loc *time.Location) error {
	if !gate.CanComplete(h.LastSuccessDate, now, loc) {
		return errors.ErrAlreadyCompletedToday
	}
	h.CompleteList = h.CompleteList.Append(Completed)
	h.recomputeRate()
	ts := now.UnixMilli()
	h.LastSuccessDate = &ts
	return nil
}

// RecordMiss appends a missed day. It is the entry point for the day
// rollover process; no user action calls it.
func (h *Habit) RecordMiss() {
	h.CompleteList = h.CompleteList.Append(Missed)
	h.recomputeRate()
}

func (h *Habit) recomputeRate() {
	h.AchievementRate = AchievementRate(h.CompleteList, h.TargetCount)
}

// AchievementRate is successes over target, clamped to [0, 1]; zero when
// the target is not positive.
func AchievementRate(l Ledger, target int) float64 {
	if target <= 0 {
		return 0
	}
	rate := float64(l.SuccessCount()) / float64(target)
	if rate > 1 {
		return 1
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// CurrentStreak is the trailing run of completions in the ledger.
func (h Habit) CurrentStreak() int { return h.CompleteList.CurrentStreak() }

// BestStreak is the longest run of completions in the ledger.
func (h Habit) BestStreak() int { return h.CompleteList.BestStreak() }

// SuccessCount is the number of completions in the ledger.
func (h Habit) SuccessCount() int { return h.CompleteList.SuccessCount() }

// CompletedOn reports whether the last accepted completion falls on the
// calendar day of t.
func (h Habit) CompletedOn(t time.Time, loc *time.Location) bool {
	return h.LastSuccessDate != nil && gate.IsSameCalendarDay(gate.FromMillis(*h.LastSuccessDate, loc), t, loc)
}

// Clone returns a deep copy so callers can keep a pre-mutation version.
func (h Habit) Clone() Habit {
	c := h
	c.CompleteList = append(Ledger{}, h.CompleteList...)
	if h.LastSuccessDate != nil {
		ts := *h.LastSuccessDate
		c.LastSuccessDate = &ts
	}
	return c
}

package models

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitmaster/internal/errors"
)

func strPtr(s string) *string { return &s }

func TestNewHabit(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	h, err := NewHabit(HabitInput{
		Title:       "  Read 20 pages ",
		TargetCount: "5",
		PeriodValue: "2",
		PeriodUnit:  "week",
	}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "Read 20 pages", h.Title)
	assert.Equal(t, 5, h.TargetCount)
	assert.Equal(t, 2, h.PeriodValue)
	assert.Equal(t, PeriodWeek, h.PeriodUnit)
	assert.Equal(t, now.UnixMilli(), h.StartDate)
	assert.True(t, h.IsActive)
	assert.Empty(t, h.CompleteList)
	assert.NotNil(t, h.CompleteList)
	assert.Zero(t, h.AchievementRate)
	assert.Nil(t, h.LastSuccessDate)
	assert.NoError(t, h.Validate())

	other, err := NewHabit(HabitInput{Title: "Run"}, now)
	require.NoError(t, err)
	assert.NotEqual(t, h.ID, other.ID)
}

func TestNewHabitBlankTitle(t *testing.T) {
	_, err := NewHabit(HabitInput{Title: "   "}, time.Now())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
}

func TestParseOrDefault(t *testing.T) {
	tests := []struct {
		in     string
		target int
		period int
	}{
		{"", 0, 1},
		{"abc", 0, 1},
		{"3", 3, 3},
		{" 7 ", 7, 7},
		{"0", 0, 1},
		{"-4", 0, 1},
		{"2.5", 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.target, ParseTargetCount(tt.in), "target for %q", tt.in)
		assert.Equal(t, tt.period, ParsePeriodValue(tt.in), "period for %q", tt.in)
	}
}

func TestParsePeriodUnit(t *testing.T) {
	assert.Equal(t, PeriodDay, ParsePeriodUnit("일마다"))
	assert.Equal(t, PeriodWeek, ParsePeriodUnit("주마다"))
	assert.Equal(t, PeriodMonth, ParsePeriodUnit("개월마다"))
	assert.Equal(t, PeriodMonth, ParsePeriodUnit("Monthly"))
	assert.Equal(t, PeriodDay, ParsePeriodUnit("fortnight"))
}

func TestRecordCompletion(t *testing.T) {
	loc := time.UTC
	h, err := NewHabit(HabitInput{Title: "Stretch", TargetCount: "4"}, time.Date(2025, 1, 1, 8, 0, 0, 0, loc))
	require.NoError(t, err)

	day1 := time.Date(2025, 1, 1, 8, 30, 0, 0, loc)
	require.NoError(t, h.RecordCompletion(day1, loc))
	assert.Equal(t, "O", h.CompleteList.String())
	assert.InDelta(t, 0.25, h.AchievementRate, 1e-9)
	require.NotNil(t, h.LastSuccessDate)
	assert.Equal(t, day1.UnixMilli(), *h.LastSuccessDate)

	// Second completion on the same calendar day is refused and changes nothing
	before := h.Clone()
	err = h.RecordCompletion(time.Date(2025, 1, 1, 23, 59, 0, 0, loc), loc)
	assert.True(t, stderrors.Is(err, errors.ErrAlreadyCompletedToday))
	assert.Equal(t, before, h)

	// Next day is accepted
	require.NoError(t, h.RecordCompletion(time.Date(2025, 1, 2, 0, 0, 1, 0, loc), loc))
	assert.Equal(t, "OO", h.CompleteList.String())
	assert.InDelta(t, 0.5, h.AchievementRate, 1e-9)
	assert.True(t, h.CompletedOn(time.Date(2025, 1, 2, 12, 0, 0, 0, loc), loc))
}

func TestAchievementRateBounds(t *testing.T) {
	loc := time.UTC
	start := time.Date(2025, 2, 1, 12, 0, 0, 0, loc)

	for _, target := range []string{"0", "1", "3", "7", "50", "bogus"} {
		h, err := NewHabit(HabitInput{Title: "Bound", TargetCount: target}, start)
		require.NoError(t, err)

		for day := 0; day < 12; day++ {
			if day%4 == 3 {
				h.RecordMiss()
			} else {
				require.NoError(t, h.RecordCompletion(start.AddDate(0, 0, day), loc))
			}
			if day == 6 {
				require.NoError(t, h.Edit(HabitEdit{TargetCount: strPtr("2")}))
			}
			assert.GreaterOrEqual(t, h.AchievementRate, 0.0)
			assert.LessOrEqual(t, h.AchievementRate, 1.0)
			assert.LessOrEqual(t, len(h.CompleteList), 7)
		}
	}
}

func TestAchievementRateFormula(t *testing.T) {
	l := LedgerFrom(Completed, Missed, Completed, Pending)
	assert.Zero(t, AchievementRate(l, 0))
	assert.Zero(t, AchievementRate(l, -3))
	assert.InDelta(t, 0.5, AchievementRate(l, 4), 1e-9)
	assert.Equal(t, 1.0, AchievementRate(l, 1))
}

func TestEdit(t *testing.T) {
	h, err := NewHabit(HabitInput{Title: "Journal", TargetCount: "2"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.RecordCompletion(time.Now(), time.Local))
	rate := h.AchievementRate
	ledger := h.CompleteList.String()

	inactive := false
	start := int64(1700000000000)
	require.NoError(t, h.Edit(HabitEdit{
		Title:       strPtr("Evening journal"),
		TargetCount: strPtr("ten"),
		PeriodValue: strPtr("3"),
		PeriodUnit:  strPtr("month"),
		StartDate:   &start,
		IsActive:    &inactive,
	}))

	assert.Equal(t, "Evening journal", h.Title)
	assert.Equal(t, 0, h.TargetCount)
	assert.Equal(t, 3, h.PeriodValue)
	assert.Equal(t, PeriodMonth, h.PeriodUnit)
	assert.Equal(t, start, h.StartDate)
	assert.False(t, h.IsActive)
	assert.Equal(t, rate, h.AchievementRate, "edit must not touch the cached rate")
	assert.Equal(t, ledger, h.CompleteList.String(), "edit must not touch the ledger")

	err = h.Edit(HabitEdit{Title: strPtr("")})
	assert.True(t, stderrors.Is(err, errors.ErrValidation))
	assert.Equal(t, "Evening journal", h.Title)
}

func TestClone(t *testing.T) {
	h, err := NewHabit(HabitInput{Title: "Walk", TargetCount: "3"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.RecordCompletion(time.Now(), time.Local))

	c := h.Clone()
	c.CompleteList[0] = Missed
	*c.LastSuccessDate = 1

	assert.Equal(t, Completed, h.CompleteList[0])
	assert.NotEqual(t, int64(1), *h.LastSuccessDate)
}

func TestValidate(t *testing.T) {
	h := Habit{ID: "h1", Title: "x", PeriodValue: 1, CompleteList: LedgerFrom(Completed)}
	assert.NoError(t, h.Validate())

	bad := h
	bad.CompleteList = Ledger{Completed, Completed, Completed, Completed, Completed, Completed, Completed, Completed}
	assert.Error(t, bad.Validate())

	bad = h
	bad.AchievementRate = 1.5
	assert.Error(t, bad.Validate())

	bad = h
	bad.PeriodValue = 0
	assert.Error(t, bad.Validate())
}

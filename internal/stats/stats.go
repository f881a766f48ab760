// Package stats derives a profile's statistics from its habits.
//
// Every function is pure: it reads the habits it is given, never modifies
// them, and is defined for an empty list. Profiles hold a handful of habits,
// so snapshots are recomputed on demand instead of being maintained
// incrementally.
package stats

import (
	"math"
	"time"

	"github.com/julianstephens/habitmaster/internal/models"
)

// BucketCount is the number of achievement distribution buckets.
const BucketCount = 5

// bucketUpper holds the inclusive upper edge of each bucket, in percent.
var bucketUpper = [BucketCount]int{20, 40, 60, 80, 100}

// Snapshot is the read model shown on the statistics page.
type Snapshot struct {
	AchievementRate        int
	TrendChange            int
	CurrentStreak          int
	TotalAchieved          int
	BestStreak             int
	ActiveChallenges       int
	MonthlyAchievementRate int
	MonthlyTrendChange     int
	Distribution           [BucketCount]int
}

// Percent converts a rate in [0, 1] to a rounded integer percentage.
func Percent(rate float64) int {
	p := int(math.Round(rate * 100))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// OverallAchievementRate is the unweighted mean of the habits' rates as a
// 0-100 integer.
func OverallAchievementRate(habits []models.Habit) int {
	if len(habits) == 0 {
		return 0
	}
	sum := 0.0
	for _, h := range habits {
		sum += h.AchievementRate
	}
	return Percent(sum / float64(len(habits)))
}

// BestStreakAcrossHabits is the longest run of completions in any habit.
func BestStreakAcrossHabits(habits []models.Habit) int {
	best := 0
	for _, h := range habits {
		best = max(best, h.BestStreak())
	}
	return best
}

// CurrentStreakAcrossHabits is the longest trailing run of completions in any habit.
func CurrentStreakAcrossHabits(habits []models.Habit) int {
	cur := 0
	for _, h := range habits {
		cur = max(cur, h.CurrentStreak())
	}
	return cur
}

// ActiveCount counts habits that are not paused.
func ActiveCount(habits []models.Habit) int {
	n := 0
	for _, h := range habits {
		if h.IsActive {
			n++
		}
	}
	return n
}

// TotalSuccessCount sums the completions recorded in every ledger.
func TotalSuccessCount(habits []models.Habit) int {
	n := 0
	for _, h := range habits {
		n += h.SuccessCount()
	}
	return n
}

// AchievementDistribution counts habits per rate bucket:
// [0,20] [21,40] [41,60] [61,80] [81,100], edges inclusive.
func AchievementDistribution(habits []models.Habit) [BucketCount]int {
	var buckets [BucketCount]int
	for _, h := range habits {
		buckets[bucketOf(Percent(h.AchievementRate))]++
	}
	return buckets
}

func bucketOf(percent int) int {
	for i, upper := range bucketUpper {
		if percent <= upper {
			return i
		}
	}
	return BucketCount - 1
}

// MonthlyAchievementRate is the mean rate of the habits started in the
// calendar month of now, as a 0-100 integer.
func MonthlyAchievementRate(habits []models.Habit, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	var started []models.Habit
	for _, h := range habits {
		s := time.UnixMilli(h.StartDate).In(loc)
		if s.Year() == n.Year() && s.Month() == n.Month() {
			started = append(started, h)
		}
	}
	return OverallAchievementRate(started)
}

// Compute builds a full snapshot. previous is the last cached status, used
// for the trend fields; nil means there is nothing to compare against. A rate
// that has not moved since previous keeps previous's trend, so recomputing an
// unchanged profile never flattens its trend to zero.
func Compute(habits []models.Habit, previous *models.UserStatus, now time.Time, loc *time.Location) Snapshot {
	s := Snapshot{
		AchievementRate:        OverallAchievementRate(habits),
		CurrentStreak:          CurrentStreakAcrossHabits(habits),
		TotalAchieved:          TotalSuccessCount(habits),
		BestStreak:             BestStreakAcrossHabits(habits),
		ActiveChallenges:       ActiveCount(habits),
		MonthlyAchievementRate: MonthlyAchievementRate(habits, now, loc),
		Distribution:           AchievementDistribution(habits),
	}
	if previous != nil {
		s.TrendChange = trend(s.AchievementRate, previous.AchievementRate, previous.TrendChange)
		s.MonthlyTrendChange = trend(s.MonthlyAchievementRate, previous.MonthlyAchievementRate, previous.MonthlyTrendChange)
	}
	return s
}

func trend(rate, cachedRate, cachedTrend int) int {
	if rate == cachedRate {
		return cachedTrend
	}
	return rate - cachedRate
}

// Status converts the snapshot to its persisted cache shape.
func (s Snapshot) Status() models.UserStatus {
	return models.UserStatus{
		AchievementRate:        s.AchievementRate,
		TrendChange:            s.TrendChange,
		CurrentStreak:          s.CurrentStreak,
		TotalAchieved:          s.TotalAchieved,
		BestStreak:             s.BestStreak,
		ActiveChallenges:       s.ActiveChallenges,
		MonthlyAchievementRate: s.MonthlyAchievementRate,
		MonthlyTrendChange:     s.MonthlyTrendChange,
	}
}

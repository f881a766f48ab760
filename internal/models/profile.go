package models

import (
	"strings"

	"github.com/julianstephens/habitmaster/internal/errors"
)

// Profile is a named partition of an account. It owns its habits and its
// cached statistics; deleting a profile deletes both.
type Profile struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	PasswordHash    string  `json:"password_hash"`
	PhotoURL        *string `json:"photo_url,omitempty"`
	Habits          []Habit `json:"habits"`
	CreatedAtMillis int64   `json:"created_at_millis"`
}

// ValidateProfileName rejects blank display names.
func ValidateProfileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.Invalid("name", "must not be blank")
	}
	return name, nil
}

// FindHabit returns the habit with id and whether it was found.
func (p Profile) FindHabit(id string) (Habit, bool) {
	for _, h := range p.Habits {
		if h.ID == id {
			return h, true
		}
	}
	return Habit{}, false
}

// UserStatus is the persisted cache of a profile's statistics snapshot.
// It is never edited by hand and can always be recomputed from the habits.
type UserStatus struct {
	AchievementRate        int `json:"achievement_rate"`
	TrendChange            int `json:"trend_change"`
	CurrentStreak          int `json:"current_streak"`
	TotalAchieved          int `json:"total_achieved"`
	BestStreak             int `json:"best_streak"`
	ActiveChallenges       int `json:"active_challenges"`
	MonthlyAchievementRate int `json:"monthly_achievement_rate"`
	MonthlyTrendChange     int `json:"monthly_trend_change"`
}

// Package validation checks stored profiles and habits against the rules
// the aggregate enforces on write, so data written by older versions or by
// hand can be diagnosed.
package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/password"
	"github.com/julianstephens/habitmaster/internal/stats"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictTooManyProfiles   ConflictType = "too_many_profiles"
	ConflictBlankName         ConflictType = "blank_name"
	ConflictBlankTitle        ConflictType = "blank_title"
	ConflictDuplicateHabitID  ConflictType = "duplicate_habit_id"
	ConflictLedgerTooLong     ConflictType = "ledger_too_long"
	ConflictRateOutOfRange    ConflictType = "rate_out_of_range"
	ConflictInvalidCadence    ConflictType = "invalid_cadence"
	ConflictFutureCompletion  ConflictType = "future_completion"
	ConflictStaleStatistics   ConflictType = "stale_statistics"
	ConflictMissingStatistics ConflictType = "missing_statistics"
	ConflictLegacyPassword    ConflictType = "legacy_password"
)

// Severity separates broken data from data that is only out of date.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Conflict is one finding.
type Conflict struct {
	Type        ConflictType
	Severity    Severity
	Description string
	ProfileID   string
	HabitID     string
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// HasErrors reports whether any conflict is more than a warning.
func (vr *ValidationResult) HasErrors() bool {
	for _, c := range vr.Conflicts {
		if c.Severity == SeverityError {
			return true
		}
	}
	return false
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, c := range vr.Conflicts {
		level := "error"
		if c.Severity == SeverityWarning {
			level = "warning"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", level, c.Description)
	}
	return b.String()
}

func (vr *ValidationResult) add(c Conflict) {
	vr.Conflicts = append(vr.Conflicts, c)
}

// Validator validates profiles, habits and cached statistics
type Validator struct {
	now func() time.Time
	loc *time.Location
}

// New creates a Validator using loc for calendar rules.
func New(loc *time.Location) *Validator {
	if loc == nil {
		loc = time.Local
	}
	return &Validator{now: time.Now, loc: loc}
}

// ValidateProfiles checks the account-level limits and every profile's habits.
func (v *Validator) ValidateProfiles(profiles []models.Profile) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}

	if len(profiles) > constants.MaxProfiles {
		result.add(Conflict{
			Type:        ConflictTooManyProfiles,
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("Account has %d profiles, more than the limit of %d", len(profiles), constants.MaxProfiles),
		})
	}

	for _, p := range profiles {
		if strings.TrimSpace(p.Name) == "" {
			result.add(Conflict{
				Type:        ConflictBlankName,
				Severity:    SeverityError,
				Description: fmt.Sprintf("Profile %s has a blank name", p.ID),
				ProfileID:   p.ID,
			})
		}
		if password.IsLegacy(p.PasswordHash) {
			result.add(Conflict{
				Type:        ConflictLegacyPassword,
				Severity:    SeverityWarning,
				Description: fmt.Sprintf("Profile %q has an unsalted password hash; run '%s profile passwd' to replace it", p.Name, constants.AppName),
				ProfileID:   p.ID,
			})
		}
		v.validateHabits(&result, p)
	}
	return result
}

func (v *Validator) validateHabits(result *ValidationResult, p models.Profile) {
	seen := make(map[string]bool, len(p.Habits))
	now := v.now()

	for _, h := range p.Habits {
		fail := func(t ConflictType, sev Severity, format string, args ...any) {
			result.add(Conflict{
				Type:        t,
				Severity:    sev,
				Description: fmt.Sprintf("Habit %q in profile %q: ", h.Title, p.Name) + fmt.Sprintf(format, args...),
				ProfileID:   p.ID,
				HabitID:     h.ID,
			})
		}

		if seen[h.ID] {
			fail(ConflictDuplicateHabitID, SeverityError, "id %s is used more than once", h.ID)
		}
		seen[h.ID] = true

		if strings.TrimSpace(h.Title) == "" {
			fail(ConflictBlankTitle, SeverityError, "title is blank")
		}
		if len(h.CompleteList) > constants.LedgerCapacity {
			fail(ConflictLedgerTooLong, SeverityError, "ledger holds %d entries, more than %d", len(h.CompleteList), constants.LedgerCapacity)
		}
		if math.IsNaN(h.AchievementRate) || h.AchievementRate < 0 || h.AchievementRate > 1 {
			fail(ConflictRateOutOfRange, SeverityError, "achievement rate %v is outside [0, 1]", h.AchievementRate)
		}
		if h.TargetCount < 0 || h.PeriodValue < 1 || models.ParsePeriodUnit(string(h.PeriodUnit)) != h.PeriodUnit {
			fail(ConflictInvalidCadence, SeverityError, "cadence target=%d every %d %q is invalid", h.TargetCount, h.PeriodValue, h.PeriodUnit)
		}
		if h.LastSuccessDate != nil && time.UnixMilli(*h.LastSuccessDate).After(now) {
			fail(ConflictFutureCompletion, SeverityWarning, "last completion %s is in the future; the daily gate will refuse completions until then",
				time.UnixMilli(*h.LastSuccessDate).In(v.loc).Format(time.RFC3339))
		}
	}
}

// ValidateStatus compares a profile's cached statistics with a fresh
// computation. Trend fields are ignored since they depend on history.
func (v *Validator) ValidateStatus(p models.Profile, cached *models.UserStatus) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}
	if cached == nil {
		result.add(Conflict{
			Type:        ConflictMissingStatistics,
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("Profile %q has no statistics snapshot", p.Name),
			ProfileID:   p.ID,
		})
		return result
	}

	fresh := stats.Compute(p.Habits, cached, v.now(), v.loc).Status()
	fresh.TrendChange = cached.TrendChange
	fresh.MonthlyTrendChange = cached.MonthlyTrendChange
	if fresh != *cached {
		result.add(Conflict{
			Type:        ConflictStaleStatistics,
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("Profile %q statistics are out of date (cached rate %d%%, actual %d%%); run 'stats --refresh'", p.Name, cached.AchievementRate, fresh.AchievementRate),
			ProfileID:   p.ID,
		})
	}
	return result
}

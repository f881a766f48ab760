package habits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/habitmaster/internal/cli"
	"github.com/julianstephens/habitmaster/internal/constants"
	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/gate"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/stats"
)

type HabitCmd struct {
	Add      HabitAddCmd      `cmd:"" help:"Register a new habit."`
	Edit     HabitEditCmd     `cmd:"" help:"Edit a habit."`
	List     HabitListCmd     `cmd:"" help:"List habits with their progress."`
	Complete HabitCompleteCmd `cmd:"" help:"Mark a habit done for today."`
	Backfill HabitBackfillCmd `cmd:"" help:"Record missed days (used by the day rollover job)."`
	Delete   HabitDeleteCmd   `cmd:"" help:"Delete a habit."`
}

func parseDate(s string, loc *time.Location) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.ParseInLocation(constants.DateFormat, s, loc)
	if err != nil {
		return 0, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", s)
	}
	return t.UnixMilli(), nil
}

type HabitAddCmd struct {
	Title  string `arg:"" help:"Habit title."`
	Target string `help:"Completions needed to reach 100%." default:"0"`
	Period string `help:"Length of one period, in units." default:"1"`
	Unit   string `help:"Period unit (day, week, month)." default:"day"`
	Start  string `help:"Start date in YYYY-MM-DD format (default: today)."`
}

func (c *HabitAddCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}
	start, err := parseDate(c.Start, app.Service.Location())
	if err != nil {
		return err
	}

	h, err := app.Service.CreateHabit(ctx, p.ID, models.HabitInput{
		Title:       c.Title,
		TargetCount: c.Target,
		PeriodValue: c.Period,
		PeriodUnit:  c.Unit,
		StartDate:   start,
	})
	if err != nil {
		return err
	}
	app.Printf("✓ Added habit %q (%s): target %d every %d %s\n", h.Title, h.ID, h.TargetCount, h.PeriodValue, h.PeriodUnit)
	return nil
}

type HabitEditCmd struct {
	ID     string  `arg:"" help:"Habit id."`
	Title  *string `help:"New title."`
	Target *string `help:"New target count."`
	Period *string `help:"New period length."`
	Unit   *string `help:"New period unit."`
	Start  *string `help:"New start date (YYYY-MM-DD)."`
	Pause  bool    `help:"Mark the habit inactive." xor:"active"`
	Resume bool    `help:"Mark the habit active." xor:"active"`
}

func (c *HabitEditCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}

	edit := models.HabitEdit{
		Title:       c.Title,
		TargetCount: c.Target,
		PeriodValue: c.Period,
		PeriodUnit:  c.Unit,
	}
	if c.Start != nil {
		start, err := parseDate(*c.Start, app.Service.Location())
		if err != nil {
			return err
		}
		edit.StartDate = &start
	}
	if c.Pause || c.Resume {
		active := c.Resume
		edit.IsActive = &active
	}

	h, err := app.Service.EditHabit(ctx, p.ID, c.ID, edit)
	if err != nil {
		return err
	}
	app.Printf("✓ Updated habit %q\n", h.Title)
	return nil
}

type HabitListCmd struct {
	All bool `help:"Include paused habits."`
}

func (c *HabitListCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}
	habits, err := app.Store.ListHabits(ctx, p.ID)
	if err != nil {
		return err
	}

	now, loc := app.Service.Now(), app.Service.Location()
	shown := 0
	for _, h := range habits {
		if !h.IsActive && !c.All {
			continue
		}
		if shown == 0 {
			app.Printf("Habits for %s:\n\n", p.Name)
		}
		shown++
		app.Println(formatHabit(h, now, loc))
	}
	if shown == 0 {
		app.Println("No habits found.")
	}
	return nil
}

func formatHabit(h models.Habit, now time.Time, loc *time.Location) string {
	mark := "[ ]"
	if h.CompletedOn(now, loc) {
		mark = "[x]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %-24s %3d%%  streak %d  %s", mark, h.ID, h.Title,
		stats.Percent(h.AchievementRate), h.CurrentStreak(), ledgerBar(h.CompleteList))
	if !h.IsActive {
		b.WriteString("  [PAUSED]")
	}
	return b.String()
}

// ledgerBar renders the week oldest first: # done, . missed, _ open.
func ledgerBar(l models.Ledger) string {
	cells := make([]byte, constants.LedgerCapacity)
	for i := range cells {
		cells[i] = '_'
	}
	if len(l) > constants.LedgerCapacity {
		l = l[len(l)-constants.LedgerCapacity:]
	}
	offset := constants.LedgerCapacity - len(l)
	for i, o := range l {
		switch o {
		case models.Completed:
			cells[offset+i] = '#'
		case models.Missed:
			cells[offset+i] = '.'
		}
	}
	return string(cells)
}

type HabitCompleteCmd struct {
	ID string `arg:"" help:"Habit id."`
}

func (c *HabitCompleteCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}

	h, err := app.Service.CompleteHabit(ctx, p.ID, c.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyCompletedToday) {
			next := gate.NextOpening(app.Service.Now(), app.Service.Location())
			app.Printf("%q is already done today; it opens again %s.\n", h.Title, next.Format("2006-01-02 15:04 MST"))
		}
		return err
	}
	app.Printf("✓ %s done. Streak %d, %d%% of target\n", h.Title, h.CurrentStreak(), stats.Percent(h.AchievementRate))
	return nil
}

type HabitBackfillCmd struct {
	ID   string `arg:"" help:"Habit id."`
	Days int    `help:"Number of missed days to record." default:"1"`
}

func (c *HabitBackfillCmd) Run(ctx context.Context, app *cli.Context) error {
	if c.Days < 1 || c.Days > constants.LedgerCapacity {
		return apperrors.Invalid("days", fmt.Sprintf("must be between 1 and %d", constants.LedgerCapacity))
	}
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}

	var h models.Habit
	for i := 0; i < c.Days; i++ {
		if h, err = app.Service.RecordMiss(ctx, p.ID, c.ID); err != nil {
			return err
		}
	}
	app.Printf("Recorded %d missed day(s) for %q: %s\n", c.Days, h.Title, ledgerBar(h.CompleteList))
	return nil
}

type HabitDeleteCmd struct {
	ID  string `arg:"" help:"Habit id."`
	Yes bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *HabitDeleteCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}
	if !c.Yes {
		ok, err := app.Confirm(fmt.Sprintf("Delete habit %s and its history?", c.ID))
		if err != nil {
			return err
		}
		if !ok {
			app.Println("Delete cancelled.")
			return nil
		}
	}
	if err := app.Service.DeleteHabit(ctx, p.ID, c.ID); err != nil {
		return err
	}
	app.Println("✓ Habit deleted")
	return nil
}

type StatsCmd struct {
	Refresh bool `help:"Store the recomputed snapshot as the new baseline for trends."`
}

func (c *StatsCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}

	var snap stats.Snapshot
	if c.Refresh {
		snap, err = app.Service.RefreshStats(ctx, p.ID)
	} else {
		snap, err = app.Service.Stats(ctx, p.ID)
	}
	if err != nil {
		return err
	}

	app.Printf("Statistics for %s\n\n", p.Name)
	app.Printf("  Achievement rate   %3d%%  (%+d)\n", snap.AchievementRate, snap.TrendChange)
	app.Printf("  This month         %3d%%  (%+d)\n", snap.MonthlyAchievementRate, snap.MonthlyTrendChange)
	app.Printf("  Current streak     %4d\n", snap.CurrentStreak)
	app.Printf("  Best streak        %4d\n", snap.BestStreak)
	app.Printf("  Total achieved     %4d\n", snap.TotalAchieved)
	app.Printf("  Active challenges  %4d\n", snap.ActiveChallenges)
	app.Println()
	app.Println("  Distribution")
	labels := [stats.BucketCount]string{"0-20%", "21-40%", "41-60%", "61-80%", "81-100%"}
	for i, n := range snap.Distribution {
		app.Printf("    %-8s %s %d\n", labels[i], strings.Repeat("■", n), n)
	}
	return nil
}

package habits

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/habitmaster/internal/cli"
	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/password"
	"github.com/julianstephens/habitmaster/internal/service"
	"github.com/julianstephens/habitmaster/internal/storage"
	"github.com/julianstephens/habitmaster/internal/storage/sqlite"
)

func TestMain(m *testing.M) {
	password.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

var testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func setupTestHabitCLI(t *testing.T) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	clock := func() time.Time { return testNow }
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"),
		storage.WithClock(clock),
		storage.WithLocation(time.UTC),
	)
	if err := store.Init(); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.CreateProfile(context.Background(), "Sam", "pw"); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}

	var out bytes.Buffer
	app := &cli.Context{
		Store:   store,
		Service: service.New(store, service.WithClock(clock), service.WithLocation(time.UTC)),
		Out:     &out,
	}
	return app, &out
}

func onlyHabit(t *testing.T, app *cli.Context) models.Habit {
	t.Helper()
	p, err := app.SelectProfile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	habits, err := app.Store.ListHabits(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(habits) != 1 {
		t.Fatalf("expected 1 habit, got %d", len(habits))
	}
	return habits[0]
}

func TestHabitAddCmd(t *testing.T) {
	ctx := context.Background()
	app, out := setupTestHabitCLI(t)

	cmd := &HabitAddCmd{Title: "Read", Target: "ten", Period: "0", Unit: "fortnight", Start: "2024-03-01"}
	if err := cmd.Run(ctx, app); err != nil {
		t.Fatalf("add command failed: %v", err)
	}

	h := onlyHabit(t, app)
	if h.TargetCount != 0 || h.PeriodValue != 1 || h.PeriodUnit != models.PeriodDay {
		t.Errorf("parse-or-default not applied: target=%d period=%d unit=%s", h.TargetCount, h.PeriodValue, h.PeriodUnit)
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if h.StartDate != want {
		t.Errorf("start date = %d, want %d", h.StartDate, want)
	}
	if !strings.Contains(out.String(), `Added habit "Read"`) {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestHabitAddCmd_InvalidInput(t *testing.T) {
	ctx := context.Background()
	app, _ := setupTestHabitCLI(t)

	if err := (&HabitAddCmd{Title: "  "}).Run(ctx, app); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("blank title error = %v, want ErrValidation", err)
	}
	if err := (&HabitAddCmd{Title: "Read", Start: "03/01/2024"}).Run(ctx, app); err == nil {
		t.Error("expected error for malformed start date")
	}
}

func TestHabitCompleteCmd(t *testing.T) {
	ctx := context.Background()
	app, out := setupTestHabitCLI(t)
	if err := (&HabitAddCmd{Title: "Read", Target: "4", Period: "1", Unit: "day"}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	h := onlyHabit(t, app)

	if err := (&HabitCompleteCmd{ID: h.ID}).Run(ctx, app); err != nil {
		t.Fatalf("complete command failed: %v", err)
	}
	if !strings.Contains(out.String(), "Read done. Streak 1, 25% of target") {
		t.Errorf("unexpected output: %q", out.String())
	}

	out.Reset()
	err := (&HabitCompleteCmd{ID: h.ID}).Run(ctx, app)
	if !errors.Is(err, apperrors.ErrAlreadyCompletedToday) {
		t.Fatalf("second completion error = %v, want ErrAlreadyCompletedToday", err)
	}
	if !strings.Contains(out.String(), "opens again 2024-03-16 00:00 UTC") {
		t.Errorf("refusal should name the next opening, got %q", out.String())
	}
	if got := onlyHabit(t, app).CompleteList; len(got) != 1 {
		t.Errorf("ledger length after refusal = %d, want 1", len(got))
	}
}

func TestHabitEditAndList(t *testing.T) {
	ctx := context.Background()
	app, out := setupTestHabitCLI(t)
	if err := (&HabitAddCmd{Title: "Read", Target: "4", Period: "1", Unit: "day"}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	h := onlyHabit(t, app)
	if err := (&HabitCompleteCmd{ID: h.ID}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}

	title := "Read fiction"
	if err := (&HabitEditCmd{ID: h.ID, Title: &title, Pause: true}).Run(ctx, app); err != nil {
		t.Fatalf("edit command failed: %v", err)
	}
	edited := onlyHabit(t, app)
	if edited.Title != title || edited.IsActive {
		t.Errorf("edit not applied: %+v", edited)
	}

	out.Reset()
	if err := (&HabitListCmd{}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No habits found.") {
		t.Errorf("paused habit should be hidden by default, got %q", out.String())
	}

	out.Reset()
	if err := (&HabitListCmd{All: true}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	listing := out.String()
	for _, want := range []string{"[x]", "Read fiction", " 25%", "______#", "[PAUSED]"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestHabitBackfillCmd(t *testing.T) {
	ctx := context.Background()
	app, out := setupTestHabitCLI(t)
	if err := (&HabitAddCmd{Title: "Run", Target: "2"}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	h := onlyHabit(t, app)

	if err := (&HabitBackfillCmd{ID: h.ID, Days: 2}).Run(ctx, app); err != nil {
		t.Fatalf("backfill command failed: %v", err)
	}
	if got := onlyHabit(t, app).CompleteList; !slices.Equal(got, models.LedgerFrom(models.Missed, models.Missed)) {
		t.Errorf("ledger = %v, want two misses", got)
	}
	if !strings.Contains(out.String(), "_____..") {
		t.Errorf("unexpected output: %q", out.String())
	}

	if err := (&HabitBackfillCmd{ID: h.ID, Days: 8}).Run(ctx, app); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("backfill beyond a week error = %v, want ErrValidation", err)
	}
}

func TestHabitDeleteCmd(t *testing.T) {
	ctx := context.Background()
	app, out := setupTestHabitCLI(t)
	if err := (&HabitAddCmd{Title: "Read"}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	h := onlyHabit(t, app)

	app.In = strings.NewReader("n\n")
	if err := (&HabitDeleteCmd{ID: h.ID}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Delete cancelled.") {
		t.Errorf("expected cancellation, got %q", out.String())
	}
	onlyHabit(t, app)

	if err := (&HabitDeleteCmd{ID: h.ID, Yes: true}).Run(ctx, app); err != nil {
		t.Fatalf("delete command failed: %v", err)
	}
	if err := (&HabitDeleteCmd{ID: h.ID, Yes: true}).Run(ctx, app); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("deleting twice error = %v, want ErrNotFound", err)
	}
}

func TestStatsCmd(t *testing.T) {
	ctx := context.Background()
	app, out := setupTestHabitCLI(t)
	if err := (&HabitAddCmd{Title: "Read", Target: "2"}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	h := onlyHabit(t, app)
	if err := (&HabitCompleteCmd{ID: h.ID}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := (&StatsCmd{Refresh: true}).Run(ctx, app); err != nil {
		t.Fatalf("stats command failed: %v", err)
	}
	report := out.String()
	for _, want := range []string{"Achievement rate    50%  (+50)", "This month          50%", "Current streak        1", "41-60%   ■ 1"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestLedgerBar(t *testing.T) {
	tests := []struct {
		ledger models.Ledger
		want   string
	}{
		{models.Ledger{}, "_______"},
		{models.LedgerFrom(models.Completed, models.Missed, models.Pending), "____#._"},
		{models.LedgerFrom(models.Completed, models.Completed, models.Completed, models.Missed, models.Completed, models.Completed, models.Completed), "###.###"},
	}
	for _, tt := range tests {
		if got := ledgerBar(tt.ledger); got != tt.want {
			t.Errorf("ledgerBar(%v) = %q, want %q", tt.ledger, got, tt.want)
		}
	}
}

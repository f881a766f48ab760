package system

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/habitmaster/internal/backup"
	"github.com/julianstephens/habitmaster/internal/cli"
	"github.com/julianstephens/habitmaster/internal/gate"
	"github.com/julianstephens/habitmaster/internal/keyring"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/storage/postgres"
	"github.com/julianstephens/habitmaster/internal/storage/sqlite"
	"github.com/julianstephens/habitmaster/internal/validation"
)

type DoctorCmd struct{}

type checkOutcome int

const (
	checkOK checkOutcome = iota
	checkWarn
	checkFail
	checkSkipped
)

func (cmd *DoctorCmd) Run(ctx context.Context, app *cli.Context) error {
	app.Println("Running diagnostics...")
	app.Println()

	failed := 0
	report := func(name string, outcome checkOutcome, detail string) {
		switch outcome {
		case checkOK:
			app.Printf("✓ %s: OK\n", name)
		case checkWarn:
			app.Printf("⚠ %s: WARNING\n", name)
		case checkFail:
			app.Printf("❌ %s: FAIL\n", name)
			failed++
		case checkSkipped:
			app.Printf("⊘ %s: SKIPPED (%s)\n", name, detail)
			return
		}
		if detail != "" {
			app.Printf("   %s\n", detail)
		}
	}

	profiles, err := app.Store.ListProfiles(ctx)
	if err != nil {
		report("Database reachable", checkFail, err.Error())
	} else {
		report("Database reachable", checkOK, "")
	}

	v := validation.New(app.Service.Location())
	if err != nil {
		report("Data validation", checkSkipped, "database not reachable")
		report("Statistics cache", checkSkipped, "database not reachable")
	} else {
		result := v.ValidateProfiles(profiles)
		report("Data validation", outcomeOf(result), reportDetail(result))

		outcome, detail := checkStatus(ctx, app, v, profiles)
		report("Statistics cache", outcome, detail)
	}

	switch store := app.Store.(type) {
	case *sqlite.Store:
		snapshots, err := backup.NewManager(store.GetConfigPath()).List()
		switch {
		case err != nil:
			report("Safety snapshots", checkWarn, err.Error())
		case len(snapshots) == 0:
			report("Safety snapshots", checkWarn, "none yet; one is taken before every restore or reset")
		default:
			report("Safety snapshots", checkOK, fmt.Sprintf("latest %s", snapshots[0].Timestamp.Format("2006-01-02 15:04:05")))
		}
	case *postgres.Store:
		if keyring.IsAvailable() {
			report("OS keyring", checkOK, "")
		} else {
			report("OS keyring", checkWarn, "not available; use .pgpass for the database password")
		}
	}

	now := app.Service.Now()
	loc := app.Service.Location()
	if now.Year() < 2000 {
		report("Clock/timezone", checkFail, fmt.Sprintf("system clock looks wrong: %s", now.Format(time.RFC3339)))
	} else {
		report("Clock/timezone", checkOK, fmt.Sprintf("%s, next day starts %s", loc, gate.NextOpening(now, loc).Format("2006-01-02 15:04 MST")))
	}

	app.Println()
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	app.Println("All checks passed.")
	return nil
}

func outcomeOf(r validation.ValidationResult) checkOutcome {
	switch {
	case r.HasErrors():
		return checkFail
	case r.HasConflicts():
		return checkWarn
	default:
		return checkOK
	}
}

func reportDetail(r validation.ValidationResult) string {
	if !r.HasConflicts() {
		return ""
	}
	return r.FormatReport()
}

func checkStatus(ctx context.Context, app *cli.Context, v *validation.Validator, profiles []models.Profile) (checkOutcome, string) {
	var all validation.ValidationResult
	for _, p := range profiles {
		cached, err := app.Store.GetUserStatus(ctx, p.ID)
		if err != nil {
			return checkFail, err.Error()
		}
		r := v.ValidateStatus(p, cached)
		all.Conflicts = append(all.Conflicts, r.Conflicts...)
	}
	return outcomeOf(all), reportDetail(all)
}

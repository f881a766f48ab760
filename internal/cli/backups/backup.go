package backups

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/julianstephens/habitmaster/internal/backup"
	"github.com/julianstephens/habitmaster/internal/cli"
	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/metrics"
	"github.com/julianstephens/habitmaster/internal/storage/sqlite"
)

const displayLayout = "2006-01-02 15:04:05"

type BackupCmd struct {
	Create   BackupCreateCmd   `cmd:"" help:"Back up every profile, habit and statistics snapshot." default:"1"`
	List     BackupListCmd     `cmd:"" help:"List available backups."`
	Restore  BackupRestoreCmd  `cmd:"" help:"Replace all current data with a backup."`
	Rollback BackupRollbackCmd `cmd:"" help:"Replace the SQLite database file with a safety snapshot."`
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx context.Context, app *cli.Context) error {
	info, err := app.Store.BackupUserData(ctx)
	metrics.Backup("create", metrics.ResultOf(err, apperrors.IsExpected))
	if err != nil {
		return err
	}
	app.Printf("✓ Backup created: %s (%s)\n", info.ID, time.UnixMilli(info.CreatedAt).Format(displayLayout))
	return nil
}

type BackupListCmd struct {
	Files bool `help:"Also list file-level safety snapshots (SQLite only)."`
}

func (c *BackupListCmd) Run(ctx context.Context, app *cli.Context) error {
	list, err := app.Store.GetBackupList(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		app.Println("No backups found.")
	} else {
		app.Printf("Available backups (%d total):\n\n", len(list))
		for _, b := range list {
			app.Printf("  %s  %s\n", time.UnixMilli(b.CreatedAt).Format(displayLayout), b.ID)
		}
	}

	if !c.Files {
		return nil
	}
	store, ok := app.Store.(*sqlite.Store)
	if !ok {
		app.Println("\nSafety snapshots are only kept for SQLite databases.")
		return nil
	}
	mgr := backup.NewManager(store.GetConfigPath())
	snapshots, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	app.Printf("\nSafety snapshots (%d):\n\n", len(snapshots))
	for _, s := range snapshots {
		app.Printf("  %s  %-12s %s  (%.1f KB)\n", s.Timestamp.Format(displayLayout), s.Reason, filepath.Base(s.Path), float64(s.Size)/1024.0)
	}
	app.Printf("\nSnapshot directory: %s\n", mgr.Dir())
	return nil
}

type BackupRestoreCmd struct {
	ID  string `arg:"" help:"Backup id."`
	Yes bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *BackupRestoreCmd) Run(ctx context.Context, app *cli.Context) error {
	if !c.Yes {
		app.Println("⚠️  WARNING: This will replace all profiles and habits with the backup.")
		ok, err := app.Confirm("Continue?")
		if err != nil {
			return err
		}
		if !ok {
			app.Println("Restore cancelled.")
			return nil
		}
	}

	if snap, ok := app.SafetySnapshot(ctx, "pre-restore"); ok {
		app.Printf("Safety snapshot: %s\n", filepath.Base(snap.Path))
	}

	err := app.Store.RestoreFromBackup(ctx, c.ID)
	metrics.Backup("restore", metrics.ResultOf(err, apperrors.IsExpected))
	if err != nil {
		return err
	}
	app.Println("✓ Backup restored")
	return nil
}

type BackupRollbackCmd struct {
	Snapshot string `arg:"" help:"Path or file name of the snapshot."`
	Yes      bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *BackupRollbackCmd) Run(ctx context.Context, app *cli.Context) error {
	store, ok := app.Store.(*sqlite.Store)
	if !ok {
		return errors.New("rollback only supports SQLite storage; use 'backup restore' instead")
	}
	mgr := backup.NewManager(store.GetConfigPath())

	path, err := resolveSnapshot(mgr, c.Snapshot)
	if err != nil {
		return err
	}

	if !c.Yes {
		app.Println("⚠️  WARNING: This will replace your current database file with the snapshot.")
		app.Println("⚠️  IMPORTANT: Stop every other habitmaster process (including watch) first.")
		app.Printf("\nRestore from: %s\n", path)
		ok, err := app.Confirm("Continue?")
		if err != nil {
			return err
		}
		if !ok {
			app.Println("Rollback cancelled.")
			return nil
		}
	}

	if err := store.Close(); err != nil {
		app.Printf("Warning: failed to close database connection: %v\n", err)
	}
	err = mgr.Restore(ctx, path)
	metrics.Backup("rollback", metrics.ResultOf(err, nil))
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	app.Println("✓ Database file restored")
	return nil
}

// resolveSnapshot accepts an absolute path, a path relative to the working
// directory or a file name inside the snapshot directory.
func resolveSnapshot(mgr *backup.Manager, name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("snapshot not found: %s", name)
		}
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	candidate := filepath.Join(mgr.Dir(), name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("snapshot not found: tried current directory and %s", mgr.Dir())
}

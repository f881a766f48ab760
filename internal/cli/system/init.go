package system

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/habitmaster/internal/cli"
	"github.com/julianstephens/habitmaster/internal/storage"
	"github.com/julianstephens/habitmaster/internal/storage/sqlite"
)

type InitCmd struct {
	Force bool `help:"Delete the existing SQLite database before initialization (a safety snapshot is kept)."`
}

func (c *InitCmd) Run(ctx context.Context, app *cli.Context) error {
	if c.Force {
		store, ok := app.Store.(*sqlite.Store)
		if !ok {
			return errors.New("--force only supports SQLite storage; use 'reset' for PostgreSQL")
		}
		dbPath := store.GetConfigPath()
		if _, err := os.Stat(dbPath); err == nil {
			if snap, ok := app.SafetySnapshot(ctx, "pre-init"); ok {
				app.Printf("Safety snapshot: %s\n", snap.Path)
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
				if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("failed to delete existing database: %w", err)
				}
			}
			app.Printf("Deleted existing database at: %s\n", dbPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := app.Store.Init(); err != nil {
		return err
	}
	app.Printf("Initialized habitmaster storage at: %s\n", app.Store.GetConfigPath())
	return nil
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *cli.Context) error {
	migrator, ok := app.Store.(storage.Migrator)
	if !ok {
		return errors.New("this storage backend does not support migrations")
	}

	count, err := migrator.Migrate(func(msg string) {
		app.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		app.Println("No migrations to apply. Database is up to date.")
	} else {
		app.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}

type ResetCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation."`
}

func (c *ResetCmd) Run(ctx context.Context, app *cli.Context) error {
	if !c.Yes {
		app.Println("⚠️  WARNING: This deletes every profile, habit and statistics snapshot.")
		app.Println("   Stored backups are kept and can be restored with 'backup restore'.")
		ok, err := app.Confirm("Continue?")
		if err != nil {
			return err
		}
		if !ok {
			app.Println("Reset cancelled.")
			return nil
		}
	}

	if snap, ok := app.SafetySnapshot(ctx, "pre-reset"); ok {
		app.Printf("Safety snapshot: %s\n", snap.Path)
	}
	if err := app.Store.DeleteAllUserData(ctx); err != nil {
		return err
	}
	app.Println("✓ All profiles deleted")
	return nil
}

package backups

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/habitmaster/internal/backup"
	"github.com/julianstephens/habitmaster/internal/cli"
	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/password"
	"github.com/julianstephens/habitmaster/internal/service"
	"github.com/julianstephens/habitmaster/internal/storage/sqlite"
)

func TestMain(m *testing.M) {
	password.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

func setupTestBackupCLI(t *testing.T) (*cli.Context, *sqlite.Store, *bytes.Buffer) {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var out bytes.Buffer
	return &cli.Context{Store: store, Service: service.New(store), Out: &out}, store, &out
}

func TestBackupCreateCmd_NothingToBackUp(t *testing.T) {
	app, _, _ := setupTestBackupCLI(t)
	err := (&BackupCreateCmd{}).Run(context.Background(), app)
	if !errors.Is(err, apperrors.ErrNothingToBackup) {
		t.Errorf("backup of empty account error = %v, want ErrNothingToBackup", err)
	}
}

func TestBackupCreateListRestore(t *testing.T) {
	ctx := context.Background()
	app, store, out := setupTestBackupCLI(t)

	if _, err := store.CreateProfile(ctx, "Sam", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := (&BackupCreateCmd{}).Run(ctx, app); err != nil {
		t.Fatalf("backup create failed: %v", err)
	}
	list, err := store.GetBackupList(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("GetBackupList() = %v, %v; want one backup", list, err)
	}

	out.Reset()
	if err := (&BackupListCmd{Files: true}).Run(ctx, app); err != nil {
		t.Fatalf("backup list failed: %v", err)
	}
	if !strings.Contains(out.String(), list[0].ID) {
		t.Errorf("listing does not show backup id:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Safety snapshots (0)") {
		t.Errorf("listing does not show snapshot section:\n%s", out.String())
	}

	if _, err := store.CreateProfile(ctx, "Alex", "pw"); err != nil {
		t.Fatal(err)
	}

	app.In = strings.NewReader("no\n")
	if err := (&BackupRestoreCmd{ID: list[0].ID}).Run(ctx, app); err != nil {
		t.Fatal(err)
	}
	if profiles, _ := store.ListProfiles(ctx); len(profiles) != 2 {
		t.Fatalf("cancelled restore changed data: %d profiles", len(profiles))
	}

	if err := (&BackupRestoreCmd{ID: list[0].ID, Yes: true}).Run(ctx, app); err != nil {
		t.Fatalf("backup restore failed: %v", err)
	}
	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].Name != "Sam" {
		t.Errorf("after restore profiles = %+v, want only Sam", profiles)
	}

	snapshots, err := backup.NewManager(store.GetConfigPath()).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != 1 || snapshots[0].Reason != "pre-restore" {
		t.Errorf("expected one pre-restore safety snapshot, got %+v", snapshots)
	}
}

func TestBackupRestoreCmd_UnknownID(t *testing.T) {
	app, _, _ := setupTestBackupCLI(t)
	err := (&BackupRestoreCmd{ID: "missing", Yes: true}).Run(context.Background(), app)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("restore of unknown backup error = %v, want ErrNotFound", err)
	}
}

func TestBackupRollbackCmd(t *testing.T) {
	ctx := context.Background()
	app, store, out := setupTestBackupCLI(t)

	if _, err := store.CreateProfile(ctx, "Sam", "pw"); err != nil {
		t.Fatal(err)
	}
	snap, ok := app.SafetySnapshot(ctx, "manual")
	if !ok {
		t.Fatal("failed to take snapshot")
	}
	if _, err := store.CreateProfile(ctx, "Alex", "pw"); err != nil {
		t.Fatal(err)
	}

	if err := (&BackupRollbackCmd{Snapshot: filepath.Base(snap.Path), Yes: true}).Run(ctx, app); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if !strings.Contains(out.String(), "Database file restored") {
		t.Errorf("unexpected output: %q", out.String())
	}

	reopened := sqlite.NewStore(store.GetConfigPath())
	if err := reopened.Load(); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	profiles, err := reopened.ListProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].Name != "Sam" {
		t.Errorf("after rollback profiles = %+v, want only Sam", profiles)
	}
}

func TestBackupRollbackCmd_MissingSnapshot(t *testing.T) {
	app, _, _ := setupTestBackupCLI(t)
	err := (&BackupRollbackCmd{Snapshot: "habitmaster-19990101-000000-manual.db", Yes: true}).Run(context.Background(), app)
	if err == nil || !strings.Contains(err.Error(), "snapshot not found") {
		t.Errorf("rollback of missing snapshot error = %v", err)
	}
}

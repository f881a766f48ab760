// Package backup keeps file-level safety snapshots of the SQLite database.
// A snapshot is taken before every destructive operation (restore, reset) so
// that even a bug in the transactional path cannot lose an account.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/logger"
)

const timestampLayout = "20060102-150405"

// Snapshot describes one snapshot file.
type Snapshot struct {
	Path      string
	Reason    string
	Timestamp time.Time
	Size      int64
}

// Manager creates, lists and rotates snapshots next to the database file.
type Manager struct {
	dbPath    string
	backupDir string
	now       func() time.Time
}

// NewManager creates a snapshot manager for the database at dbPath.
func NewManager(dbPath string) *Manager {
	return &Manager{
		dbPath:    dbPath,
		backupDir: filepath.Join(filepath.Dir(dbPath), constants.BackupDirName),
		now:       time.Now,
	}
}

// Dir returns the snapshot directory.
func (m *Manager) Dir() string {
	return m.backupDir
}

// Create writes a snapshot tagged with reason and rotates old ones.
func (m *Manager) Create(ctx context.Context, reason string) (Snapshot, error) {
	snap, err := m.create(ctx, reason)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.rotate(); err != nil {
		logger.Warn("Failed to rotate old snapshots", "dir", m.backupDir, "error", err)
	}
	return snap, nil
}

func (m *Manager) create(ctx context.Context, reason string) (Snapshot, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return Snapshot{}, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := os.Stat(m.dbPath); errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("database does not exist: %s", m.dbPath)
	}

	reason = sanitizeReason(reason)
	ts := m.now()
	path := m.snapshotPath(ts, reason, 0)
	for counter := 1; fileExists(path); counter++ {
		if counter > 100 {
			return Snapshot{}, fmt.Errorf("failed to generate unique snapshot filename")
		}
		path = m.snapshotPath(ts, reason, counter)
	}

	if err := m.vacuumInto(ctx, path); err != nil {
		return Snapshot{}, fmt.Errorf("failed to snapshot database: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	logger.Info("Created database snapshot", "path", path, "reason", reason)
	return Snapshot{Path: path, Reason: reason, Timestamp: ts.Truncate(time.Second), Size: info.Size()}, nil
}

func (m *Manager) snapshotPath(ts time.Time, reason string, counter int) string {
	name := constants.BackupFilePrefix + ts.Format(timestampLayout) + "-" + reason
	if counter > 0 {
		name += fmt.Sprintf(".%d", counter)
	}
	return filepath.Join(m.backupDir, name+constants.BackupFileSuffix)
}

// vacuumInto copies the live database into dest, falling back to a plain
// file copy when VACUUM INTO is unavailable.
func (m *Manager) vacuumInto(ctx context.Context, dest string) error {
	src, err := sql.Open("sqlite", m.dbPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer src.Close()

	var count int
	if err := src.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&count); err != nil {
		return fmt.Errorf("source database appears to be corrupted: %w", err)
	}

	if _, err := src.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		logger.Debug("VACUUM INTO failed, copying file instead", "error", err)
		src.Close()
		return copyFile(m.dbPath, dest)
	}
	return nil
}

// List returns all snapshots, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	snapshots := []Snapshot{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, reason, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(m.backupDir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{Path: path, Reason: reason, Timestamp: ts, Size: info.Size()})
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].Timestamp.Equal(snapshots[j].Timestamp) {
			return snapshots[i].Path > snapshots[j].Path
		}
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// rotate keeps the newest constants.MaxBackups snapshots.
func (m *Manager) rotate() error {
	snapshots, err := m.List()
	if err != nil {
		return err
	}
	for i := constants.MaxBackups; i < len(snapshots); i++ {
		if err := os.Remove(snapshots[i].Path); err != nil {
			return fmt.Errorf("failed to remove old snapshot %s: %w", snapshots[i].Path, err)
		}
	}
	return nil
}

// Restore replaces the database file with the snapshot at path. The store
// must be closed first. The current file is snapshotted before it is replaced.
func (m *Manager) Restore(ctx context.Context, path string) error {
	if !fileExists(path) {
		return fmt.Errorf("snapshot does not exist: %s", path)
	}
	if err := verify(ctx, path); err != nil {
		return fmt.Errorf("snapshot is corrupted or invalid: %w", err)
	}

	if fileExists(m.dbPath) {
		if _, err := m.create(ctx, "pre-restore"); err != nil {
			return fmt.Errorf("failed to snapshot current database before restore: %w", err)
		}
	}

	tmp := m.dbPath + ".restore.tmp"
	if err := copyFile(path, tmp); err != nil {
		return fmt.Errorf("failed to copy snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.dbPath); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			logger.Warn("Failed to remove temporary file", "path", tmp, "error", removeErr)
		}
		return fmt.Errorf("failed to restore database: %w", err)
	}
	// Stale WAL files from the replaced database must not be replayed
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(m.dbPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove stale journal file", "path", m.dbPath+suffix, "error", err)
		}
	}
	return nil
}

func parseName(name string) (time.Time, string, bool) {
	if !strings.HasPrefix(name, constants.BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
		return time.Time{}, "", false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupFilePrefix), constants.BackupFileSuffix)
	if len(rest) < len(timestampLayout) {
		return time.Time{}, "", false
	}
	ts, err := time.ParseInLocation(timestampLayout, rest[:len(timestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, "", false
	}
	reason := strings.TrimPrefix(rest[len(timestampLayout):], "-")
	if i := strings.IndexByte(reason, '.'); i >= 0 {
		reason = reason[:i]
	}
	return ts, reason, true
}

func sanitizeReason(reason string) string {
	reason = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(reason))
	if reason == "" {
		return "manual"
	}
	return reason
}

func verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var count int
	return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&count)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Sync()
}

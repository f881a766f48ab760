package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/storage"
)

func snapshotAccount(ctx context.Context, q querier) ([]models.ProfileSnapshot, error) {
	profiles, err := listProfiles(ctx, q)
	if err != nil {
		return nil, err
	}
	snapshots := make([]models.ProfileSnapshot, 0, len(profiles))
	for _, p := range profiles {
		st, err := getStatus(ctx, q, p.ID)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, models.ProfileSnapshot{Profile: p, Status: st})
	}
	return snapshots, nil
}

func deleteAccount(ctx context.Context, q querier) error {
	for _, stmt := range []string{`DELETE FROM user_status`, `DELETE FROM habits`, `DELETE FROM profiles`} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetBackupList(ctx context.Context) ([]models.BackupInfo, error) {
	db, err := s.conn()
	if err != nil {
		return nil, storage.Fail("list backups", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT id, created_at FROM backups ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, storage.Fail("list backups", err)
	}
	defer rows.Close()

	backups := []models.BackupInfo{}
	for rows.Next() {
		var b models.BackupInfo
		if err := rows.Scan(&b.ID, &b.CreatedAt); err != nil {
			return nil, storage.Fail("list backups", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fail("list backups", err)
	}
	return backups, nil
}

func (s *Store) BackupUserData(ctx context.Context) (models.BackupInfo, error) {
	var info models.BackupInfo
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		// A repeatable snapshot of every table, without blocking writers
		if _, err := tx.ExecContext(ctx, `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ`); err != nil {
			return nil, err
		}
		snapshots, err := snapshotAccount(ctx, tx)
		if err != nil {
			return nil, err
		}
		var payload []byte
		info, payload, err = storage.NewBackup(snapshots, s.opts.Now())
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO backups (id, created_at, payload) VALUES ($1, $2, $3)`,
			info.ID, info.CreatedAt, string(payload))
		return nil, err
	})
	if errors.Is(err, apperrors.ErrNothingToBackup) {
		logger.Info("Skipping backup, account has no profiles")
		return models.BackupInfo{}, err
	}
	if err != nil {
		return models.BackupInfo{}, storage.Fail("backup user data", err)
	}
	logger.Info("Created backup", "backup", info.ID)
	return info, nil
}

// RestoreFromBackup deletes the current account and writes the backup in a
// single transaction; a failure leaves the current data in place.
func (s *Store) RestoreFromBackup(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return storage.Fail("restore backup", err)
	}

	var raw string
	err = db.QueryRowContext(ctx, `SELECT payload FROM backups WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("backup %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return storage.Fail("restore backup", err)
	}
	payload, err := storage.DecodeBackup([]byte(raw))
	if err != nil {
		return storage.Fail("restore backup", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		if err := deleteAccount(ctx, tx); err != nil {
			return nil, err
		}
		now := s.opts.Now()
		for _, snap := range payload.Profiles {
			if err := insertProfile(ctx, tx, snap.Profile); err != nil {
				return nil, fmt.Errorf("profile %s: %w", snap.Profile.ID, err)
			}
			for i, h := range snap.Profile.Habits {
				if err := insertHabit(ctx, tx, snap.Profile.ID, i, h); err != nil {
					return nil, fmt.Errorf("habit %s: %w", h.ID, err)
				}
			}
			status := storage.DefaultStatus()
			if snap.Status != nil {
				status = *snap.Status
			}
			if err := upsertStatus(ctx, tx, snap.Profile.ID, status, now); err != nil {
				return nil, err
			}
		}
		return []storage.Change{{Kind: storage.ChangeAll}}, nil
	})
	if err != nil {
		logger.Error("Restore rolled back", "backup", id, "error", err)
		return storage.RestoreFailed(err)
	}
	logger.Info("Restored backup", "backup", id, "profiles", len(payload.Profiles))
	return nil
}

func (s *Store) DeleteAllUserData(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		if err := deleteAccount(ctx, tx); err != nil {
			return nil, err
		}
		return []storage.Change{{Kind: storage.ChangeAll}}, nil
	})
	if err != nil {
		return storage.Fail("delete all user data", err)
	}
	logger.Warn("Deleted all user data")
	return nil
}

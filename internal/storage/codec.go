package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/password"
	"github.com/julianstephens/habitmaster/internal/stats"
)

// Fail wraps a repository error as a sync failure for op.
func Fail(op string, err error) error {
	return errors.Sync(op, err)
}

// RestoreFailed marks err as a rolled back restore.
func RestoreFailed(err error) error {
	return &errors.SyncError{Op: "restore backup", Err: fmt.Errorf("%w: %w", errors.ErrRestoreInconsistency, err)}
}

// NewProfile validates the inputs and builds a profile ready to insert.
// existing is the current number of profiles on the account.
func NewProfile(name, passwordPlain string, existing int, now time.Time) (models.Profile, error) {
	name, err := models.ValidateProfileName(name)
	if err != nil {
		return models.Profile{}, err
	}
	if existing >= constants.MaxProfiles {
		return models.Profile{}, errors.Invalid("profile", fmt.Sprintf("an account can hold at most %d profiles", constants.MaxProfiles))
	}
	if passwordPlain == "" {
		return models.Profile{}, errors.Invalid("password", "must not be empty")
	}
	hash, err := password.Hash(passwordPlain)
	if err != nil {
		return models.Profile{}, err
	}
	return models.Profile{
		ID:              uuid.New().String(),
		Name:            name,
		PasswordHash:    hash,
		Habits:          []models.Habit{},
		CreatedAtMillis: now.UnixMilli(),
	}, nil
}

// DefaultStatus is the statistics snapshot provisioned with a new profile.
func DefaultStatus() models.UserStatus {
	return models.UserStatus{}
}

// RecomputeStatus derives a fresh cache entry from habits, using previous
// for the trend fields.
func RecomputeStatus(habits []models.Habit, previous *models.UserStatus, now time.Time, loc *time.Location) models.UserStatus {
	return stats.Compute(habits, previous, now, loc).Status()
}

// EncodeLedger serialises a ledger for a TEXT column.
func EncodeLedger(l models.Ledger) (string, error) {
	if l == nil {
		l = models.Ledger{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("failed to encode completion ledger: %w", err)
	}
	return string(b), nil
}

// DecodeLedger parses a ledger column. Empty text is an empty ledger.
func DecodeLedger(raw string) (models.Ledger, error) {
	if raw == "" {
		return models.Ledger{}, nil
	}
	var l models.Ledger
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("failed to decode completion ledger: %w", err)
	}
	if l == nil {
		l = models.Ledger{}
	}
	return l, nil
}

// EncodeStatus serialises a cached statistics snapshot.
func EncodeStatus(st models.UserStatus) (string, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode user status: %w", err)
	}
	return string(b), nil
}

// DecodeStatus parses a cached statistics snapshot.
func DecodeStatus(raw string) (models.UserStatus, error) {
	var st models.UserStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return models.UserStatus{}, fmt.Errorf("failed to decode user status: %w", err)
	}
	return st, nil
}

// NewBackup assembles a payload from snapshots and returns its metadata
// and encoded form. An empty account cannot be backed up.
func NewBackup(snapshots []models.ProfileSnapshot, now time.Time) (models.BackupInfo, []byte, error) {
	if len(snapshots) == 0 {
		return models.BackupInfo{}, nil, errors.ErrNothingToBackup
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Profile.CreatedAtMillis < snapshots[j].Profile.CreatedAtMillis
	})
	payload := models.BackupPayload{
		Version:  models.BackupPayloadVersion,
		Profiles: snapshots,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return models.BackupInfo{}, nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	info := models.BackupInfo{
		ID:        uuid.New().String(),
		CreatedAt: now.UnixMilli(),
	}
	return info, b, nil
}

// DecodeBackup parses a stored payload.
func DecodeBackup(raw []byte) (models.BackupPayload, error) {
	var payload models.BackupPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.BackupPayload{}, fmt.Errorf("failed to decode backup: %w", err)
	}
	if payload.Version > models.BackupPayloadVersion {
		return models.BackupPayload{}, fmt.Errorf("backup version %d is newer than supported version %d", payload.Version, models.BackupPayloadVersion)
	}
	for i := range payload.Profiles {
		if payload.Profiles[i].Profile.Habits == nil {
			payload.Profiles[i].Profile.Habits = []models.Habit{}
		}
	}
	return payload, nil
}

package storage

import (
	"context"
	"io"

	"github.com/julianstephens/habitmaster/internal/models"
)

// HabitMutation changes a habit inside a MutateHabit transaction. Returning
// an error aborts the transaction and leaves the stored habit untouched.
type HabitMutation func(*models.Habit) error

// Provider is the repository contract the core needs from a persistence
// layer. Reads are live subscriptions; every habit write is a transactional
// read-modify-write keyed by habit id.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Profiles
	ObserveProfiles(ctx context.Context) *Subscription[[]models.Profile]
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	GetProfile(ctx context.Context, id string) (models.Profile, error)
	// CreateProfile hashes the password before persisting and provisions a
	// default statistics snapshot.
	CreateProfile(ctx context.Context, name, passwordPlain string) (models.Profile, error)
	UpdateProfileName(ctx context.Context, id, name string) error
	// UpdatePassword returns false without writing when currentPlain does
	// not match the stored hash.
	UpdatePassword(ctx context.Context, id, currentPlain, newPlain string) (bool, error)
	UploadProfilePhoto(ctx context.Context, id string, photo io.Reader) (string, error)
	UpdateProfilePhotoURL(ctx context.Context, id, url string) error

	// Habits
	ObserveHabits(ctx context.Context, profileID string) *Subscription[[]models.Habit]
	ListHabits(ctx context.Context, profileID string) ([]models.Habit, error)
	AddHabitToProfile(ctx context.Context, profileID string, habit models.Habit) error
	// UpdateHabit replaces the stored habit with the same id inside a transaction.
	UpdateHabit(ctx context.Context, profileID string, habit models.Habit) error
	// MutateHabit reads the latest stored habit, applies fn and writes the
	// result back atomically. It returns the habit as written.
	MutateHabit(ctx context.Context, profileID, habitID string, fn HabitMutation) (models.Habit, error)
	DeleteHabit(ctx context.Context, profileID, habitID string) error

	// Statistics cache
	ObserveUserStatus(ctx context.Context, profileID string) *Subscription[*models.UserStatus]
	GetUserStatus(ctx context.Context, profileID string) (*models.UserStatus, error)
	SaveUserStatus(ctx context.Context, profileID string, status models.UserStatus) error

	// Backups
	// GetBackupList returns stored backups, newest first.
	GetBackupList(ctx context.Context) ([]models.BackupInfo, error)
	BackupUserData(ctx context.Context) (models.BackupInfo, error)
	// RestoreFromBackup replaces all current data with the backup payload.
	// Deletion and rewrite happen in one transaction.
	RestoreFromBackup(ctx context.Context, id string) error
	DeleteAllUserData(ctx context.Context) error

	// Utils
	GetConfigPath() string
}

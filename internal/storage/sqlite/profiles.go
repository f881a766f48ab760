package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/julianstephens/habitmaster/internal/blobstore"
	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/password"
	"github.com/julianstephens/habitmaster/internal/storage"
)

const profileColumns = `id, name, password_hash, photo_url, created_at`

func scanProfile(sc scanner) (models.Profile, error) {
	var p models.Profile
	var photo sql.NullString
	if err := sc.Scan(&p.ID, &p.Name, &p.PasswordHash, &photo, &p.CreatedAtMillis); err != nil {
		return models.Profile{}, err
	}
	if photo.Valid {
		p.PhotoURL = &photo.String
	}
	p.Habits = []models.Habit{}
	return p, nil
}

func listProfiles(ctx context.Context, q querier) ([]models.Profile, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []models.Profile{}
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(profiles)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	habitRows, err := q.QueryContext(ctx, `SELECT profile_id, `+habitColumns+` FROM habits ORDER BY profile_id, position`)
	if err != nil {
		return nil, err
	}
	defer habitRows.Close()

	for habitRows.Next() {
		var profileID string
		h, err := scanHabit(habitRows, &profileID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[profileID]; ok {
			profiles[i].Habits = append(profiles[i].Habits, h)
		}
	}
	return profiles, habitRows.Err()
}

func getProfile(ctx context.Context, q querier, id string) (models.Profile, error) {
	p, err := scanProfile(q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, fmt.Errorf("profile %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.Profile{}, err
	}
	p.Habits, err = listHabits(ctx, q, id)
	if err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

func profileExists(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile %s: %w", id, apperrors.ErrNotFound)
	}
	return err
}

func insertProfile(ctx context.Context, q querier, p models.Profile) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO profiles (id, name, password_hash, photo_url, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.PasswordHash, p.PhotoURL, p.CreatedAtMillis)
	return err
}

func (s *Store) ObserveProfiles(ctx context.Context) *storage.Subscription[[]models.Profile] {
	return observe(ctx, s, "profiles", storage.Change.AffectsProfiles, s.ListProfiles)
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	db, err := s.conn()
	if err != nil {
		return nil, storage.Fail("list profiles", err)
	}
	profiles, err := listProfiles(ctx, db)
	if err != nil {
		return nil, storage.Fail("list profiles", err)
	}
	return profiles, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	db, err := s.conn()
	if err != nil {
		return models.Profile{}, storage.Fail("get profile", err)
	}
	p, err := getProfile(ctx, db, id)
	if err != nil {
		return models.Profile{}, storage.Fail("get profile", err)
	}
	return p, nil
}

func (s *Store) CreateProfile(ctx context.Context, name, passwordPlain string) (models.Profile, error) {
	var created models.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
			return err
		}
		p, err := storage.NewProfile(name, passwordPlain, count, s.opts.Now())
		if err != nil {
			return err
		}
		if err := insertProfile(ctx, tx, p); err != nil {
			return err
		}
		if err := upsertStatus(ctx, tx, p.ID, storage.DefaultStatus(), s.opts.Now()); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return models.Profile{}, storage.Fail("create profile", err)
	}

	logger.Info("Created profile", "profile", created.ID)
	s.hub.Publish(
		storage.Change{Kind: storage.ChangeProfile, ProfileID: created.ID},
		storage.Change{Kind: storage.ChangeStatus, ProfileID: created.ID},
	)
	return created, nil
}

func (s *Store) updateProfileColumn(ctx context.Context, op, id, column string, value any) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE profiles SET `+column+` = ? WHERE id = ?`, value, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("profile %s: %w", id, apperrors.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return storage.Fail(op, err)
	}
	s.hub.Publish(storage.Change{Kind: storage.ChangeProfile, ProfileID: id})
	return nil
}

func (s *Store) UpdateProfileName(ctx context.Context, id, name string) error {
	name, err := models.ValidateProfileName(name)
	if err != nil {
		return err
	}
	return s.updateProfileColumn(ctx, "update profile name", id, "name", name)
}

func (s *Store) UpdatePassword(ctx context.Context, id, currentPlain, newPlain string) (bool, error) {
	if newPlain == "" {
		return false, apperrors.Invalid("password", "must not be empty")
	}

	matched := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var hash string
		err := tx.QueryRowContext(ctx, `SELECT password_hash FROM profiles WHERE id = ?`, id).Scan(&hash)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("profile %s: %w", id, apperrors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if !password.Verify(hash, currentPlain) {
			return nil
		}
		matched = true

		newHash, err := password.Hash(newPlain)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE profiles SET password_hash = ? WHERE id = ?`, newHash, id)
		return err
	})
	if err != nil {
		return false, storage.Fail("update password", err)
	}
	if !matched {
		logger.Debug("Password change refused", "profile", id)
		return false, nil
	}
	s.hub.Publish(storage.Change{Kind: storage.ChangeProfile, ProfileID: id})
	return true, nil
}

func (s *Store) UploadProfilePhoto(ctx context.Context, id string, photo io.Reader) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", storage.Fail("upload profile photo", err)
	}
	if err := profileExists(ctx, db, id); err != nil {
		return "", storage.Fail("upload profile photo", err)
	}
	url, err := s.opts.Blobs.Put(ctx, blobstore.AvatarKey(id), photo)
	if err != nil {
		return "", storage.Fail("upload profile photo", err)
	}
	return url, nil
}

func (s *Store) UpdateProfilePhotoURL(ctx context.Context, id, url string) error {
	var value any
	if url != "" {
		value = url
	}
	return s.updateProfileColumn(ctx, "update profile photo", id, "photo_url", value)
}

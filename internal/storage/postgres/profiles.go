package postgres

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
	p, err := scanProfile(q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
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
	err := q.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile %s: %w", id, apperrors.ErrNotFound)
	}
	return err
}

func insertProfile(ctx context.Context, q querier, p models.Profile) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO profiles (id, name, password_hash, photo_url, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
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
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		// Serialize creators so the profile limit holds across devices
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('habitmaster.profiles'))`); err != nil {
			return nil, err
		}
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
			return nil, err
		}
		p, err := storage.NewProfile(name, passwordPlain, count, s.opts.Now())
		if err != nil {
			return nil, err
		}
		if err := insertProfile(ctx, tx, p); err != nil {
			return nil, err
		}
		if err := upsertStatus(ctx, tx, p.ID, storage.DefaultStatus(), s.opts.Now()); err != nil {
			return nil, err
		}
		created = p
		return []storage.Change{
			{Kind: storage.ChangeProfile, ProfileID: p.ID},
			{Kind: storage.ChangeStatus, ProfileID: p.ID},
		}, nil
	})
	if err != nil {
		return models.Profile{}, storage.Fail("create profile", err)
	}
	logger.Info("Created profile", "profile", created.ID)
	return created, nil
}

func (s *Store) updateProfileColumn(ctx context.Context, op, id, column string, value any) error {
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		res, err := tx.ExecContext(ctx, `UPDATE profiles SET `+column+` = $1 WHERE id = $2`, value, id)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("profile %s: %w", id, apperrors.ErrNotFound)
		}
		return []storage.Change{{Kind: storage.ChangeProfile, ProfileID: id}}, nil
	})
	return storage.Fail(op, err)
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
	err := s.withTx(ctx, func(tx *sql.Tx) ([]storage.Change, error) {
		var hash string
		err := tx.QueryRowContext(ctx, `SELECT password_hash FROM profiles WHERE id = $1 FOR UPDATE`, id).Scan(&hash)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, apperrors.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if !password.Verify(hash, currentPlain) {
			return nil, nil
		}
		matched = true

		newHash, err := password.Hash(newPlain)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE profiles SET password_hash = $1 WHERE id = $2`, newHash, id); err != nil {
			return nil, err
		}
		return []storage.Change{{Kind: storage.ChangeProfile, ProfileID: id}}, nil
	})
	if err != nil {
		return false, storage.Fail("update password", err)
	}
	if !matched {
		logger.Debug("Password change refused", "profile", id)
	}
	return matched, nil
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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/storage"
)

// getStatus returns the cached snapshot, nil when none has been stored.
func getStatus(ctx context.Context, q querier, profileID string) (*models.UserStatus, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM user_status WHERE profile_id = ? AND doc_id = ?`, profileID, constants.StatusDocID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, err := storage.DecodeStatus(raw)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func upsertStatus(ctx context.Context, q querier, profileID string, st models.UserStatus, now time.Time) error {
	raw, err := storage.EncodeStatus(st)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO user_status (profile_id, doc_id, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (profile_id, doc_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		profileID, constants.StatusDocID, raw, now.UnixMilli())
	return err
}

func (s *Store) ObserveUserStatus(ctx context.Context, profileID string) *storage.Subscription[*models.UserStatus] {
	filter := func(c storage.Change) bool { return c.AffectsStatus(profileID) }
	return observe(ctx, s, "user status", filter, func(ctx context.Context) (*models.UserStatus, error) {
		return s.GetUserStatus(ctx, profileID)
	})
}

func (s *Store) GetUserStatus(ctx context.Context, profileID string) (*models.UserStatus, error) {
	db, err := s.conn()
	if err != nil {
		return nil, storage.Fail("get user status", err)
	}
	if err := profileExists(ctx, db, profileID); err != nil {
		return nil, storage.Fail("get user status", err)
	}
	st, err := getStatus(ctx, db, profileID)
	if err != nil {
		return nil, storage.Fail("get user status", err)
	}
	return st, nil
}

func (s *Store) SaveUserStatus(ctx context.Context, profileID string, status models.UserStatus) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := profileExists(ctx, tx, profileID); err != nil {
			return err
		}
		return upsertStatus(ctx, tx, profileID, status, s.opts.Now())
	})
	if err != nil {
		return storage.Fail("save user status", err)
	}
	s.hub.Publish(storage.Change{Kind: storage.ChangeStatus, ProfileID: profileID})
	return nil
}

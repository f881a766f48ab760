package profiles

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/habitmaster/internal/blobstore"
	"github.com/julianstephens/habitmaster/internal/cli"
	apperrors "github.com/julianstephens/habitmaster/internal/errors"
	"github.com/julianstephens/habitmaster/internal/password"
	"github.com/julianstephens/habitmaster/internal/service"
	"github.com/julianstephens/habitmaster/internal/storage"
	"github.com/julianstephens/habitmaster/internal/storage/sqlite"
)

func TestMain(m *testing.M) {
	password.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

func setupTestProfileCLI(t *testing.T) (*cli.Context, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	var tick atomic.Int64
	clock := func() time.Time {
		return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC).Add(time.Duration(tick.Add(1)) * time.Second)
	}
	store := sqlite.NewStore(filepath.Join(dir, "test.db"),
		storage.WithClock(clock),
		storage.WithBlobStore(blobstore.NewFS(filepath.Join(dir, "blobs"))))
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })

	var out bytes.Buffer
	return &cli.Context{Store: store, Service: service.New(store), Out: &out}, &out, dir
}

func TestProfileCreateAndList(t *testing.T) {
	ctx := context.Background()
	app, out, _ := setupTestProfileCLI(t)

	app.In = strings.NewReader("typed-secret\n")
	require.NoError(t, (&ProfileCreateCmd{Name: "Sam"}).Run(ctx, app))
	require.NoError(t, (&ProfileCreateCmd{Name: "Alex", Password: "flag-secret"}).Run(ctx, app))

	out.Reset()
	require.NoError(t, (&ProfileListCmd{}).Run(ctx, app))
	listing := out.String()
	assert.Contains(t, listing, "Profiles (2 of 4)")
	assert.Less(t, strings.Index(listing, "Sam"), strings.Index(listing, "Alex"), "profiles are listed in creation order")

	profiles, err := app.Store.ListProfiles(ctx)
	require.NoError(t, err)
	assert.True(t, password.Verify(profiles[0].PasswordHash, "typed-secret"))
	assert.True(t, password.Verify(profiles[1].PasswordHash, "flag-secret"))
}

func TestProfileCreate_BlankPassword(t *testing.T) {
	app, _, _ := setupTestProfileCLI(t)
	app.In = strings.NewReader("\n")
	err := (&ProfileCreateCmd{Name: "Sam"}).Run(context.Background(), app)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestProfileRenameAndPasswd(t *testing.T) {
	ctx := context.Background()
	app, _, _ := setupTestProfileCLI(t)
	require.NoError(t, (&ProfileCreateCmd{Name: "Sam", Password: "old"}).Run(ctx, app))

	require.NoError(t, (&ProfileRenameCmd{Name: "Samantha"}).Run(ctx, app))
	p, err := app.SelectProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Samantha", p.Name)

	err = (&ProfilePasswdCmd{Current: "wrong", New: "new"}).Run(ctx, app)
	assert.True(t, errors.Is(err, apperrors.ErrAuthenticationMismatch))

	app.In = strings.NewReader("old\nnew\n")
	require.NoError(t, (&ProfilePasswdCmd{}).Run(ctx, app))
	p, err = app.SelectProfile(ctx)
	require.NoError(t, err)
	assert.True(t, password.Verify(p.PasswordHash, "new"))
}

func TestProfilePhotoCmd(t *testing.T) {
	ctx := context.Background()
	app, out, dir := setupTestProfileCLI(t)
	require.NoError(t, (&ProfileCreateCmd{Name: "Sam", Password: "pw"}).Run(ctx, app))

	photo := filepath.Join(dir, "me.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg bytes"), 0o600))

	require.NoError(t, (&ProfilePhotoCmd{File: photo}).Run(ctx, app))
	p, err := app.SelectProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.PhotoURL)
	assert.Contains(t, *p.PhotoURL, blobstore.AvatarKey(p.ID))
	assert.Contains(t, out.String(), "Photo uploaded")

	stored, err := os.ReadFile(filepath.Join(dir, "blobs", blobstore.AvatarKey(p.ID)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(stored))

	require.NoError(t, (&ProfilePhotoCmd{Clear: true}).Run(ctx, app))
	p, err = app.SelectProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, p.PhotoURL)

	assert.Error(t, (&ProfilePhotoCmd{}).Run(ctx, app))
}

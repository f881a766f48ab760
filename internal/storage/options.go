package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianstephens/habitmaster/internal/blobstore"
	"github.com/julianstephens/habitmaster/internal/constants"
)

// ErrNotLoaded is returned by stores used before Init or Load.
var ErrNotLoaded = errors.New("storage not loaded")

// Options holds the collaborators shared by every Provider implementation.
type Options struct {
	Blobs    blobstore.Store
	Now      func() time.Time
	Location *time.Location
}

// Option configures a store.
type Option func(*Options)

// WithBlobStore sets where profile photos are uploaded.
func WithBlobStore(b blobstore.Store) Option {
	return func(o *Options) { o.Blobs = b }
}

// WithClock overrides the time source used for timestamps and statistics.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// WithLocation sets the calendar used when statistics are recomputed.
func WithLocation(loc *time.Location) Option {
	return func(o *Options) { o.Location = loc }
}

// BuildOptions applies opts over the defaults. defaultBlobs is used when no
// blob store was given.
func BuildOptions(defaultBlobs func() blobstore.Store, opts ...Option) Options {
	o := Options{
		Now:      time.Now,
		Location: time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Blobs == nil && defaultBlobs != nil {
		o.Blobs = defaultBlobs()
	}
	return o
}

// Migrator is implemented by stores with an explicit schema migration step.
type Migrator interface {
	Migrate(progress func(string)) (int, error)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// DefaultDataDir is the directory holding the default database, its
// snapshots and the local blob store.
func DefaultDataDir() string {
	return filepath.Dir(ExpandHome(constants.DefaultConfigPath))
}

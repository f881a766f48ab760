package sqlite

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/storage"
)

const (
	// settleDelay is how long the database files must stay quiet before a
	// burst of writes is reported.
	settleDelay = 100 * time.Millisecond
	// maxSettle bounds how long a steady stream of writes can hold back a report.
	maxSettle = time.Second
)

// fileFeed watches the database files so subscriptions see commits made by
// other connections, including other processes.
type fileFeed struct {
	watcher *fsnotify.Watcher
	stop    context.CancelFunc
	done    chan struct{}
}

// databaseFiles returns the base names of every file a commit can touch.
func (s *Store) databaseFiles() map[string]bool {
	base := filepath.Base(s.path)
	return map[string]bool{
		base:              true,
		base + "-wal":     true,
		base + "-journal": true,
	}
}

// retainFeed starts the file watcher for the first live subscription.
// Failures are logged; subscriptions then only see writes made through this Store.
func (s *Store) retainFeed() {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	s.feedRefs++
	if s.feed != nil {
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("Failed to watch database for changes", "path", s.path, "error", err)
		return
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		logger.Warn("Failed to watch database for changes", "path", s.path, "error", err)
		_ = w.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &fileFeed{watcher: w, stop: cancel, done: make(chan struct{})}
	s.feed = f
	go s.forwardFileEvents(ctx, f)
}

// releaseFeed stops the watcher once the last subscription has ended.
func (s *Store) releaseFeed() {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.feedRefs > 0 {
		s.feedRefs--
	}
	if s.feedRefs == 0 {
		s.stopFeedLocked()
	}
}

func (s *Store) stopFeed() {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	s.stopFeedLocked()
}

func (s *Store) stopFeedLocked() {
	if s.feed == nil {
		return
	}
	s.feed.stop()
	if err := s.feed.watcher.Close(); err != nil {
		logger.Debug("Failed to close database watcher", "error", err)
	}
	<-s.feed.done
	s.feed = nil
}

// forwardFileEvents publishes one ChangeAll per settled burst of writes.
// Writes made through this Store show up here too; they reload to the value
// already emitted and are dropped by the subscription.
func (s *Store) forwardFileEvents(ctx context.Context, f *fileFeed) {
	defer close(f.done)
	files := s.databaseFiles()
	tick := time.NewTicker(settleDelay / 2)
	defer tick.Stop()

	var first, last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !files[filepath.Base(ev.Name)] || ev.Op == fsnotify.Chmod {
				continue
			}
			last = time.Now()
			if first.IsZero() {
				first = last
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Database watcher error", "path", s.path, "error", err)
		case now := <-tick.C:
			if first.IsZero() {
				continue
			}
			if now.Sub(last) >= settleDelay || now.Sub(first) >= maxSettle {
				first, last = time.Time{}, time.Time{}
				s.hub.Publish(storage.Change{Kind: storage.ChangeAll})
			}
		}
	}
}

// observe opens a subscription fed by this Store's own writes and by the
// file watcher.
func observe[T any](ctx context.Context, s *Store, name string, filter func(storage.Change) bool, load func(context.Context) (T, error)) *storage.Subscription[T] {
	if s.db == nil {
		return storage.Failed[T](name, storage.ErrNotLoaded)
	}
	s.retainFeed()
	changes, release := s.hub.Subscribe(filter)
	return storage.Observe(ctx, name, changes, func() {
		release()
		s.releaseFeed()
	}, load, storage.ObserveOptions{})
}

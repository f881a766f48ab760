package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pq "github.com/lib/pq"
	"golang.org/x/time/rate"

	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/storage"
)

func notify(ctx context.Context, q querier, c storage.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	if _, err := q.ExecContext(ctx, `SELECT pg_notify($1, $2)`, constants.ChangeChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify change: %w", err)
	}
	return nil
}

// decodeNotification turns a NOTIFY payload into a change. A nil
// notification means the listener reconnected and may have missed events.
func decodeNotification(n *pq.Notification) storage.Change {
	if n == nil {
		return storage.Change{Kind: storage.ChangeAll}
	}
	var c storage.Change
	if err := json.Unmarshal([]byte(n.Extra), &c); err != nil || c.Kind == "" {
		logger.Warn("Ignoring malformed change notification", "payload", n.Extra, "error", err)
		return storage.Change{Kind: storage.ChangeAll}
	}
	return c
}

// ensureListener starts the LISTEN connection on first use. Failures are
// logged; subscriptions then only see writes made by this process.
func (s *Store) ensureListener() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.listener != nil {
		return
	}

	l := pq.NewListener(s.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Change listener event", "event", ev, "error", err)
		}
	})
	if err := l.Listen(constants.ChangeChannel); err != nil {
		logger.Warn("Failed to listen for changes", "channel", constants.ChangeChannel, "error", err)
		_ = l.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = l
	s.stopListen = cancel
	s.listenDone = make(chan struct{})
	go s.forwardNotifications(ctx, l, s.listenDone)
}

func (s *Store) forwardNotifications(ctx context.Context, l *pq.Listener, done chan<- struct{}) {
	defer close(done)
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			s.hub.Publish(decodeNotification(n))
		case <-ping.C:
			if err := l.Ping(); err != nil {
				logger.Debug("Change listener ping failed", "error", err)
			}
		}
	}
}

func (s *Store) stopListener() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.listener == nil {
		return
	}
	s.stopListen()
	if err := s.listener.Close(); err != nil {
		logger.Debug("Failed to close change listener", "error", err)
	}
	<-s.listenDone
	s.listener = nil
}

func observe[T any](ctx context.Context, s *Store, name string, filter func(storage.Change) bool, load func(context.Context) (T, error)) *storage.Subscription[T] {
	if s.db == nil {
		return storage.Failed[T](name, storage.ErrNotLoaded)
	}
	s.ensureListener()
	changes, release := s.hub.Subscribe(filter)
	return storage.Observe(ctx, name, changes, release, load, storage.ObserveOptions{
		Limiter: rate.NewLimiter(rate.Every(s.RefreshInterval), 1),
	})
}

package storage

import (
	"context"
	"reflect"
	"sync"

	"golang.org/x/time/rate"

	"github.com/julianstephens/habitmaster/internal/logger"
)

// Subscription pushes the latest value of a query every time the underlying
// data changes, until it is closed or its context is cancelled. The first
// value is the current state.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Updates returns the channel of values. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Done is closed once the subscription has stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that terminated the subscription, or nil if it was
// closed or cancelled.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// ObserveOptions tunes how a subscription reacts to change signals.
type ObserveOptions struct {
	// Limiter paces reloads when changes arrive in bursts. The value emitted
	// after a burst is always read after the last change.
	Limiter *rate.Limiter
}

// Observe starts a subscription that calls load once immediately and again
// after every signal on changes. A reload that returns the value emitted last
// is dropped, so signals that did not touch the observed rows stay silent.
// release is called when the subscription ends. A failing load terminates
// the stream with that error.
func Observe[T any](ctx context.Context, name string, changes <-chan struct{}, release func(), load func(context.Context) (T, error), opts ObserveOptions) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		updates: make(chan T),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.updates)
		if release != nil {
			defer release()
		}

		var (
			last T
			sent bool
		)
		emit := func() bool {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("Subscription terminated", "subscription", name, "error", err)
					s.fail(Fail("observe "+name, err))
				}
				return false
			}
			if sent && reflect.DeepEqual(last, v) {
				return true
			}
			select {
			case s.updates <- v:
				last, sent = v, true
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if opts.Limiter != nil {
					if err := opts.Limiter.Wait(ctx); err != nil {
						return
					}
				}
				if !emit() {
					return
				}
			}
		}
	}()

	return s
}

// Failed returns a subscription that has already terminated with err.
func Failed[T any](name string, err error) *Subscription[T] {
	s := &Subscription[T]{
		updates: make(chan T),
		cancel:  func() {},
		done:    make(chan struct{}),
	}
	s.err = Fail("observe "+name, err)
	close(s.updates)
	close(s.done)
	return s
}

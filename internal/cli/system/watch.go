package system

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/habitmaster/internal/cli"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/metrics"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/stats"
	"github.com/julianstephens/habitmaster/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// WatchCmd follows the selected profile's habits and statistics until
// interrupted, printing every change, including changes made by other
// processes sharing the database.
type WatchCmd struct {
	MetricsAddr string `help:"Serve Prometheus metrics on this address (e.g. :9464)." env:"HABITMASTER_METRICS_ADDR"`
}

func (c *WatchCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		app.Printf(format, args...)
	}

	g.Go(func() error {
		return follow(ctx, app.Store.ObserveProfiles(ctx), "profiles", func(profiles []models.Profile) {
			for _, pr := range profiles {
				if pr.ID == p.ID {
					printf("[profile] %s\n", pr.Name)
					return
				}
			}
			printf("[profile] %s was removed\n", p.Name)
		})
	})
	g.Go(func() error {
		return follow(ctx, app.Store.ObserveHabits(ctx, p.ID), "habits", func(habits []models.Habit) {
			active := stats.ActiveCount(habits)
			printf("[habits] %d habits, %d active, %d%% overall\n", len(habits), active, stats.OverallAchievementRate(habits))
		})
	})
	g.Go(func() error {
		return follow(ctx, app.Store.ObserveUserStatus(ctx, p.ID), "status", func(st *models.UserStatus) {
			if st == nil {
				printf("[stats] no snapshot yet\n")
				return
			}
			printf("[stats] rate %d%% (%+d), streak %d, best %d\n", st.AchievementRate, st.TrendChange, st.CurrentStreak, st.BestStreak)
		})
	})

	if c.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: c.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			logger.Info("Serving metrics", "addr", c.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	printf("Watching %s. Press Ctrl+C to stop.\n", p.Name)
	return g.Wait()
}

// follow prints every value of sub until ctx ends or the stream fails.
func follow[T any](ctx context.Context, sub *storage.Subscription[T], stream string, show func(T)) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-sub.Updates():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return sub.Err()
			}
			metrics.LiveUpdate(stream)
			show(v)
		}
	}
}

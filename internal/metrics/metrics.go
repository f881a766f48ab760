// Package metrics exposes counters for the habit core.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitmaster",
			Name:      "completions_total",
			Help:      "Completion attempts by outcome (accepted, refused, failed)",
		},
		[]string{"result"},
	)
	habitWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitmaster",
			Name:      "habit_writes_total",
			Help:      "Habit writes by operation and outcome",
		},
		[]string{"op", "result"},
	)
	statsRecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "habitmaster",
			Name:      "stats_recompute_duration_seconds",
			Help:      "Time spent recomputing and caching a statistics snapshot",
			Buckets:   prometheus.DefBuckets,
		},
	)
	backupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitmaster",
			Name:      "backups_total",
			Help:      "Backup and restore operations by outcome",
		},
		[]string{"op", "result"},
	)
	liveUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitmaster",
			Name:      "live_updates_total",
			Help:      "Values delivered by live subscriptions",
		},
		[]string{"stream"},
	)

	registerOnce sync.Once
)

// Outcome labels.
const (
	ResultAccepted = "accepted"
	ResultRefused  = "refused"
	ResultFailed   = "failed"
	ResultOK       = "ok"
)

// Register adds the collectors to reg. Only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(completionsTotal, habitWritesTotal, statsRecomputeDuration, backupsTotal, liveUpdatesTotal)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func Completion(result string) {
	completionsTotal.WithLabelValues(result).Inc()
}

func HabitWrite(op, result string) {
	habitWritesTotal.WithLabelValues(op, result).Inc()
}

func Backup(op, result string) {
	backupsTotal.WithLabelValues(op, result).Inc()
}

func LiveUpdate(stream string) {
	liveUpdatesTotal.WithLabelValues(stream).Inc()
}

// TimeStatsRecompute records the time elapsed since start.
func TimeStatsRecompute(start time.Time) {
	statsRecomputeDuration.Observe(time.Since(start).Seconds())
}

// ResultOf maps an error to an outcome label. refused reports whether err
// is an expected refusal rather than a fault.
func ResultOf(err error, refused func(error) bool) string {
	switch {
	case err == nil:
		return ResultOK
	case refused != nil && refused(err):
		return ResultRefused
	default:
		return ResultFailed
	}
}

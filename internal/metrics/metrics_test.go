package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(completionsTotal.WithLabelValues(ResultAccepted))
	Completion(ResultAccepted)
	Completion(ResultAccepted)
	assert.Equal(t, before+2, testutil.ToFloat64(completionsTotal.WithLabelValues(ResultAccepted)))

	HabitWrite("edit", ResultOK)
	assert.GreaterOrEqual(t, testutil.ToFloat64(habitWritesTotal.WithLabelValues("edit", ResultOK)), 1.0)

	Backup("restore", ResultFailed)
	assert.GreaterOrEqual(t, testutil.ToFloat64(backupsTotal.WithLabelValues("restore", ResultFailed)), 1.0)

	TimeStatsRecompute(time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(statsRecomputeDuration))
}

func TestResultOf(t *testing.T) {
	refusal := errors.New("refused")
	isRefusal := func(err error) bool { return errors.Is(err, refusal) }

	assert.Equal(t, ResultOK, ResultOf(nil, isRefusal))
	assert.Equal(t, ResultRefused, ResultOf(refusal, isRefusal))
	assert.Equal(t, ResultFailed, ResultOf(errors.New("boom"), isRefusal))
	assert.Equal(t, ResultFailed, ResultOf(refusal, nil))
}

func TestRegisterAndServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)
	LiveUpdate("habits")

	families, err := reg.Gather()
	assert.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "habitmaster_live_updates_total")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "# HELP") || rec.Body.Len() > 0)
}

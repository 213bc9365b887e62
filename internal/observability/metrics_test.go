package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("tmebrain")

	m.ObserveAnswer("cache", 20*time.Millisecond)
	m.ObserveAnswer("cache", 30*time.Millisecond)
	m.ObserveAnswer("search", time.Second)
	m.GenerationFailed("1")
	m.Notification("error", "suppressed")
	m.Sweep("scheduled", "cleaned", map[string]int64{"history": 3, "cache": 2})
	m.Footprint(4096)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Answers.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Answers.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationFailures.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("error", "suppressed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepDeleted.WithLabelValues("history")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.StorageBytes))
}

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics("tmebrain")
	b := NewMetrics("tmebrain")

	a.ObserveAnswer("history", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Answers.WithLabelValues("history")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("tmebrain")
	m.ObserveAnswer("index", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tmebrain_answers_total{source="index"} 1`)
}

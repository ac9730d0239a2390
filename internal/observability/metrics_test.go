package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Independent(t *testing.T) {
	// separate registries: creating twice must not panic
	a := NewMetrics("")
	b := NewMetrics("")

	a.ObserveFetches(3, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.QuoteFetches.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.QuoteFetches.WithLabelValues("ok")))
}

func TestObserveCheckpoint(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveCheckpoint("08:50", nil, 4, 2*time.Second)
	m.ObserveCheckpoint("08:50", errors.New("storage down"), 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckpointRuns.WithLabelValues("08:50", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckpointRuns.WithLabelValues("08:50", "failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QualifiedSymbols.WithLabelValues("08:50")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveCheckpoint("08:50", nil, 1, time.Second)
	m.ObserveFetches(1, 1)
	m.ObservePersistFailure()
	m.SetUniverseSize(10)
	m.ObserveNotification("summary", nil)
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := NewMetrics("gapwatch")
	m.SetUniverseSize(42)
	m.ObserveNotification("summary", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gapwatch_universe_symbols 42")
	assert.Contains(t, rec.Body.String(), `gapwatch_notify_messages_total{kind="summary",result="sent"} 1`)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapwatch/internal/api/handlers"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/internal/scheduler"
	"github.com/wonny/gapwatch/pkg/logger"
)

type fakeReader struct {
	tables map[string]*dataset.Table
	err    error
}

func (f *fakeReader) Load(ctx context.Context, date string) (*dataset.Table, error) {
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.tables[date]; ok {
		return t, nil
	}
	return nil, dataset.ErrNotFound
}

type fakeStats map[string]scheduler.JobStats

func (f fakeStats) GetJobStats() map[string]scheduler.JobStats { return f }

func sampleTable() *dataset.Table {
	t := dataset.NewTable("20250310", []string{"AAA", "BBB", "CCC"})
	updates := map[string]dataset.Update{
		"AAA": {Open: null.FloatFrom(10), Close: null.FloatFrom(10), Volume: null.FloatFrom(500000), SharesOutstanding: null.FloatFrom(1e8), CurrentPrice: null.FloatFrom(10.3)},
		"BBB": {Open: null.FloatFrom(5), Close: null.FloatFrom(5), Volume: null.FloatFrom(900000), SharesOutstanding: null.FloatFrom(1e9), CurrentPrice: null.FloatFrom(5.2)},
		"CCC": {Open: null.FloatFrom(3), Close: null.FloatFrom(3), Volume: null.FloatFrom(10), CurrentPrice: null.FloatFrom(3)},
	}
	dataset.MergeCheckpoint(t, "08:40", updates, dataset.MergeOptions{}, logger.Nop())
	t.Stamp("AAA", "08:40", dataset.Verdict{Qualified: true, Reason: "qualified"})
	t.Stamp("BBB", "08:40", dataset.Verdict{Qualified: true, Reason: "qualified"})
	t.Stamp("CCC", "08:40", dataset.Verdict{Qualified: false, Reason: "volume_too_low"})

	dataset.MergeCheckpoint(t, "08:50", map[string]dataset.Update{
		"AAA": {CurrentPrice: null.FloatFrom(9.9)},
	}, dataset.MergeOptions{Full: true}, logger.Nop())
	t.Stamp("AAA", "08:50", dataset.Verdict{Qualified: false, Reason: "price_change_too_low"})
	t.Stamp("BBB", "08:50", dataset.Verdict{Qualified: false, Reason: "insufficient_data"})
	t.Stamp("CCC", "08:50", dataset.Verdict{Qualified: false, Reason: "insufficient_data"})
	return t
}

func newTestRouter(reader handlers.DatasetReader, checks map[string]HealthCheck) http.Handler {
	log := logger.Nop()
	return NewRouter(RouterDeps{
		Datasets:  handlers.NewDatasetHandler(reader, log),
		Scheduler: handlers.NewSchedulerHandler(fakeStats{"checkpoint_0840": {JobName: "checkpoint_0840", TotalRuns: 2}, "initial_pull": {JobName: "initial_pull"}}),
		Metrics:   observability.NewMetrics("gapwatch_test"),
		Checks:    checks,
		Logger:    log,
	})
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h := newTestRouter(&fakeReader{}, map[string]HealthCheck{
			"storage": func(ctx context.Context) error { return nil },
		})
		rec := serve(t, h, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("degraded", func(t *testing.T) {
		h := newTestRouter(&fakeReader{}, map[string]HealthCheck{
			"storage": func(ctx context.Context) error { return errors.New("connection refused") },
		})
		rec := serve(t, h, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(&fakeReader{}, nil)
	rec := serve(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetDataset(t *testing.T) {
	h := newTestRouter(&fakeReader{tables: map[string]*dataset.Table{"20250310": sampleTable()}}, nil)

	rec := serve(t, h, "/api/datasets/20250310")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.DatasetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "20250310", body.Date)
	assert.Equal(t, []string{"08:40", "08:50"}, body.Labels)
	assert.Equal(t, []string{"08:50"}, body.Full)
	assert.Equal(t, 3, body.RowCount)
	require.Len(t, body.Rows, 3)
	assert.Equal(t, "AAA", body.Rows[0].Symbol)
}

func TestGetDatasetCSV(t *testing.T) {
	table := sampleTable()
	h := newTestRouter(&fakeReader{tables: map[string]*dataset.Table{"20250310": table}}, nil)

	rec := serve(t, h, "/api/datasets/20250310/csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))

	want, err := dataset.Encode(table)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Body.Bytes())
}

func TestGetQualified(t *testing.T) {
	h := newTestRouter(&fakeReader{tables: map[string]*dataset.Table{"20250310": sampleTable()}}, nil)

	tests := []struct {
		name    string
		path    string
		label   string
		symbols []string
	}{
		{"explicit checkpoint sorted by market cap", "/api/datasets/20250310/qualified?checkpoint=08:40", "08:40", []string{"BBB", "AAA"}},
		{"defaults to latest checkpoint", "/api/datasets/20250310/qualified", "08:50", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var body handlers.QualifiedResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.label, body.Label)
			assert.Equal(t, len(tt.symbols), body.Count)

			var got []string
			for _, q := range body.Qualified {
				got = append(got, q.Symbol)
			}
			assert.Equal(t, tt.symbols, got)
		})
	}
}

func TestGetQualifiedPctChange(t *testing.T) {
	h := newTestRouter(&fakeReader{tables: map[string]*dataset.Table{"20250310": sampleTable()}}, nil)

	rec := serve(t, h, "/api/datasets/20250310/qualified?checkpoint=08:40")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.QualifiedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Qualified, 2)
	assert.Equal(t, "AAA", body.Qualified[1].Symbol)
	assert.InDelta(t, 3.0, body.Qualified[1].PctChange, 1e-9)
	assert.InDelta(t, 10.3, body.Qualified[1].CurrentPrice, 1e-9)
}

func TestDatasetErrors(t *testing.T) {
	tables := map[string]*dataset.Table{"20250310": sampleTable()}

	tests := []struct {
		name   string
		reader *fakeReader
		path   string
		code   int
	}{
		{"dashed date", &fakeReader{tables: tables}, "/api/datasets/2025-03-10", http.StatusBadRequest},
		{"missing day", &fakeReader{tables: tables}, "/api/datasets/20250311", http.StatusNotFound},
		{"storage down", &fakeReader{err: fmt.Errorf("%w: timeout", dataset.ErrStorageUnavailable)}, "/api/datasets/20250310", http.StatusServiceUnavailable},
		{"other error", &fakeReader{err: errors.New("corrupt")}, "/api/datasets/20250310/csv", http.StatusInternalServerError},
		{"bad checkpoint", &fakeReader{tables: tables}, "/api/datasets/20250310/qualified?checkpoint=8:40", http.StatusBadRequest},
		{"unrecorded checkpoint", &fakeReader{tables: tables}, "/api/datasets/20250310/qualified?checkpoint=09:30", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, newTestRouter(tt.reader, nil), tt.path)
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSchedulerJobs(t *testing.T) {
	h := newTestRouter(&fakeReader{}, nil)

	rec := serve(t, h, "/api/scheduler/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []scheduler.JobStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "checkpoint_0840", body[0].JobName)
	assert.Equal(t, 2, body[0].TotalRuns)
	assert.Equal(t, "initial_pull", body[1].JobName)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := serve(t, h, "/anything")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

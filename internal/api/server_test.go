package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basarometer/sourcectl/internal/config"
	"github.com/basarometer/sourcectl/internal/conflicts"
	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
	"github.com/basarometer/sourcectl/internal/reliability"
)

type testEnv struct {
	srv       *Server
	discovery *fakeDiscovery
	queue     *fakeQueue
	conflicts *fakeConflicts
	rel       *fakeReliability
	patterns  *patterns.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ps := patterns.NewMemoryStore()
	ps.Put(model.ExtractionPattern{ID: "p1", Type: model.PatternKeyword, Value: "קצב", Role: model.RoleName, Active: true})

	env := &testEnv{
		discovery: &fakeDiscovery{},
		queue: newFakeQueue(
			model.Source{ID: "s1", Status: model.SourceStatusDiscovered, ReliabilityScore: 70},
			model.Source{ID: "s2", Status: model.SourceStatusApproved, ReliabilityScore: 95},
		),
		conflicts: newFakeConflicts(model.PriceConflict{ID: "c1", PriceA: 40, PriceB: 55}),
		patterns:  ps,
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rel := &fakeReliability{
		history: map[string][]model.ReliabilityMetric{
			"s1": {
				{SourceID: "s1", OverallScore: 80, MeasuredAt: now},
				{SourceID: "s1", OverallScore: 70, MeasuredAt: now.Add(-time.Hour)},
			},
			"s2": {},
		},
		trends: &reliability.Trends{
			DataPoints:     2,
			AverageOverall: 75,
			Change:         &reliability.Trend{Overall: 10, Direction: reliability.Improving, DataPoints: 2},
		},
	}
	env.rel = rel

	env.srv = NewServer(Services{
		Discovery:   env.discovery,
		Queue:       env.queue,
		Reliability: rel,
		Conflicts:   env.conflicts,
		Learning:    fakeLearning{},
		Patterns:    ps,
	}, config.ServerConfig{
		AllowedOrigins:   []string{"http://admin.local"},
		IngestRatePerSec: 1,
		IngestBurst:      2,
	})
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
}

func TestValidateCandidate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/discovery/validate", map[string]string{
		"url": "https://cohen-meat.co.il", "name": "קצביית כהן",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["is_valid"])

	rec = env.do(http.MethodPost, "/discovery/validate", map[string]string{"name": "no url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, "url is required")
}

func TestRunSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/discovery/sessions", map[string]any{
		"manual": true,
		"candidates": []map[string]string{
			{"url": "https://a.co.il"},
			{"url": "https://b.co.il"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody[map[string]any](t, rec)["inserted"])
	assert.Equal(t, 1, env.discovery.optCount)

	rec = env.do(http.MethodPost, "/discovery/sessions", map[string]any{
		"candidates": []map[string]string{{"name": "missing url"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, "candidates[0].url is required")

	rec = env.do(http.MethodPost, "/discovery/sessions", map[string]any{"candidates": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourceActions(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"approve discovered", "/discovery/sources/s1/approve", http.StatusOK},
		{"reject approved", "/discovery/sources/s2/reject", http.StatusConflict},
		{"missing source", "/discovery/sources/nope/approve", http.StatusNotFound},
		{"unknown action", "/discovery/sources/s1/archive", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.path, map[string]string{"notes": "checked"})
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	src, err := env.queue.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SourceStatusApproved, src.Status)
}

func TestPrioritize(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/discovery/sources/s2/prioritize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[scoreResponse](t, rec)
	assert.Equal(t, 100.0, resp.ReliabilityScore)
}

func TestListSources(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/discovery/sources?status=approved&min_score=50&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[[]model.Source](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "s2", got[0].ID)
	require.NotNil(t, env.queue.lastOpts.MinScore)
	assert.Equal(t, 50.0, *env.queue.lastOpts.MinScore)
	assert.Equal(t, 5, env.queue.lastOpts.Limit)

	rec = env.do(http.MethodGet, "/discovery/sources?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/discovery/sources?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculateScore(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/reliability/s1", map[string]float64{
		"data_accuracy": 80, "text_quality": 60, "domain_relevance": 90, "business_legitimacy": 70,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	want := reliability.Score(reliability.Inputs(80, 60, 90, 70), reliability.DefaultWeights())
	assert.InDelta(t, want, decodeBody[scoreResponse](t, rec).ReliabilityScore, 1e-9)

	rec = env.do(http.MethodPost, "/reliability/s1", map[string]float64{"data_accuracy": 140})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, "data_accuracy must be at most 100")

	rec = env.do(http.MethodPost, "/reliability/ghost", map[string]float64{"data_accuracy": 10})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryIncludesTrend(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/reliability/s1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[historyResponse](t, rec)
	assert.Len(t, resp.History, 2)
	require.NotNil(t, resp.Trend)
	assert.Equal(t, reliability.Improving, resp.Trend.Direction)

	rec = env.do(http.MethodGet, "/reliability/s2/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"source_id":"s2","history":[],"trend":null}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/reliability/s9/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, "source s9")
}

func TestReliabilityTrends(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/reliability/trends", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[reliability.Trends](t, rec)
	assert.Equal(t, 2, resp.DataPoints)
	require.NotNil(t, resp.Change)
	assert.Equal(t, reliability.Improving, resp.Change.Direction)
	assert.True(t, env.rel.since.IsZero())

	rec = env.do(http.MethodGet, "/reliability/trends?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -7), env.rel.since, time.Minute)

	rec = env.do(http.MethodGet, "/reliability/trends?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDiscoverySessions(t *testing.T) {
	env := newTestEnv(t)
	env.discovery.stored = []discovery.Session{
		{ID: "sess-2", Method: model.DiscoveryManual, Status: discovery.SessionFailed, Total: 2},
		{ID: "sess-1", Method: model.DiscoveryAutomatic, Status: discovery.SessionCompleted, Total: 10, Valid: 4, Inserted: 3},
	}

	rec := env.do(http.MethodGet, "/discovery/sessions?days=7&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[sessionsResponse](t, rec)
	assert.Equal(t, 7, resp.PeriodDays)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "sess-2", resp.Sessions[0].ID)
	assert.Equal(t, 1, env.discovery.lastLimit)

	env.discovery.stored = nil
	rec = env.do(http.MethodGet, "/discovery/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, discovery.DefaultPerformanceDays, env.discovery.lastDays)
	assert.Empty(t, decodeBody[sessionsResponse](t, rec).Sessions)

	rec = env.do(http.MethodGet, "/discovery/sessions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscoveryPerformance(t *testing.T) {
	env := newTestEnv(t)
	env.discovery.stored = []discovery.Session{
		{Method: model.DiscoveryAutomatic, Status: discovery.SessionCompleted, Total: 10, Valid: 4, Inserted: 3, AvgConfidence: 0.8},
		{Method: model.DiscoveryManual, Status: discovery.SessionFailed, Total: 2},
	}

	rec := env.do(http.MethodGet, "/discovery/performance?days=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[performanceResponse](t, rec)
	require.NotNil(t, resp.Performance)
	assert.Equal(t, 10, resp.Performance.PeriodDays)
	assert.Equal(t, 2, resp.Performance.Sessions)
	assert.InDelta(t, 50, resp.Performance.SessionSuccessRate, 1e-9)
	assert.InDelta(t, 0.3, resp.Performance.DailyDiscoveryRate, 1e-9)
	require.NotNil(t, resp.Reliability)
	assert.Equal(t, 2, resp.Reliability.DataPoints)
	assert.Equal(t, resp.Performance.Since, env.rel.since)

	env.rel.trends = nil
	rec = env.do(http.MethodGet, "/discovery/performance", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResolveConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/conflicts/c1/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["applied"])

	rec = env.do(http.MethodPost, "/conflicts/c1/resolve", map[string]string{"method": "algorithm"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["applied"])

	rec = env.do(http.MethodPost, "/conflicts/c1/resolve", map[string]string{"method": "vote"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/conflicts/c1/resolve", map[string]string{"method": "manual"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/conflicts/zzz/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveManually(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/conflicts/c1/manual", map[string]any{"price": 45})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, "resolution requires both a price and notes")

	rec = env.do(http.MethodPost, "/conflicts/c1/manual", map[string]any{"price": 45, "notes": "called store", "admin_id": "dana"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[map[string]bool](t, rec)["applied"])

	rec = env.do(http.MethodPost, "/conflicts/c1/manual", map[string]any{"price": 50, "notes": "again"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[map[string]bool](t, rec)["applied"])

	rec = env.do(http.MethodPost, "/conflicts/c9/manual", map[string]any{"price": 50, "notes": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveManually_ResolverReportsMissingFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	env := newTestEnv(t)
	env.srv = NewServer(Services{
		Discovery:   env.discovery,
		Queue:       env.queue,
		Reliability: env.rel,
		Conflicts:   conflicts.NewResolver(conflicts.NewPostgresStore(mock), config.ConflictsConfig{}),
		Learning:    fakeLearning{},
		Patterns:    env.patterns,
	}, config.ServerConfig{})

	for _, body := range []map[string]any{
		{"price": 45},
		{"notes": "called store"},
		{"price": -3, "notes": "called store"},
		{"price": 45, "notes": "   "},
	} {
		rec := env.do(http.MethodPost, "/conflicts/c1/manual", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody[errorBody](t, rec).Error, "resolution requires both a price and notes")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInternalErrorsHideDetail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/conflicts/resolve-all", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeBody[errorBody](t, rec).Error)
}

func TestIngestObservations_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"observations": []map[string]any{
		{"catalog_item_id": "entrecote", "source_id": "s1", "price": 40},
	}}

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/observations", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := env.do(http.MethodPost, "/observations", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, env.conflicts.ingested, 2)
}

func TestIngestObservations_Invalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/observations", map[string]any{"observations": []map[string]any{
		{"catalog_item_id": "entrecote", "source_id": "s1", "price": 0},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, "observations[0].price must be greater than 0")
	assert.Empty(t, env.conflicts.ingested)
}

func TestRecordPatternUsage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/patterns/p1/usage", map[string]bool{"success": true})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	p, err := env.patterns.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.TimesUsed)
	assert.Equal(t, int64(1), p.TimesSuccessful)

	rec = env.do(http.MethodPost, "/patterns/ghost/usage", map[string]bool{"success": false})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOptimizePatterns(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/patterns/optimize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody[map[string]any](t, rec)["deactivated"])

	rec = env.do(http.MethodGet, "/patterns/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/conflicts/pending", nil)
	req.Header.Set("Origin", "http://admin.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)

	assert.Equal(t, "http://admin.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientKey(t *testing.T) {
	assert.Equal(t, "192.0.2.1", clientKey("192.0.2.1:1234"))
	assert.Equal(t, "[::1]", clientKey("[::1]:80"))
	assert.Equal(t, "10.0.0.1", clientKey("10.0.0.1"))
}

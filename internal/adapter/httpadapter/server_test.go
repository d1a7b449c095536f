package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/0verdr1v3/bovine/internal/adapter/httpadapter"
	"github.com/0verdr1v3/bovine/internal/cache"
	"github.com/0verdr1v3/bovine/internal/domain"
	"github.com/0verdr1v3/bovine/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 2, 10, 6, 0, 0, 0, time.UTC)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockRefresher struct {
	trigger scheduler.Trigger
	status  scheduler.Status
	calls   int
}

func (m *mockRefresher) TriggerNow() scheduler.Trigger {
	m.calls++
	return m.trigger
}

func (m *mockRefresher) Status() scheduler.Status { return m.status }

type downStore struct{ *cache.MemoryStore }

func (downStore) List(context.Context, string) ([]domain.CacheEntry, error) {
	return nil, fmt.Errorf("%w: connection refused", domain.ErrCacheUnavailable)
}

func (downStore) Get(context.Context, string, string) (domain.CacheEntry, error) {
	return domain.CacheEntry{}, errors.New("i/o timeout")
}

func newTestServer(t *testing.T, store cache.Store, readyErr error, refresher *mockRefresher) *httpadapter.Server {
	t.Helper()
	if refresher == nil {
		refresher = &mockRefresher{}
	}
	return httpadapter.NewServer(httpadapter.Options{
		Addr:        ":0",
		CORSOrigins: []string{"*"},
		Ready:       &mockReadiness{err: readyErr},
		Store:       store,
		Refresher:   refresher,
		Clock:       clockwork.NewFakeClockAt(testNow),
	}, slog.Default())
}

func seed(t *testing.T, store cache.Store, collection, key string, doc any, status domain.SourceStatus, at time.Time) {
	t.Helper()
	e, err := cache.NewEntry(collection, key, doc, status, at)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), e))
}

func do(srv *httpadapter.Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(newTestServer(t, cache.NewMemoryStore(), nil, nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	rec := do(newTestServer(t, cache.NewMemoryStore(), nil, nil), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(newTestServer(t, cache.NewMemoryStore(), errors.New("no cycle yet"), nil), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(t, cache.NewMemoryStore(), nil, nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCollectionEndpoint(t *testing.T) {
	store := cache.NewMemoryStore()
	seed(t, store, domain.CollectionHerds, "A", map[string]any{"id": "A", "head_count": 8200}, domain.StatusConnected, testNow.Add(-90*time.Second))
	seed(t, store, domain.CollectionHerds, "B", map[string]any{"id": "B", "head_count": 5400}, domain.StatusCached, testNow.Add(-30*time.Second))
	srv := newTestServer(t, store, nil, nil)

	for _, path := range []string{"/api/herds", "/api/cache/herds"} {
		t.Run(path, func(t *testing.T) {
			rec := do(srv, http.MethodGet, path)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body struct {
				Documents    []map[string]any `json:"documents"`
				Keys         []string         `json:"keys"`
				UpdatedAt    time.Time        `json:"updated_at"`
				Status       string           `json:"status"`
				StaleSeconds int64            `json:"stale_seconds"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Len(t, body.Documents, 2)
			assert.Equal(t, []string{"A", "B"}, body.Keys)
			assert.Equal(t, "A", body.Documents[0]["id"])
			assert.Equal(t, "cached", body.Status)
			assert.Equal(t, int64(30), body.StaleSeconds)
			assert.True(t, body.UpdatedAt.Equal(testNow.Add(-30*time.Second)))
		})
	}
}

func TestDocumentEndpoint(t *testing.T) {
	store := cache.NewMemoryStore()
	seed(t, store, domain.CollectionStats, domain.KeyCurrent, domain.Stats{TotalHerds: 8, TotalCattle: 63500}, domain.StatusConnected, testNow.Add(-time.Hour))
	srv := newTestServer(t, store, nil, nil)

	for _, path := range []string{"/api/stats", "/api/cache/stats/current"} {
		rec := do(srv, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body struct {
			Document     domain.Stats `json:"document"`
			StaleSeconds int64        `json:"stale_seconds"`
			Status       string       `json:"status"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 63500, body.Document.TotalCattle)
		assert.Equal(t, int64(3600), body.StaleSeconds)
		assert.Equal(t, "connected", body.Status)
	}
}

func TestWeatherHistoryEndpoint(t *testing.T) {
	store := cache.NewMemoryStore()
	for i := range 35 {
		day := testNow.AddDate(0, 0, i-34)
		date := day.Format(time.DateOnly)
		seed(t, store, domain.CollectionWeatherHistory, date,
			domain.WeatherRecord{Date: date, SourceID: "weather", FetchedAt: day, Rain7Day: float64(i)},
			domain.StatusConnected, day)
	}
	srv := newTestServer(t, store, nil, nil)

	tests := []struct {
		path      string
		wantCode  int
		wantCount int
	}{
		{path: "/api/historical/weather", wantCode: http.StatusOK, wantCount: 30},
		{path: "/api/historical/weather?days=3", wantCode: http.StatusOK, wantCount: 3},
		{path: "/api/historical/weather?days=366", wantCode: http.StatusOK, wantCount: 35},
		{path: "/api/historical/weather?days=0", wantCode: http.StatusBadRequest},
		{path: "/api/historical/weather?days=week", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(srv, http.MethodGet, tt.path)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Documents []domain.WeatherRecord `json:"documents"`
				Keys      []string               `json:"keys"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Len(t, body.Documents, tt.wantCount)
			assert.Equal(t, testNow.Format(time.DateOnly), body.Keys[0], "newest first")
			assert.InDelta(t, 34.0, body.Documents[0].Rain7Day, 1e-9)
		})
	}
}

func TestWeatherHistoryEndpoint_DaysOverLimit(t *testing.T) {
	rec := do(newTestServer(t, cache.NewMemoryStore(), nil, nil), http.MethodGet, "/api/historical/weather?days=400")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferenceEndpoints(t *testing.T) {
	store := cache.NewMemoryStore()
	history := domain.NewConflictHistory([]domain.ConflictEvent{
		{ID: "a", Location: "Pibor", Fatalities: 45, CattleStolen: 2500, Baseline: true},
		{ID: "b", Location: "Malakal", Fatalities: 12, CattleStolen: 800, Baseline: true},
	})
	docs := map[string]any{
		domain.KeyWaterSources:        []domain.WaterPoint{{ID: "sobat", Name: "Sobat River", Reliability: 0.9}},
		domain.KeyGrazingRegions:      []domain.GrazingRegion{{Name: "Jonglei", NDVI: 0.38}},
		domain.KeyCorridors:           []domain.Corridor{{ID: "pibor-akobo", Ethnicity: "Murle"}},
		domain.KeyNDVIZones:           []domain.NDVIZone{{Label: "Stressed - Pibor area", NDVI: 0.3}},
		domain.KeyHistoricalConflicts: history,
	}
	for key, doc := range docs {
		seed(t, store, domain.CollectionReference, key, doc, domain.StatusConnected, testNow)
	}
	srv := newTestServer(t, store, nil, nil)

	for _, path := range []string{"/api/water-sources", "/api/grazing-regions", "/api/corridors", "/api/ndvi-zones"} {
		rec := do(srv, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var body struct {
			Document []map[string]any `json:"document"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), path)
		assert.Len(t, body.Document, 1, path)
	}

	rec := do(srv, http.MethodGet, "/api/historical-conflicts")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Document domain.ConflictHistory `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Document.Count)
	assert.Equal(t, 57, body.Document.TotalFatalities)
	assert.Equal(t, 3300, body.Document.TotalCattleStolen)
	assert.Contains(t, rec.Body.String(), `"total_casualties":57`)
}

func TestEmptyCommittedCollectionReturnsEmptyList(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.ReplaceCollection(context.Background(), domain.CollectionZones, nil))
	seed(t, store, domain.CollectionManifests, domain.CollectionZones, domain.Manifest{Keys: []string{}}, domain.StatusConnected, testNow.Add(-10*time.Second))
	srv := newTestServer(t, store, nil, nil)

	rec := do(srv, http.MethodGet, "/api/zones")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Documents    []json.RawMessage `json:"documents"`
		StaleSeconds int64             `json:"stale_seconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Documents)
	assert.Empty(t, body.Documents)
	assert.Equal(t, int64(10), body.StaleSeconds)
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, cache.NewMemoryStore(), nil, nil)

	for _, path := range []string{
		"/api/herds",
		"/api/pressure",
		"/api/historical/weather",
		"/api/ndvi-zones",
		"/api/cache/herds/Z",
		"/api/cache/passwords",
		"/api/cache/passwords/root",
	} {
		rec := do(srv, http.MethodGet, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
}

func TestCacheUnavailableReturns503(t *testing.T) {
	srv := newTestServer(t, downStore{cache.NewMemoryStore()}, nil, nil)

	for _, path := range []string{"/api/zones", "/api/stats"} {
		rec := do(srv, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.True(t, strings.Contains(rec.Body.String(), "cache unavailable"))
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name       string
		trigger    scheduler.Trigger
		wantCode   int
		wantStatus string
	}{
		{name: "starts a cycle", trigger: scheduler.Trigger{Started: true, StartedAt: testNow}, wantCode: http.StatusAccepted, wantStatus: "started"},
		{name: "already running", trigger: scheduler.Trigger{Started: false, StartedAt: testNow.Add(-time.Minute)}, wantCode: http.StatusOK, wantStatus: "already_running"},
		{name: "shutting down", trigger: scheduler.Trigger{Stopped: true}, wantCode: http.StatusServiceUnavailable, wantStatus: "shutting_down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := &mockRefresher{trigger: tt.trigger}
			rec := do(newTestServer(t, cache.NewMemoryStore(), nil, ref), http.MethodPost, "/api/refresh")
			assert.Equal(t, tt.wantCode, rec.Code)

			var body struct {
				Status    string    `json:"status"`
				StartedAt time.Time `json:"started_at"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.True(t, body.StartedAt.Equal(tt.trigger.StartedAt))
			assert.Equal(t, 1, ref.calls)
		})
	}
}

func TestRefreshRejectsGet(t *testing.T) {
	rec := do(newTestServer(t, cache.NewMemoryStore(), nil, nil), http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatus(t *testing.T) {
	ref := &mockRefresher{status: scheduler.Status{Running: true, StartedAt: testNow, LastError: "cache unavailable"}}
	rec := do(newTestServer(t, cache.NewMemoryStore(), nil, ref), http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Equal(t, "cache unavailable", body.LastError)
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goodtune/apextrack/internal/storage"
	"github.com/goodtune/apextrack/internal/storage/memory"
	"github.com/goodtune/apextrack/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	clock   *clock.Mock
	store   storage.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	require.NoError(t, store.Assets().Upsert(context.Background(), storage.Asset{ID: "asset-1", Name: "Forklift"}))

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	var seq atomic.Int64
	tracker, err := usage.NewTracker(store, usage.Config{
		Clock: mock,
		NewID: func() string { return fmt.Sprintf("s%d", seq.Add(1)) },
	}, zerolog.Nop())
	require.NoError(t, err)

	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", RateLimit: 1000}, tracker, zerolog.Nop())
	return &testServer{handler: srv.Handler(), clock: mock, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/usage/start", `{"asset_id":"asset-1","performed_by":"ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[storage.Session](t, rec)
	require.Equal(t, storage.SessionActive, started.Status)

	rec = ts.do(t, http.MethodPost, "/api/usage/start", `{"asset_id":"asset-1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	require.Equal(t, http.StatusConflict, errResp.Code)
	require.Contains(t, errResp.Message, "active session")

	rec = ts.do(t, http.MethodGet, "/api/usage/active/asset-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ts.clock.Add(10 * time.Minute)
	rec = ts.do(t, http.MethodPost, "/api/usage/"+started.ID+"/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ts.clock.Add(5 * time.Minute)
	rec = ts.do(t, http.MethodPost, "/api/usage/"+started.ID+"/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ts.clock.Add(30 * time.Minute)
	rec = ts.do(t, http.MethodPost, "/api/usage/"+started.ID+"/stop", `{"description":"pallets"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stopped := decode[storage.Session](t, rec)
	require.Equal(t, storage.SessionCompleted, stopped.Status)
	require.EqualValues(t, 40, *stopped.Duration)

	rec = ts.do(t, http.MethodPost, "/api/usage/"+started.ID+"/pause", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/usage/active/asset-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/usage/asset/asset-1/total", "")
	require.Equal(t, http.StatusOK, rec.Code)
	total := decode[map[string]interface{}](t, rec)
	require.Equal(t, "asset-1", total["asset_id"])
	require.Equal(t, 0.67, total["total_hours"])
}

func TestManualAndHistoryOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/usage/manual", `{"asset_id":"asset-1","start_time":"2026-01-01T00:00:00Z","duration":90}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	manual := decode[storage.Session](t, rec)
	require.Equal(t, time.Date(2026, 1, 1, 1, 30, 0, 0, time.UTC), manual.EndedAt.UTC())

	rec = ts.do(t, http.MethodPost, "/api/usage/manual", `{"asset_id":"asset-1","start_time":"2026-01-01T00:00:00Z","duration":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/usage/manual", `{"asset_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/usage/asset/asset-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Sessions []storage.Session `json:"sessions"`
		Count    int               `json:"count"`
	}](t, rec)
	require.Equal(t, 1, history.Count)

	rec = ts.do(t, http.MethodGet, "/api/assets/asset-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	asset := decode[storage.Asset](t, rec)
	require.Equal(t, 1.5, asset.TotalUsageHours)
}

func TestUpdateAndDeleteOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/usage/start", `{"asset_id":"asset-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	live := decode[storage.Session](t, rec)

	rec = ts.do(t, http.MethodPut, "/api/usage/"+live.ID, `{"description":"x"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/usage/"+live.ID, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/usage/"+live.ID+"?force=maybe", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/usage/"+live.ID+"?force=true", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/usage/"+live.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/usage/manual", `{"asset_id":"asset-1","start_time":"2026-01-01T00:00:00Z","duration":30}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	manual := decode[storage.Session](t, rec)

	rec = ts.do(t, http.MethodPut, "/api/usage/"+manual.ID, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/usage/"+manual.ID, `{"status":"active"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/usage/"+manual.ID, `{"status":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/usage/"+manual.ID, `{"end_time":"2026-01-01T01:00:00Z","job_site_name":"Dock 2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[storage.Session](t, rec)
	require.EqualValues(t, 60, *updated.Duration)
	require.Equal(t, "Dock 2", updated.JobSiteName)
}

func TestAssetsOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/assets/asset-2", `{"name":"Scissor Lift"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	asset := decode[storage.Asset](t, rec)
	require.Equal(t, storage.AssetAvailable, asset.Status)

	rec = ts.do(t, http.MethodPut, "/api/assets/asset-2", `{"name":"Scissor Lift","status":"maintenance"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/assets/asset-2", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/assets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string]interface{}](t, rec)
	require.EqualValues(t, 2, list["count"])

	rec = ts.do(t, http.MethodGet, "/api/assets/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/nowhere", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind usage.Kind
		want int
	}{
		{usage.KindNotFound, http.StatusNotFound},
		{usage.KindConflict, http.StatusConflict},
		{usage.KindInvalidTransition, http.StatusConflict},
		{usage.KindValidation, http.StatusBadRequest},
		{usage.KindUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimitMiddleware(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-ingest/internal/model"
	"github.com/sells-group/market-ingest/internal/monitoring"
	"github.com/sells-group/market-ingest/internal/pipeline"
	"github.com/sells-group/market-ingest/internal/store"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []pipeline.Config
}

func (f *fakeRunner) Run(_ context.Context, c pipeline.Config) *model.Cycle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)

	v := 20.0
	m := model.NewScrapeMetrics()
	m.Record(model.SourceReading{SourceID: "yahoo", Value: &v}, 120*time.Millisecond)
	start := time.Date(2026, 10, 16, 14, 0, len(f.calls), 0, time.UTC)
	return &model.Cycle{
		ID:         fmt.Sprintf("cycle-%d", len(f.calls)),
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Result: model.ConsensusResult{
			ConsensusValue: v,
			SampleCount:    1,
			Reliability:    model.ReliabilityLow,
			PerSource:      []model.SourceReading{{SourceID: "yahoo", Value: &v}},
		},
		NewItems: []model.ContentItem{{Title: "VIX climbs", URL: "https://example.com/a", SourceID: "yahoo"}},
		Metrics:  m,
	}
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func baseConfig() pipeline.Config {
	return pipeline.Config{Sources: []string{"yahoo", "cnbc"}, PerSourceTimeout: time.Second, DedupCapacity: 100}
}

func newTestRouter(t *testing.T, runner cycleRunner, st store.Store, minInterval time.Duration) http.Handler {
	t.Helper()
	var collector *monitoring.Collector
	if st != nil {
		collector = monitoring.NewCollector(st, nil)
	}
	return buildRouter(newIngestServer(runner, st, collector, baseConfig(), minInterval), []string{"*"})
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(t, &fakeRunner{}, nil, 0)

	rr := do(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_IngestRunsAndSaves(t *testing.T) {
	runner := &fakeRunner{}
	st := testStore(t)
	h := newTestRouter(t, runner, st, 0)

	rr := do(t, h, http.MethodPost, "/ingest", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var c model.Cycle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, "cycle-1", c.ID)
	assert.Equal(t, 20.0, c.Result.ConsensusValue)
	require.Len(t, c.NewItems, 1)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"yahoo", "cnbc"}, runner.calls[0].Sources)

	saved, err := st.ListCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "cycle-1", saved[0].ID)
}

func TestRouter_IngestSourceOverride(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner, nil, 0)

	rr := do(t, h, http.MethodPost, "/ingest", []byte(`{"sources":["google"]}`))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"google"}, runner.calls[0].Sources)
	assert.Equal(t, time.Second, runner.calls[0].PerSourceTimeout)
}

func TestRouter_IngestInvalidBody(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner, nil, 0)

	rr := do(t, h, http.MethodPost, "/ingest", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, runner.calls)
}

func TestRouter_IngestChunkedEmptyBody(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(nil))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"yahoo", "cnbc"}, runner.calls[0].Sources)
}

func TestRouter_IngestThrottled(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner, nil, time.Hour)

	first := do(t, h, http.MethodPost, "/ingest", nil)
	second := do(t, h, http.MethodPost, "/ingest", nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, runner.calls, 1)
}

func TestRouter_IngestSerialised(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner, nil, 0)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			do(t, h, http.MethodPost, "/ingest", nil)
		}()
	}
	wg.Wait()
	assert.Len(t, runner.calls, 4)
}

func TestRouter_CyclesWithoutStore(t *testing.T) {
	h := newTestRouter(t, &fakeRunner{}, nil, 0)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/cycles", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/cycles/x", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/metrics", nil).Code)
}

func TestRouter_CyclesListAndGet(t *testing.T) {
	st := testStore(t)
	h := newTestRouter(t, &fakeRunner{}, st, 0)

	for range 3 {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/ingest", nil).Code)
	}

	rr := do(t, h, http.MethodGet, "/cycles?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []store.CycleSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "cycle-3", list[0].ID)

	rr = do(t, h, http.MethodGet, "/cycles/cycle-2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var c model.Cycle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, "cycle-2", c.ID)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/cycles/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/cycles?limit=abc", nil).Code)
}

func TestRouter_Metrics(t *testing.T) {
	st := testStore(t)
	h := newTestRouter(t, &fakeRunner{}, st, 0)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/ingest", nil).Code)

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Cycles)
	assert.Equal(t, "cycle-1", snap.LastCycleID)
	assert.Equal(t, 20.0, snap.LastConsensusValue)
}

func TestRouter_CORS(t *testing.T) {
	h := newTestRouter(t, &fakeRunner{}, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

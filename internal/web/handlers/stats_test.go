package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/facematch"
)

func TestStatsHandler_Get(t *testing.T) {
	env := newTestEnv(t)
	seedLabels(env, "alice", "alice", "bob")

	recorder := httptest.NewRecorder()
	env.stats.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp StatsResponse
	parseJSONResponse(t, recorder, &resp)

	if resp.Backend != "mock" || resp.Records != 3 || resp.Identities != 2 || resp.MaxID != 3 {
		t.Errorf("unexpected store stats %+v", resp)
	}
	if resp.Dim != 160 || resp.StoreDim != 160 {
		t.Errorf("expected dim 160, got %d (store %d)", resp.Dim, resp.StoreDim)
	}
	if resp.Threshold != 0.5 || resp.Encoder != env.encoder.Name() {
		t.Errorf("unexpected encoder stats %+v", resp)
	}
	if resp.Index.Mode != "full-scan" || resp.Index.Records != 0 {
		t.Errorf("unexpected index stats %+v", resp.Index)
	}
}

func TestStatsHandler_Cache(t *testing.T) {
	env := newTestEnv(t)

	recorder := httptest.NewRecorder()
	env.stats.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	// served from cache even though the store now fails
	env.store.InfoError = database.ErrStorageUnavailable
	recorder = httptest.NewRecorder()
	env.stats.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	env.stats.InvalidateCache()
	recorder = httptest.NewRecorder()
	env.stats.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
}

func TestStatsHandler_IndexMode(t *testing.T) {
	env := newTestEnv(t)
	idx := facematch.NewHNSWIndex()
	idx.Add(database.EnrollmentRecord{ID: 1, Label: "alice", Embedding: []float32{1, 0}})
	stats := NewStatsHandler(env.store, facematch.NewGallery(env.store, facematch.WithIndex(idx)), env.encoder, 0.6)

	recorder := httptest.NewRecorder()
	stats.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	var resp StatsResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Index.Mode != "hnsw" || resp.Index.Records != 1 || resp.Threshold != 0.6 {
		t.Errorf("unexpected stats %+v", resp)
	}
}

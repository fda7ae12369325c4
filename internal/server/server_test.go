package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/docgate/internal/index"
)

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()

	engine, err := index.NewEngine(index.EngineConfig{Backend: "bleve"})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := index.New(index.Options{Engine: engine, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	report := gw.Bootstrap(context.Background())
	require.True(t, report.Healthy())

	opts.Gateway = gw
	opts.Logger = log
	srv, err := New(opts)
	require.NoError(t, err)
	srv.SetReport(report)

	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_UpsertSearchDeleteFlow(t *testing.T) {
	h := newTestServer(t, Options{})

	// Upsert
	rec := doJSON(t, h, http.MethodPost, "/v1/documents/resource",
		`{"id":"r1","title":"Quantum Computing","content":"intro to qubits","uid":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var wr writeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wr))
	assert.Equal(t, "indexed", wr.Status)
	assert.Equal(t, "r1", wr.ID)

	// Search as the owner
	rec = doJSON(t, h, http.MethodPost, "/v1/search/resource",
		`{"uid":"u1","query":"quantum","limit":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sr searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	require.Equal(t, 1, sr.Total)
	assert.Equal(t, "r1", sr.Hits[0].ID)
	assert.Contains(t, sr.Hits[0].Highlight["title"][0], "<mark>")

	// Another user sees nothing
	rec = doJSON(t, h, http.MethodPost, "/v1/search/resource",
		`{"uid":"u2","query":"quantum","limit":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	assert.Equal(t, 0, sr.Total)
	assert.NotNil(t, sr.Hits)

	// Delete
	rec = doJSON(t, h, http.MethodDelete, "/v1/documents/resource/r1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Gone for the owner too
	rec = doJSON(t, h, http.MethodPost, "/v1/search/resource",
		`{"uid":"u1","query":"quantum","limit":5}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	assert.Equal(t, 0, sr.Total)
}

func TestServer_UnknownEntityType(t *testing.T) {
	h := newTestServer(t, Options{})

	rec := doJSON(t, h, http.MethodPost, "/v1/documents/bookmark", `{"id":"b1","uid":"u1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_201_UNKNOWN_ENTITY_TYPE")
}

func TestServer_DeleteUnknownDocumentIs404(t *testing.T) {
	h := newTestServer(t, Options{})

	rec := doJSON(t, h, http.MethodDelete, "/v1/documents/note/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_401_DOC_NOT_FOUND")
}

func TestServer_SearchValidation(t *testing.T) {
	h := newTestServer(t, Options{})

	t.Run("missing uid", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/v1/search/note", `{"query":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "ERR_204_EMPTY_UID")
	})

	t.Run("missing query", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/v1/search/note", `{"uid":"u1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "ERR_205_EMPTY_QUERY")
	})

	t.Run("negative limit", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/v1/search/note", `{"uid":"u1","query":"x","limit":-2}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "ERR_206_INVALID_LIMIT")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/v1/search/note", `{"uid":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_SearchEntityFilter(t *testing.T) {
	h := newTestServer(t, Options{})

	for _, id := range []string{"s1", "s2"} {
		rec := doJSON(t, h, http.MethodPost, "/v1/documents/skill",
			`{"id":"`+id+`","displayName":"Summarizer","uid":"u1"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/v1/search/skill",
		`{"uid":"u1","query":"summarizer","limit":10,"entities":["s2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var sr searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	require.Equal(t, 1, sr.Total)
	assert.Equal(t, "s2", sr.Hits[0].ID)
}

func TestServer_Healthz(t *testing.T) {
	t.Run("serving after bootstrap", func(t *testing.T) {
		h := newTestServer(t, Options{})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("unavailable before bootstrap", func(t *testing.T) {
		engine, err := index.NewEngine(index.EngineConfig{Backend: "bleve"})
		require.NoError(t, err)
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		gw, err := index.New(index.Options{Engine: engine, Logger: log})
		require.NoError(t, err)
		t.Cleanup(func() { _ = gw.Close() })

		srv, err := New(Options{Gateway: gw, Logger: log})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"starting"`)
	})
}

func TestServer_Stats(t *testing.T) {
	h := newTestServer(t, Options{})

	rec := doJSON(t, h, http.MethodPost, "/v1/documents/note",
		`{"id":"n1","title":"stats test","uid":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/v1/search/note", `{"uid":"u1","query":"stats"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		Documents map[string]uint64 `json:"documents"`
		Metrics   struct {
			TotalSearches  int64            `json:"total_searches"`
			SearchesByType map[string]int64 `json:"searches_by_type"`
			UpsertsByType  map[string]int64 `json:"upserts_by_type"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.Documents["note"])
	assert.Equal(t, int64(1), stats.Metrics.TotalSearches)
	assert.Equal(t, int64(1), stats.Metrics.SearchesByType["note"])
	assert.Equal(t, int64(1), stats.Metrics.UpsertsByType["note"])
}

func TestServer_RateLimit(t *testing.T) {
	h := newTestServer(t, Options{RateRPS: 0.001, RateBurst: 2})

	var last int
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.1.2.3:50000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.9.9.9:50000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestIDHeader(t *testing.T) {
	h := newTestServer(t, Options{})

	t.Run("generated when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("client id echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})
}

package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/inkwell-ai/docgate/internal/errors"
	"github.com/inkwell-ai/docgate/internal/index"
	"github.com/inkwell-ai/docgate/internal/telemetry"
)

// maxBodyBytes caps request bodies. Indexed documents are text-sized,
// not uploads.
const maxBodyBytes = 4 << 20

// searchRequest is the POST /v1/search/{type} body.
type searchRequest struct {
	UID      string   `json:"uid"`
	Query    string   `json:"query"`
	Limit    int      `json:"limit"`
	Entities []string `json:"entities,omitempty"`
}

// searchResponse is the search reply envelope.
type searchResponse struct {
	Query  string      `json:"query"`
	Hits   []index.Hit `json:"hits"`
	Total  int         `json:"total"`
	TookMS int64       `json:"took_ms"`
}

// writeResponse is the upsert/delete reply envelope.
type writeResponse struct {
	Status string `json:"status"`
	Type   string `json:"type"`
	ID     string `json:"id"`
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	entityType, err := index.ParseEntityType(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidDocument, "failed to read request body", err))
		return
	}

	doc, err := index.DecodeDocument(entityType, body)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.gateway.Upsert(r.Context(), entityType, doc); err != nil {
		writeError(w, err)
		return
	}

	s.metrics.RecordUpsert(string(entityType))
	writeJSON(w, http.StatusOK, writeResponse{
		Status: "indexed",
		Type:   string(entityType),
		ID:     doc.DocID(),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	entityType, err := index.ParseEntityType(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")

	if err := s.gateway.Delete(r.Context(), entityType, id); err != nil {
		writeError(w, err)
		return
	}

	s.metrics.RecordDelete(string(entityType))
	writeJSON(w, http.StatusOK, writeResponse{
		Status: "deleted",
		Type:   string(entityType),
		ID:     id,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	entityType, err := index.ParseEntityType(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidDocument, "malformed search request body", err))
		return
	}
	if req.Limit == 0 {
		req.Limit = s.opts.DefaultLimit
	}

	start := time.Now()
	hits, err := s.gateway.Search(r.Context(), entityType, index.User{UID: req.UID}, index.SearchRequest{
		Query:    req.Query,
		Limit:    req.Limit,
		Entities: req.Entities,
	})
	took := time.Since(start)
	if err != nil {
		writeError(w, err)
		return
	}

	s.metrics.RecordSearch(telemetry.SearchEvent{
		EntityType:  string(entityType),
		Query:       req.Query,
		ResultCount: len(hits),
		Latency:     took,
		Timestamp:   start,
	})

	if hits == nil {
		hits = []index.Hit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:  req.Query,
		Hits:   hits,
		Total:  len(hits),
		TookMS: took.Milliseconds(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.lastReport()

	status := "ok"
	code := http.StatusOK
	if len(report.Indices) == 0 {
		status = "starting"
		code = http.StatusServiceUnavailable
	} else if !report.Healthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"indices": report.Indices,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]uint64)
	for _, t := range index.EntityTypes() {
		n, err := s.gateway.DocCount(r.Context(), t)
		if err != nil {
			s.log.Warn("doc count failed",
				slog.String("type", string(t)),
				slog.String("error", err.Error()))
			continue
		}
		counts[string(t)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": counts,
		"metrics":   s.metrics.Snapshot(),
	})
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a gateway error to its HTTP status: validation to
// 400, not-found to 404, engine failures to 502, the rest to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		status = http.StatusBadRequest
	case errors.CategoryNotFound:
		status = http.StatusNotFound
	case errors.CategoryEngine:
		status = http.StatusBadGateway
	case errors.CategoryConfig:
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": err.Error()}
	if code := errors.GetCode(err); code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}

// Package server exposes the document index gateway over HTTP:
// per-type upsert, delete, and search, plus health and stats.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/inkwell-ai/docgate/internal/index"
	"github.com/inkwell-ai/docgate/internal/telemetry"
)

// Options configures a Server.
type Options struct {
	// Gateway is the index gateway (required).
	Gateway *index.Gateway
	// Metrics is the stats collector; nil creates a fresh one.
	Metrics *telemetry.Metrics
	// Logger is the structured logger; nil uses slog.Default.
	Logger *slog.Logger

	// DefaultLimit applies when a search request carries no limit.
	DefaultLimit int

	// RateRPS and RateBurst shape the per-client rate limit.
	// RateRPS <= 0 disables rate limiting.
	RateRPS   float64
	RateBurst int
	// RateClientCacheSize bounds the per-client limiter table.
	RateClientCacheSize int
}

// Server is the HTTP front for the gateway.
type Server struct {
	gateway *index.Gateway
	metrics *telemetry.Metrics
	log     *slog.Logger
	opts    Options

	mu     sync.RWMutex
	report index.Report
}

// New constructs a Server. Call SetReport with the bootstrap outcome
// before serving so the health endpoint reflects index state.
func New(opts Options) (*Server, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("server: gateway is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.RateClientCacheSize <= 0 {
		opts.RateClientCacheSize = 1024
	}
	return &Server{
		gateway: opts.Gateway,
		metrics: opts.Metrics,
		log:     opts.Logger,
		opts:    opts,
	}, nil
}

// SetReport records the latest bootstrap report for the health endpoint.
func (s *Server) SetReport(r index.Report) {
	s.mu.Lock()
	s.report = r
	s.mu.Unlock()
}

// lastReport returns the most recent bootstrap report.
func (s *Server) lastReport() index.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/documents/{type}", s.handleUpsert)
	mux.HandleFunc("DELETE /v1/documents/{type}/{id}", s.handleDelete)
	mux.HandleFunc("POST /v1/search/{type}", s.handleSearch)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	var handler http.Handler = mux
	if s.opts.RateRPS > 0 {
		handler = s.rateLimit(handler)
	}
	handler = s.logRequests(handler)
	handler = requestID(handler)
	return handler
}

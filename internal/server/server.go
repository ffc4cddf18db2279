// Package server implements the HTTP server that exposes the docqa
// question-answering pipeline via a REST API: query, search, history,
// stats, health, readiness, and Prometheus metrics.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/generator"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/memory"
	"github.com/54b3r/docqa-go/internal/rag"
)

// New constructs a Server from the pipeline components and config.
// history and corpus may be nil; the corresponding endpoints then report
// 503 instead of serving.
func New(gen *generator.Generator, retriever rag.Retriever, history memory.ChatStore, corpus chunkCounter, cfg *Config) (*Server, error) {
	if gen == nil {
		return nil, fmt.Errorf("server: generator must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full retrieval + generation round trip.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		answerer:  gen,
		retriever: retriever,
		history:   history,
		corpus:    corpus,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// The generation and search endpoints are the expensive ones; rate
	// limiting applies there only.
	api := http.NewServeMux()
	api.Handle("POST /api/query", s.instrument("query", rl.middleware(http.HandlerFunc(s.handleQuery))))
	api.Handle("POST /api/search", s.instrument("search", rl.middleware(http.HandlerFunc(s.handleSearch))))
	api.Handle("GET /api/history", s.instrument("history", http.HandlerFunc(s.handleHistory)))
	api.Handle("POST /api/history/clear", s.instrument("history_clear", http.HandlerFunc(s.handleHistoryClear)))
	api.Handle("GET /api/stats", s.instrument("stats", http.HandlerFunc(s.handleStats)))

	root := http.NewServeMux()
	root.Handle("/api/", authMiddleware(cfg.APIKey, api))
	// Health, readiness, and metrics stay unauthenticated so orchestrators
	// can probe without credentials.
	root.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	root.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	root.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, root),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("docqa server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError maps the pipeline failure taxonomy onto HTTP status codes:
// caller mistakes are 400, an unready index or unreachable store is 503,
// a failing upstream provider is 502, everything else 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, rag.ErrFilterNotIndexed):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrIndexUnavailable), errors.Is(err, rag.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrEmbedderUnavailable),
		errors.Is(err, rag.ErrRerankUnavailable),
		errors.Is(err, rag.ErrGenerationUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to an HTTP status and sends a plain-text error body.
// Internal errors are logged but never echoed to the client verbatim.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("server: internal error", slog.Any("error", err))
		msg = "internal server error"
	}
	http.Error(w, msg, status)
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseFilter converts the wire filterSpec into a rag.Filter. Timestamp
// parse failures are reported as invalid input before any network call.
func parseFilter(spec *filterSpec) (*rag.Filter, error) {
	if spec == nil {
		return nil, nil
	}
	f := &rag.Filter{Match: spec.Match}
	if spec.UpdatedAfter != "" {
		t, err := time.Parse(time.RFC3339, spec.UpdatedAfter)
		if err != nil {
			return nil, fmt.Errorf("server: %w: updated_after: %v", rag.ErrInvalidInput, err)
		}
		f.UpdatedAfter = t
	}
	if spec.UpdatedBefore != "" {
		t, err := time.Parse(time.RFC3339, spec.UpdatedBefore)
		if err != nil {
			return nil, fmt.Errorf("server: %w: updated_before: %v", rag.ErrInvalidInput, err)
		}
		f.UpdatedBefore = t
	}
	return f, nil
}

// newSessionID returns a 16-character random hex session identifier.
func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

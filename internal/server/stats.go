package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
)

// countTimeout bounds the corpus count call so /api/stats stays responsive
// when the store is slow.
const countTimeout = 5 * time.Second

// handleStats handles GET /api/stats: corpus size plus the configured model
// identifiers.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.corpus == nil {
		http.Error(w, "corpus store not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), countTimeout)
	defer cancel()

	count, err := s.corpus.Count(ctx)
	if err != nil {
		logging.FromContext(r.Context()).Warn("stats: corpus count failed", slog.Any("error", err))
		http.Error(w, "corpus store unreachable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		ChunkCount:         count,
		EmbeddingModel:     s.cfg.Stats.EmbeddingModel,
		RerankModel:        s.cfg.Stats.RerankModel,
		EmbeddingDimension: s.cfg.Stats.EmbeddingDimension,
		LLMBackend:         s.cfg.Stats.LLMBackend,
		LLMModel:           s.cfg.Stats.LLMModel,
	})
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/generator"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// handleQuery handles POST /api/query: retrieval-augmented answer generation.
// A memory failure degrades the response (200 with history_degraded:true);
// retrieval and generation failures map to 5xx via the error taxonomy.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	filter, err := parseFilter(req.Filter)
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeError(w, r, err)
		return
	}

	// Assign a session when the client did not supply one so the follow-up
	// question can reference this turn.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queryActive.Inc()
	start := time.Now()

	result, err := s.answerer.Generate(ctx, req.Query, generator.Options{
		SessionID: sessionID,
		Rerank:    req.Rerank,
		Filter:    filter,
	})

	elapsed := time.Since(start)
	s.metrics.queryActive.Dec()

	if err != nil {
		outcome := outcomeForError(err)
		s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
		writeError(w, r, err)
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcomeOK).Observe(elapsed.Seconds())

	if result.HistoryDegraded {
		log.Warn("query answered with degraded history",
			slog.String("session", sessionID),
		)
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:          result.Answer,
		SessionID:       result.SessionID,
		HistoryDegraded: result.HistoryDegraded,
	})
}

// handleSearch handles POST /api/search: raw retrieval without generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	filter, err := parseFilter(req.Filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.retriever.Search(r.Context(), req.Query, rag.SearchOptions{
		K:      req.K,
		Rerank: req.Rerank,
		Filter: filter,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := searchResponse{
		Results:  make([]searchResult, 0, len(result.Results)),
		Reranked: result.Reranked,
	}
	for _, hit := range result.Results {
		resp.Results = append(resp.Results, searchResult{
			Text:       hit.Text,
			Score:      hit.Score,
			SourceID:   hit.SourceID,
			ChunkIndex: hit.Index,
			Metadata: metadataJSON{
				ProductName: hit.Metadata.ProductName,
				ContentType: hit.Metadata.ContentType,
				Tags:        hit.Metadata.Tags,
				Version:     hit.Metadata.Version,
				Updated:     hit.Metadata.Updated,
			},
		})
	}
	resp.Count = len(resp.Results)

	writeJSON(w, http.StatusOK, resp)
}

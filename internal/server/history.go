package server

import (
	"encoding/json"
	"net/http"

	"github.com/54b3r/docqa-go/internal/logging"
)

// handleHistory handles GET /api/history?session=<id>. It returns the
// session's turns oldest first; an unknown session yields an empty list.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history store not configured", http.StatusServiceUnavailable)
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}

	msgs, err := s.history.History(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := historyResponse{Session: session, Messages: make([]historyMessage, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, historyMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHistoryClear handles POST /api/history/clear. Clearing an unknown
// session is a no-op that still returns 204.
func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history store not configured", http.StatusServiceUnavailable)
		return
	}

	var req clearHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Session == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}

	if err := s.history.Clear(r.Context(), req.Session); err != nil {
		writeError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("session history cleared")
	w.WriteHeader(http.StatusNoContent)
}

package http

import "net/http"

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Stats.CategoryBreakdown(r.Context(), rangeRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummaryStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Stats.Summary(r.Context(), rangeRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

package http

import (
	"net/http"

	"findash/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Settings.Get(userOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.deps.Settings.Update(userOf(r), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": out})
}

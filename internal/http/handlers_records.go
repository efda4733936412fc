package http

import (
	"net/http"
)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	typ, err := recordType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := listRequest(r, typ)
	load := s.deps.Pager.Page
	if truthy(r.URL.Query().Get("all")) {
		load = s.deps.Pager.LoadAll
	}
	page, err := load(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	typ, err := recordType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body recordBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Records.Create(r.Context(), typ, body.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	typ, err := recordType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Records.Get(r.Context(), typ, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	typ, err := recordType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body recordBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Records.Update(r.Context(), typ, id, body.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	typ, err := recordType(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Records.Delete(r.Context(), typ, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

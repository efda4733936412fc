package http

import (
	"net/http"
	"strings"

	"findash/internal/core"
)

type lookupBody struct {
	Name string   `json:"name"`
	Code string   `json:"code"`
	Rate *float64 `json:"rate"`
}

// key returns the code, falling back to name, then to the query string.
func (b lookupBody) key(r *http.Request) string {
	for _, v := range []string{b.Code, b.Name, r.URL.Query().Get("code"), r.URL.Query().Get("name")} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type currenciesResponse struct {
	OK bool `json:"ok,omitempty"`
	core.CurrencyList
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Lookups.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var body lookupBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.deps.Lookups.AddCategory(r.Context(), body.key(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "categories": cats})
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	var body lookupBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.deps.Lookups.RemoveCategory(r.Context(), body.key(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "categories": cats})
}

func (s *Server) handleListCurrencies(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Lookups.Currencies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currenciesResponse{CurrencyList: list})
}

func (s *Server) handleAddCurrency(w http.ResponseWriter, r *http.Request) {
	var body lookupBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	rate := 1.0
	if body.Rate != nil {
		rate = *body.Rate
	}
	list, err := s.deps.Lookups.AddCurrency(r.Context(), body.key(r), rate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currenciesResponse{OK: true, CurrencyList: list})
}

func (s *Server) handleRemoveCurrency(w http.ResponseWriter, r *http.Request) {
	var body lookupBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.deps.Lookups.RemoveCurrency(r.Context(), body.key(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currenciesResponse{OK: true, CurrencyList: list})
}

func (s *Server) handleSetRates(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if len(body.Rates) == 0 {
		writeError(w, r, core.Validation(core.CodeInvalidRate, "rates must be a non-empty object"))
		return
	}
	list, err := s.deps.Lookups.SetRates(r.Context(), body.Rates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currenciesResponse{OK: true, CurrencyList: list})
}

func (s *Server) handleWho(w http.ResponseWriter, r *http.Request) {
	options, err := s.deps.Who.Get(r.Context(), truthy(r.URL.Query().Get("force")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": options})
}

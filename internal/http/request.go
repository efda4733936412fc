package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"findash/internal/core"
	"findash/internal/daterange"
	"findash/internal/query"
	"findash/internal/settings"
)

// sanitizeInput trims and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func recordType(r *http.Request) (core.RecordType, error) {
	typ, err := core.ParseRecordType(chi.URLParam(r, "type"))
	if err != nil {
		return "", core.Invalid(core.CodeInvalidType, err)
	}
	return typ, nil
}

func recordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid(core.CodeInvalidID, core.ErrInvalidID)
	}
	return id, nil
}

// listRequest reads the listing filters. A missing or malformed limit
// gets the default.
func listRequest(r *http.Request, typ core.RecordType) query.ListRequest {
	q := r.URL.Query()
	return query.ListRequest{
		Type:        typ,
		Category:    sanitizeInput(q.Get("category")),
		Currency:    sanitizeInput(q.Get("currency")),
		Who:         sanitizeInput(q.Get("who")),
		Description: sanitizeInput(q.Get("desc")),
		Period:      strings.TrimSpace(q.Get("period")),
		From:        strings.TrimSpace(q.Get("from")),
		To:          strings.TrimSpace(q.Get("to")),
		SortKey:     strings.TrimSpace(q.Get("sortKey")),
		SortDir:     strings.TrimSpace(q.Get("sortDir")),
		Limit:       query.ParseLimit(q.Get("limit")),
		Cursor:      strings.TrimSpace(q.Get("cursor")),
	}
}

func rangeRequest(r *http.Request) daterange.Request {
	q := r.URL.Query()
	return daterange.Request{
		Period:    strings.TrimSpace(q.Get("period")),
		FromMonth: strings.TrimSpace(q.Get("fromMonth")),
		ToMonth:   strings.TrimSpace(q.Get("toMonth")),
	}
}

// userOf names the settings owner; there is no authentication.
func userOf(r *http.Request) string {
	if u := sanitizeInput(r.Header.Get("X-User")); u != "" {
		return u
	}
	return settings.DefaultUser
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// recordBody accepts "categories" as an alias of "category", the field
// name older clients send.
type recordBody struct {
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Categories  *string  `json:"categories"`
	Amount      *float64 `json:"amount"`
	Currency    *string  `json:"currency"`
	Date        *string  `json:"date"`
	Who         *string  `json:"who"`
}

func (b recordBody) category() *string {
	if b.Category != nil {
		return b.Category
	}
	return b.Categories
}

func (b recordBody) input() core.RecordInput {
	in := core.RecordInput{
		Description: sanitizeInput(core.Deref(b.Description)),
		Category:    core.Deref(b.category()),
		Currency:    core.Deref(b.Currency),
		Date:        core.Deref(b.Date),
		Who:         core.Deref(b.Who),
	}
	if b.Amount != nil {
		in.Amount = *b.Amount
	}
	return in
}

func (b recordBody) patch() core.RecordPatch {
	p := core.RecordPatch{
		Category: b.category(),
		Amount:   b.Amount,
		Currency: b.Currency,
		Date:     b.Date,
		Who:      b.Who,
	}
	if b.Description != nil {
		d := sanitizeInput(*b.Description)
		p.Description = &d
	}
	return p
}

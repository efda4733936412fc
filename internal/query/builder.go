// Package query turns record listing requests into bounded, totally ordered
// SQL fragments and pages through them with opaque offset cursors.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"findash/internal/core"
	"findash/internal/daterange"
	"findash/internal/storage"
)

// Listing periods. These differ from the stats tokens in daterange.
const (
	PeriodToday      = "today"
	PeriodLastWeek   = "last_week"
	PeriodLastMonth  = "last_month"
	PeriodLast30Days = "last_30_days"
)

const (
	SortDate        = "date"
	SortAmount      = "amount"
	SortDescription = "description"

	DirAsc  = "asc"
	DirDesc = "desc"

	DefaultLimit = 20
	MaxLimit     = 100
)

// ListRequest is the listing contract shared by the HTTP and CLI layers.
type ListRequest struct {
	Type        core.RecordType
	Category    string
	Currency    string
	Who         string
	Description string
	Period      string
	From        string
	To          string
	SortKey     string
	SortDir     string
	// Limit zero means unset and gets DefaultLimit.
	Limit       int
	Cursor      string
}

// Query is a built listing: trusted SQL fragments plus positional args.
type Query struct {
	Where   string
	Args    []any
	OrderBy string
	Limit   int
	Offset  int
	// Signature identifies the filter and sort the offset belongs to.
	Signature string
}

// Build validates req and expands it against now in loc.
func Build(req ListRequest, now time.Time, loc *time.Location) (Query, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := req.Type.Validate(); err != nil {
		return Query{}, core.Invalid(core.CodeInvalidType, err)
	}

	var (
		clauses = []string{"type = ?"}
		args    = []any{string(req.Type)}
	)
	add := func(clause string, values ...any) {
		clauses = append(clauses, clause)
		args = append(args, values...)
	}

	if v := core.NormalizeLookup(req.Category, false); v != "" {
		add("category = ?", v)
	}
	if v := core.NormalizeLookup(req.Currency, true); v != "" {
		add("currency = ?", v)
	}
	// instr is case-sensitive regardless of collation, unlike LIKE.
	if v := strings.TrimSpace(req.Who); v != "" {
		add("instr(who, ?) > 0", v)
	}
	if v := strings.TrimSpace(req.Description); v != "" {
		add("instr(description, ?) > 0", v)
	}

	switch strings.TrimSpace(req.Period) {
	case "":
	case PeriodToday:
		add(storage.DateColumn+" = ?", daterange.Today(now, loc))
	case PeriodLastWeek:
		add("date >= ?", now.UTC().AddDate(0, 0, -7).Format(core.TimestampLayout))
	case PeriodLastMonth:
		r := daterange.Resolve(now, loc, daterange.Request{Period: daterange.LastMonth}, daterange.Options{})
		add(storage.DateColumn+" BETWEEN ? AND ?", *r.Start, *r.End)
	case PeriodLast30Days:
		add("date >= ?", now.UTC().AddDate(0, 0, -30).Format(core.TimestampLayout))
	default:
		return Query{}, core.Validation(core.CodeInvalidPeriod, fmt.Sprintf("unknown period %q", req.Period))
	}

	if v := strings.TrimSpace(req.From); v != "" {
		if !isDay(v) {
			return Query{}, core.Validation(core.CodeInvalidDate, fmt.Sprintf("invalid from date %q", v))
		}
		add(storage.DateColumn+" >= ?", v)
	}
	if v := strings.TrimSpace(req.To); v != "" {
		if !isDay(v) {
			return Query{}, core.Validation(core.CodeInvalidDate, fmt.Sprintf("invalid to date %q", v))
		}
		add(storage.DateColumn+" <= ?", v)
	}

	key, dir := normalizeSort(req.SortKey, req.SortDir)
	q := Query{
		Where:   strings.Join(clauses, " AND "),
		Args:    args,
		OrderBy: orderBy(key, dir),
		Limit:   ClampLimit(req.Limit),
	}
	q.Signature = signature(req, key, dir)

	offset, err := DecodeCursor(req.Cursor, q.Signature)
	if err != nil {
		return Query{}, err
	}
	q.Offset = offset
	return q, nil
}

// ParseLimit reads a limit query value. An empty or malformed value is
// unset; anything else is clamped to [1, MaxLimit], so "0" reads one row.
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return min(max(n, 1), MaxLimit)
}

// ClampLimit applies the default for an unset limit and the [1, MaxLimit]
// bounds.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultLimit
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

func normalizeSort(key, dir string) (string, string) {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case SortAmount, SortDescription:
	default:
		key = SortDate
	}
	dir = strings.ToLower(strings.TrimSpace(dir))
	if dir != DirAsc {
		dir = DirDesc
	}
	return key, dir
}

// orderBy always ends in id so rows with equal keys keep a fixed order
// between page fetches. Date sorts use the stored instant, not the local day.
func orderBy(key, dir string) string {
	d := strings.ToUpper(dir)
	switch key {
	case SortAmount:
		return fmt.Sprintf("amount %s, id %s", d, d)
	case SortDescription:
		return fmt.Sprintf("description %s, id %s", d, d)
	}
	return fmt.Sprintf("date %s, id %s", d, d)
}

func isDay(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// Package daterange turns period tokens and month bounds into inclusive
// calendar-day ranges compared against a record's dateLocal.
package daterange

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"findash/internal/core"
)

// Period tokens understood by Resolve.
const (
	ThisMonth  = "this_month"
	LastMonth  = "last_month"
	Last30Days = "last_30_days"
	All        = "all"
	Custom     = "custom"
)

var monthPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// Options tune the fallbacks of Resolve.
type Options struct {
	// IncludeAll honours the "all" token. Without it "all" falls through
	// to the default.
	IncludeAll bool
	// DefaultToCurrentMonth resolves a missing or unmatched period to the
	// current calendar month instead of an unbounded range.
	DefaultToCurrentMonth bool
}

// Request is the raw period selection of a stats call.
type Request struct {
	Period    string
	FromMonth string
	ToMonth   string
}

// ValidatePeriod rejects tokens Resolve does not know. The empty token is
// valid.
func ValidatePeriod(period string) error {
	switch strings.TrimSpace(period) {
	case "", ThisMonth, LastMonth, Last30Days, All, Custom:
		return nil
	}
	return core.Validation(core.CodeInvalidPeriod, "unknown period "+strconv.Quote(period))
}

// Resolve maps a request onto a range of calendar days in loc. Rules apply
// in order: last_month, last_30_days, this_month (or no period at all
// with DefaultToCurrentMonth), all, custom or explicit months, default.
func Resolve(now time.Time, loc *time.Location, req Request, opts Options) core.DateRange {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	period := strings.TrimSpace(req.Period)
	fromMonth := strings.TrimSpace(req.FromMonth)
	toMonth := strings.TrimSpace(req.ToMonth)
	hasMonths := fromMonth != "" || toMonth != ""

	switch {
	case period == LastMonth:
		// Month arithmetic on a UTC anchor so DST shifts cannot move the
		// result into the wrong month.
		prev := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return MonthRange(prev.Year(), prev.Month())
	case period == Last30Days:
		return bounded(day(now.AddDate(0, 0, -30)), day(now))
	case period == ThisMonth, period == "" && opts.DefaultToCurrentMonth:
		return MonthRange(now.Year(), now.Month())
	case period == All && opts.IncludeAll:
		return core.DateRange{}
	case period == Custom || hasMonths:
		start := ParseMonthStart(fromMonth)
		end := ParseMonthEnd(toMonth)
		if start != nil && end != nil && *start > *end {
			start, end = ParseMonthStart(toMonth), ParseMonthEnd(fromMonth)
		}
		return core.DateRange{Start: start, End: end}
	case opts.DefaultToCurrentMonth:
		return MonthRange(now.Year(), now.Month())
	}
	return core.DateRange{}
}

// MonthRange returns the first and last day of a calendar month.
func MonthRange(year int, month time.Month) core.DateRange {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return bounded(day(first), day(last))
}

// ParseMonthStart returns day 1 of a YYYY-MM month, or nil when value is
// not a valid month.
func ParseMonthStart(value string) *string {
	y, m, ok := parseMonth(value)
	if !ok {
		return nil
	}
	return MonthRange(y, m).Start
}

// ParseMonthEnd returns the last day of a YYYY-MM month, or nil.
func ParseMonthEnd(value string) *string {
	y, m, ok := parseMonth(value)
	if !ok {
		return nil
	}
	return MonthRange(y, m).End
}

func parseMonth(value string) (int, time.Month, bool) {
	match := monthPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return 0, 0, false
	}
	year, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, time.Month(month), true
}

// Today is the calendar day of now in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return day(now.In(loc))
}

func day(t time.Time) string {
	return t.Format(time.DateOnly)
}

func bounded(start, end string) core.DateRange {
	return core.DateRange{Start: &start, End: &end}
}

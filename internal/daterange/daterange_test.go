package daterange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"findash/internal/core"
)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func rng(start, end string) core.DateRange {
	r := core.DateRange{}
	if start != "" {
		r.Start = &start
	}
	if end != "" {
		r.End = &end
	}
	return r
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		req  Request
		opts Options
		want core.DateRange
	}{
		{
			name: "this month in a leap february",
			now:  at(2024, time.February, 15),
			req:  Request{Period: ThisMonth},
			want: rng("2024-02-01", "2024-02-29"),
		},
		{
			name: "last month from the first of march",
			now:  at(2024, time.March, 1),
			req:  Request{Period: LastMonth},
			want: rng("2024-02-01", "2024-02-29"),
		},
		{
			name: "last month across a year boundary",
			now:  at(2024, time.January, 10),
			req:  Request{Period: LastMonth},
			want: rng("2023-12-01", "2023-12-31"),
		},
		{
			name: "last 30 days is a rolling window",
			now:  at(2024, time.March, 15),
			req:  Request{Period: Last30Days},
			want: rng("2024-02-14", "2024-03-15"),
		},
		{
			name: "custom months are swapped when reversed",
			now:  at(2024, time.June, 1),
			req:  Request{Period: Custom, FromMonth: "2024-05", ToMonth: "2024-03"},
			want: rng("2024-03-01", "2024-05-31"),
		},
		{
			name: "open ended custom range",
			now:  at(2024, time.June, 1),
			req:  Request{Period: Custom, FromMonth: "2024-04"},
			want: rng("2024-04-01", ""),
		},
		{
			name: "months without a period use the current month when defaulting",
			now:  at(2024, time.June, 1),
			req:  Request{FromMonth: "2024-01", ToMonth: "2024-02"},
			opts: Options{DefaultToCurrentMonth: true},
			want: rng("2024-06-01", "2024-06-30"),
		},
		{
			name: "months without a period are a custom range otherwise",
			now:  at(2024, time.June, 1),
			req:  Request{ToMonth: "2024-02"},
			want: rng("", "2024-02-29"),
		},
		{
			name: "invalid month is ignored",
			now:  at(2024, time.June, 1),
			req:  Request{Period: Custom, FromMonth: "2024-13", ToMonth: "2024-07"},
			want: rng("", "2024-07-31"),
		},
		{
			name: "all honoured when allowed",
			now:  at(2024, time.June, 1),
			req:  Request{Period: All},
			opts: Options{IncludeAll: true, DefaultToCurrentMonth: true},
			want: core.DateRange{},
		},
		{
			name: "all falls back to the current month when not allowed",
			now:  at(2024, time.June, 1),
			req:  Request{Period: All},
			opts: Options{DefaultToCurrentMonth: true},
			want: rng("2024-06-01", "2024-06-30"),
		},
		{
			name: "no period defaults to the current month",
			now:  at(2024, time.April, 30),
			opts: Options{DefaultToCurrentMonth: true},
			want: rng("2024-04-01", "2024-04-30"),
		},
		{
			name: "no period without default is unbounded",
			now:  at(2024, time.April, 30),
			want: core.DateRange{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.now, time.UTC, tt.req, tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUsesLocalCalendar(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 22:30 UTC on Feb 29 is already March 1 in loc.
	now := time.Date(2024, time.February, 29, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, rng("2024-03-01", "2024-03-31"), Resolve(now, loc, Request{Period: ThisMonth}, Options{}))
	assert.Equal(t, rng("2024-02-01", "2024-02-29"), Resolve(now, loc, Request{Period: LastMonth}, Options{}))
	assert.Equal(t, "2024-03-01", Today(now, loc))
}

func TestValidatePeriod(t *testing.T) {
	for _, p := range []string{"", ThisMonth, LastMonth, Last30Days, All, Custom} {
		assert.NoError(t, ValidatePeriod(p), p)
	}
	err := ValidatePeriod("fortnight")
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, core.CodeInvalidPeriod, core.CodeOf(err))
}

func TestParseMonthBounds(t *testing.T) {
	assert.Equal(t, "2023-02-28", *ParseMonthEnd("2023-02"))
	assert.Equal(t, "2023-02-01", *ParseMonthStart(" 2023-02 "))
	assert.Nil(t, ParseMonthStart("2023-2"))
	assert.Nil(t, ParseMonthEnd("february"))
}

// Package stats aggregates USD totals over resolved date ranges.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"findash/internal/core"
	"findash/internal/daterange"
	applog "findash/internal/log"
	"findash/internal/metrics"
	"findash/internal/storage"
)

// Source is the read side the aggregator needs. *storage.Handle satisfies it.
type Source interface {
	SumByCategory(ctx context.Context, typ core.RecordType, r core.DateRange) ([]storage.CategorySum, error)
	SumByType(ctx context.Context, typ core.RecordType, r core.DateRange) (float64, int64, error)
}

type Aggregator struct {
	src    Source
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewAggregator(src Source, loc *time.Location, logger *slog.Logger) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{src: src, loc: loc, now: time.Now, logger: logger}
}

// CategoryBreakdown sums expenses per category. "all" is not honoured and
// an empty selection means the current month.
func (a *Aggregator) CategoryBreakdown(ctx context.Context, req daterange.Request) (core.CategoryBreakdown, error) {
	if err := daterange.ValidatePeriod(req.Period); err != nil {
		return core.CategoryBreakdown{}, err
	}
	start := time.Now()
	defer metrics.ObserveSince(metrics.StatsDuration.WithLabelValues("categories"), start)

	r := daterange.Resolve(a.now(), a.loc, req, daterange.Options{DefaultToCurrentMonth: true})
	sums, err := a.src.SumByCategory(ctx, core.Expenses, r)
	if err != nil {
		return core.CategoryBreakdown{}, fmt.Errorf("category breakdown: %w", err)
	}

	items := make([]core.CategoryAmount, 0, len(sums))
	rounded := make([]float64, 0, len(sums))
	for _, s := range sums {
		name := core.Deref(s.Category)
		if name == "" {
			name = core.UnknownCategory
		}
		usd := core.Round2(s.USD)
		items = append(items, core.CategoryAmount{Category: name, USD: usd, Count: s.Count})
		rounded = append(rounded, usd)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].USD != items[j].USD {
			return items[i].USD > items[j].USD
		}
		return items[i].Category < items[j].Category
	})

	a.logger.Debug("Computed category breakdown", applog.FieldPeriod, req.Period, "items", len(items))
	return core.CategoryBreakdown{
		Period:   r,
		TotalUSD: core.SumRounded(rounded...),
		Items:    items,
	}, nil
}

// Summary totals expenses and income independently. Unlike the breakdown
// it honours "all".
func (a *Aggregator) Summary(ctx context.Context, req daterange.Request) (core.Summary, error) {
	if err := daterange.ValidatePeriod(req.Period); err != nil {
		return core.Summary{}, err
	}
	start := time.Now()
	defer metrics.ObserveSince(metrics.StatsDuration.WithLabelValues("summary"), start)

	r := daterange.Resolve(a.now(), a.loc, req, daterange.Options{IncludeAll: true, DefaultToCurrentMonth: true})

	var expenses, income core.Totals
	g, gctx := errgroup.WithContext(ctx)
	for _, side := range []struct {
		typ core.RecordType
		out *core.Totals
	}{{core.Expenses, &expenses}, {core.Income, &income}} {
		g.Go(func() error {
			total, count, err := a.src.SumByType(gctx, side.typ, r)
			if err != nil {
				return fmt.Errorf("summary %s: %w", side.typ, err)
			}
			*side.out = core.Totals{TotalUSD: core.Round2(total), Count: count}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Summary{}, err
	}

	return core.Summary{
		Period:   r,
		Expenses: expenses,
		Income:   income,
		NetUSD:   core.Sub2(income.TotalUSD, expenses.TotalUSD),
	}, nil
}

package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"findash/internal/core"
	applog "findash/internal/log"
	"findash/internal/metrics"
)

// MaxLoadAllPages bounds LoadAll.
const MaxLoadAllPages = 50

// RecordQuerier runs a built query. *storage.Handle satisfies it.
type RecordQuerier interface {
	SelectRecords(ctx context.Context, where string, args []any, orderBy string, limit, offset int) ([]core.Record, error)
}

// Page is one listing response.
type Page struct {
	Results    []core.Record `json:"results"`
	HasMore    bool          `json:"has_more"`
	NextCursor *string       `json:"next_cursor"`
}

// Pager is stateless; each call builds and runs a fresh query.
type Pager struct {
	src    RecordQuerier
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewPager creates a pager over src. loc decides calendar days.
func NewPager(src RecordQuerier, loc *time.Location, logger *slog.Logger) *Pager {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pager{src: src, loc: loc, now: time.Now, logger: logger}
}

// Page fetches one page. It asks for one row more than the limit so
// HasMore is exact even when the remainder is a multiple of the limit.
func (p *Pager) Page(ctx context.Context, req ListRequest) (Page, error) {
	q, err := Build(req, p.now(), p.loc)
	if err != nil {
		return Page{}, err
	}
	return p.fetch(ctx, req.Type, q)
}

func (p *Pager) fetch(ctx context.Context, typ core.RecordType, q Query) (Page, error) {
	start := time.Now()
	defer metrics.ObserveSince(metrics.ListDuration.WithLabelValues(string(typ)), start)

	rows, err := p.src.SelectRecords(ctx, q.Where, q.Args, q.OrderBy, q.Limit+1, q.Offset)
	if err != nil {
		return Page{}, fmt.Errorf("list %s: %w", typ, err)
	}

	page := Page{Results: rows}
	if len(rows) > q.Limit {
		page.Results = rows[:q.Limit]
		page.HasMore = true
		next := EncodeCursor(q.Offset+q.Limit, q.Signature)
		page.NextCursor = &next
	}
	if page.Results == nil {
		page.Results = []core.Record{}
	}

	p.logger.Debug("Listed records",
		applog.FieldRecordType, typ,
		applog.FieldOffset, q.Offset,
		applog.FieldLimit, q.Limit,
		applog.FieldRows, len(page.Results))
	return page, nil
}

// LoadAll follows cursors from req.Cursor until the listing is exhausted or
// MaxLoadAllPages pages were read. The returned page carries HasMore and
// NextCursor when the bound cut it short. A zero limit reads MaxLimit rows
// per page.
func (p *Pager) LoadAll(ctx context.Context, req ListRequest) (Page, error) {
	if req.Limit == 0 {
		req.Limit = MaxLimit
	}
	q, err := Build(req, p.now(), p.loc)
	if err != nil {
		return Page{}, err
	}

	all := Page{Results: []core.Record{}}
	for i := 0; i < MaxLoadAllPages; i++ {
		page, err := p.fetch(ctx, req.Type, q)
		if err != nil {
			return Page{}, err
		}
		all.Results = append(all.Results, page.Results...)
		all.HasMore, all.NextCursor = page.HasMore, page.NextCursor
		if !page.HasMore {
			return all, nil
		}
		q.Offset += q.Limit
	}

	p.logger.Warn("Load-all stopped at page bound",
		applog.FieldRecordType, req.Type,
		"pages", MaxLoadAllPages,
		applog.FieldRows, len(all.Results))
	return all, nil
}

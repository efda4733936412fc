package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"findash/internal/core"
)

// CategorySum is the raw, unrounded total for one category.
type CategorySum struct {
	Category *string
	USD      float64
	Count    int64
}

func rangeClauses(where []string, args []any, r core.DateRange) ([]string, []any) {
	if r.Start != nil {
		where = append(where, DateColumn+" >= ?")
		args = append(args, *r.Start)
	}
	if r.End != nil {
		where = append(where, DateColumn+" <= ?")
		args = append(args, *r.End)
	}
	return where, args
}

// SumByCategory groups records of typ within r by category.
func (h *Handle) SumByCategory(ctx context.Context, typ core.RecordType, r core.DateRange) ([]CategorySum, error) {
	where, args := rangeClauses([]string{"type = ?"}, []any{string(typ)}, r)
	q := "SELECT category, COALESCE(SUM(usd_amount), 0), COUNT(*) FROM records WHERE " +
		strings.Join(where, " AND ") + " GROUP BY category"

	var out []CategorySum
	err := h.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("sum by category: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cat sql.NullString
				s   CategorySum
			)
			if err := rows.Scan(&cat, &s.USD, &s.Count); err != nil {
				return fmt.Errorf("scan category sum: %w", err)
			}
			s.Category = nullable(cat)
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

// SumByType returns the raw USD total and count of records of typ within r.
func (h *Handle) SumByType(ctx context.Context, typ core.RecordType, r core.DateRange) (float64, int64, error) {
	where, args := rangeClauses([]string{"type = ?"}, []any{string(typ)}, r)
	q := "SELECT COALESCE(SUM(usd_amount), 0), COUNT(*) FROM records WHERE " + strings.Join(where, " AND ")

	var (
		total float64
		count int64
	)
	err := h.withDB(func(db *sql.DB) error {
		return db.QueryRowContext(ctx, q, args...).Scan(&total, &count)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("sum by type: %w", err)
	}
	return total, count, nil
}

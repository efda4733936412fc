package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"findash/internal/core"
)

// DateColumn is the calendar-day expression every range filter compares
// against. Rows migrated from before date_local existed fall back to the
// UTC day of their timestamp.
const DateColumn = "COALESCE(date_local, substr(date, 1, 10))"

const recordColumns = "id, type, description, category, amount, currency, date, date_local, who, usd_amount"

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.Record, error) {
	var (
		r                                     core.Record
		typ                                   string
		desc, category, currency, date, local sql.NullString
		who                                   sql.NullString
		amount, usd                           sql.NullFloat64
	)
	if err := s.Scan(&r.ID, &typ, &desc, &category, &amount, &currency, &date, &local, &who, &usd); err != nil {
		return core.Record{}, err
	}
	r.Type = core.RecordType(typ)
	r.Description = desc.String
	r.Category = nullable(category)
	r.Amount = amount.Float64
	r.Currency = nullable(currency)
	r.Date = nullable(date)
	r.DateLocal = nullable(local)
	r.Who = nullable(who)
	r.USDAmount = usd.Float64
	return r, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	v := s.String
	return &v
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// rateTx reads a currency rate inside tx. USD, empty and unknown codes are 1.
func rateTx(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, code string) (float64, error) {
	code = core.NormalizeLookup(code, true)
	if code == "" || code == core.BaseCurrency {
		return 1, nil
	}
	var rate sql.NullFloat64
	err := q.QueryRowContext(ctx, "SELECT rate FROM currencies WHERE code = ? COLLATE NOCASE", code).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !rate.Valid) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read currency rate: %w", err)
	}
	return core.NormalizeRate(rate.Float64), nil
}

// CreateRecord inserts a record, snapshotting usdAmount from the current
// rate of its currency.
func (h *Handle) CreateRecord(ctx context.Context, typ core.RecordType, in core.RecordInput, now time.Time) (core.Record, error) {
	if err := typ.Validate(); err != nil {
		return core.Record{}, core.Invalid(core.CodeInvalidType, err)
	}
	if err := core.ValidateAmount(in.Amount); err != nil {
		return core.Record{}, core.Invalid(core.CodeInvalidAmount, err)
	}

	var iso, local string
	if strings.TrimSpace(in.Date) == "" {
		iso = now.UTC().Format(core.TimestampLayout)
		local = now.In(h.loc).Format(time.DateOnly)
	} else {
		var err error
		iso, local, err = core.NormalizeDate(in.Date, h.loc)
		if err != nil {
			return core.Record{}, core.Invalid(core.CodeInvalidDate, err)
		}
	}

	category := core.NormalizeLookup(in.Category, false)
	currency := core.NormalizeLookup(in.Currency, true)
	who := strings.TrimSpace(in.Who)

	var rec core.Record
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		rate, err := rateTx(ctx, tx, currency)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO records (type, description, category, amount, currency, date, date_local, who, usd_amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(typ), in.Description, nullString(&category), in.Amount, nullString(&currency),
			iso, local, nullString(&who), core.ComputeUSD(in.Amount, rate))
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read record id: %w", err)
		}
		rec, err = scanRecord(tx.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id))
		if err != nil {
			return fmt.Errorf("read created record: %w", err)
		}
		return nil
	})
	return rec, err
}

// GetRecord loads one record by id.
func (h *Handle) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	var rec core.Record
	err := h.withDB(func(db *sql.DB) error {
		var err error
		rec, err = scanRecord(db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFound(core.CodeNotFound, fmt.Sprintf("record %d not found", id))
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		return nil
	})
	return rec, err
}

// UpdateRecord applies a partial update. usdAmount is always recomputed
// from the current rate; dateLocal follows date when the date changes.
func (h *Handle) UpdateRecord(ctx context.Context, id int64, p core.RecordPatch) (core.Record, error) {
	if err := p.Validate(); err != nil {
		code := core.CodeInvalidAmount
		if errors.Is(err, core.ErrInvalidDate) {
			code = core.CodeInvalidDate
		}
		return core.Record{}, core.Invalid(code, err)
	}

	var rec core.Record
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanRecord(tx.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFound(core.CodeNotFound, fmt.Sprintf("record %d not found", id))
		}
		if err != nil {
			return fmt.Errorf("load record: %w", err)
		}

		next := prev
		if p.Description != nil {
			next.Description = *p.Description
		}
		if p.Category != nil {
			next.Category = core.StringPtr(core.NormalizeLookup(*p.Category, false))
		}
		if p.Amount != nil {
			next.Amount = *p.Amount
		}
		if p.Currency != nil {
			next.Currency = core.StringPtr(core.NormalizeLookup(*p.Currency, true))
		}
		if p.Who != nil {
			next.Who = core.StringPtr(strings.TrimSpace(*p.Who))
		}
		if p.Date != nil {
			if strings.TrimSpace(*p.Date) == "" {
				next.Date, next.DateLocal = nil, nil
			} else {
				iso, local, err := core.NormalizeDate(*p.Date, h.loc)
				if err != nil {
					return core.Invalid(core.CodeInvalidDate, err)
				}
				next.Date, next.DateLocal = &iso, &local
			}
		}

		rate, err := rateTx(ctx, tx, core.Deref(next.Currency))
		if err != nil {
			return err
		}
		next.USDAmount = core.ComputeUSD(next.Amount, rate)

		_, err = tx.ExecContext(ctx,
			`UPDATE records SET description = ?, category = ?, amount = ?, currency = ?,
			 date = ?, date_local = ?, who = ?, usd_amount = ? WHERE id = ?`,
			next.Description, nullString(next.Category), next.Amount, nullString(next.Currency),
			nullString(next.Date), nullString(next.DateLocal), nullString(next.Who), next.USDAmount, id)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		rec = next
		return nil
	})
	return rec, err
}

// DeleteRecord removes a record.
func (h *Handle) DeleteRecord(ctx context.Context, id int64) error {
	return h.withDB(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if n == 0 {
			return core.NotFound(core.CodeNotFound, fmt.Sprintf("record %d not found", id))
		}
		return nil
	})
}

// SelectRecords runs a record query built by the query layer. where and
// orderBy are trusted SQL fragments; every user value must be in args.
func (h *Handle) SelectRecords(ctx context.Context, where string, args []any, orderBy string, limit, offset int) ([]core.Record, error) {
	var out []core.Record
	err := h.withDB(func(db *sql.DB) error {
		q := "SELECT " + recordColumns + " FROM records"
		if where != "" {
			q += " WHERE " + where
		}
		if orderBy != "" {
			q += " ORDER BY " + orderBy
		}
		q += " LIMIT ? OFFSET ?"

		rows, err := db.QueryContext(ctx, q, append(append([]any{}, args...), limit, offset)...)
		if err != nil {
			return fmt.Errorf("select records: %w", err)
		}
		defer rows.Close()

		out = make([]core.Record, 0, limit)
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return fmt.Errorf("scan record: %w", err)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// CountRecords returns the number of records of the given type.
func (h *Handle) CountRecords(ctx context.Context, typ core.RecordType) (int64, error) {
	var n int64
	err := h.withDB(func(db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE type = ?", string(typ)).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// DistinctWho lists the non-empty attribution values, sorted
// case-insensitively.
func (h *Handle) DistinctWho(ctx context.Context) ([]string, error) {
	var out []string
	err := h.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT DISTINCT who FROM records WHERE who IS NOT NULL AND who != '' ORDER BY who COLLATE NOCASE")
		if err != nil {
			return fmt.Errorf("select who: %w", err)
		}
		defer rows.Close()
		out = []string{}
		for rows.Next() {
			var who string
			if err := rows.Scan(&who); err != nil {
				return fmt.Errorf("scan who: %w", err)
			}
			out = append(out, who)
		}
		return rows.Err()
	})
	return out, err
}

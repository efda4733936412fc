package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"findash/internal/core"
)

// ListCategories returns category names ordered case-insensitively.
func (h *Handle) ListCategories(ctx context.Context) ([]string, error) {
	var out []string
	err := h.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, "SELECT name FROM categories ORDER BY name COLLATE NOCASE")
		if err != nil {
			return fmt.Errorf("select categories: %w", err)
		}
		defer rows.Close()
		out = []string{}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scan category: %w", err)
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	return out, err
}

// AddCategory inserts a category. Names are unique ignoring case.
func (h *Handle) AddCategory(ctx context.Context, name string) (string, error) {
	name = core.NormalizeLookup(name, false)
	if name == "" {
		return "", core.Validation(core.CodeCategoryRequired, "category name is required")
	}
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM categories WHERE name = ? COLLATE NOCASE", name).Scan(&exists)
		if err == nil {
			return core.Conflict(core.CodeCategoryExists, fmt.Sprintf("category %q already exists", name))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check category: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO categories(name) VALUES (?)", name); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
		return nil
	})
	return name, err
}

// RemoveCategory deletes a category and detaches it from every record that
// referenced it. Records themselves are kept.
func (h *Handle) RemoveCategory(ctx context.Context, name string) (int64, error) {
	name = core.NormalizeLookup(name, false)
	if name == "" {
		return 0, core.Validation(core.CodeCategoryRequired, "category name is required")
	}
	var detached int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE name = ? COLLATE NOCASE", name)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.NotFound(core.CodeCategoryNotFound, fmt.Sprintf("category %q not found", name))
		}
		res, err = tx.ExecContext(ctx, "UPDATE records SET category = NULL WHERE category = ? COLLATE NOCASE", name)
		if err != nil {
			return fmt.Errorf("detach category: %w", err)
		}
		detached, _ = res.RowsAffected()
		return nil
	})
	return detached, err
}

// ListCurrencies returns codes ordered alphabetically with their rates.
func (h *Handle) ListCurrencies(ctx context.Context) (core.CurrencyList, error) {
	out := core.CurrencyList{Currencies: []string{}, Rates: map[string]float64{}}
	err := h.withDB(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, "SELECT code, rate FROM currencies ORDER BY code COLLATE NOCASE")
		if err != nil {
			return fmt.Errorf("select currencies: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				code string
				rate sql.NullFloat64
			)
			if err := rows.Scan(&code, &rate); err != nil {
				return fmt.Errorf("scan currency: %w", err)
			}
			code = core.NormalizeLookup(code, true)
			out.Currencies = append(out.Currencies, code)
			out.Rates[code] = core.NormalizeRate(rate.Float64)
		}
		return rows.Err()
	})
	return out, err
}

// AddCurrency inserts a currency code (stored upper-case) with a rate.
// Invalid rates are stored as 1.
func (h *Handle) AddCurrency(ctx context.Context, code string, rate float64) (string, error) {
	code = core.NormalizeLookup(code, true)
	if code == "" {
		return "", core.Validation(core.CodeCurrencyRequired, "currency code is required")
	}
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM currencies WHERE code = ? COLLATE NOCASE", code).Scan(&exists)
		if err == nil {
			return core.Conflict(core.CodeCurrencyExists, fmt.Sprintf("currency %q already exists", code))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check currency: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO currencies(code, rate) VALUES (?, ?)", code, core.NormalizeRate(rate)); err != nil {
			return fmt.Errorf("insert currency: %w", err)
		}
		return nil
	})
	return code, err
}

// RemoveCurrency deletes a currency and nulls it on referencing records.
// Their usdAmount snapshots are left as they were.
func (h *Handle) RemoveCurrency(ctx context.Context, code string) (int64, error) {
	code = core.NormalizeLookup(code, true)
	if code == "" {
		return 0, core.Validation(core.CodeCurrencyRequired, "currency code is required")
	}
	var detached int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM currencies WHERE code = ? COLLATE NOCASE", code)
		if err != nil {
			return fmt.Errorf("delete currency: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.NotFound(core.CodeCurrencyNotFound, fmt.Sprintf("currency %q not found", code))
		}
		res, err = tx.ExecContext(ctx, "UPDATE records SET currency = NULL WHERE currency = ? COLLATE NOCASE", code)
		if err != nil {
			return fmt.Errorf("detach currency: %w", err)
		}
		detached, _ = res.RowsAffected()
		return nil
	})
	return detached, err
}

// SetCurrencyRates updates several rates in one transaction. Codes that do
// not exist are skipped; the number of updated rows is returned.
func (h *Handle) SetCurrencyRates(ctx context.Context, rates map[string]float64) (int64, error) {
	var updated int64
	err := h.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "UPDATE currencies SET rate = ? WHERE code = ? COLLATE NOCASE")
		if err != nil {
			return fmt.Errorf("prepare rate update: %w", err)
		}
		defer stmt.Close()
		for code, rate := range rates {
			code = core.NormalizeLookup(code, true)
			if code == "" {
				continue
			}
			res, err := stmt.ExecContext(ctx, core.NormalizeRate(rate), code)
			if err != nil {
				return fmt.Errorf("update rate %s: %w", code, err)
			}
			n, _ := res.RowsAffected()
			updated += n
		}
		return nil
	})
	return updated, err
}

// CurrencyRate returns the stored rate for code; USD and unknown codes are 1.
func (h *Handle) CurrencyRate(ctx context.Context, code string) (float64, error) {
	var rate float64
	err := h.withDB(func(db *sql.DB) error {
		var err error
		rate, err = rateTx(ctx, db, code)
		return err
	})
	return rate, err
}

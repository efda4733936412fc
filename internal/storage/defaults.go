package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultCategories is seeded into an empty categories table.
var DefaultCategories = []string{
	"Groceries", "Transport", "Housing", "Internet", "Health",
	"Education", "Gifts", "Travel", "Entertainment", "Home",
	"Clothing", "Kids", "Beauty", "Taxes", "Other",
}

// DefaultCurrencies is seeded into an empty currencies table, all at rate 1.
var DefaultCurrencies = []string{"USD", "RUB", "EUR", "KZT", "BYN", "UAH"}

// SeedDefaults fills empty reference tables and repairs invalid rates. It
// runs on every open, so it only inserts when a table has no rows at all;
// a user who deleted every default keeps an empty list until they add one.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var categories int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&categories); err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if categories == 0 {
		for _, name := range DefaultCategories {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO categories(name) VALUES (?)", name); err != nil {
				return fmt.Errorf("insert category %s: %w", name, err)
			}
		}
	}

	var currencies int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM currencies").Scan(&currencies); err != nil {
		return fmt.Errorf("count currencies: %w", err)
	}
	if currencies == 0 {
		for _, code := range DefaultCurrencies {
			if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO currencies(code, rate) VALUES (?, 1)", code); err != nil {
				return fmt.Errorf("insert currency %s: %w", code, err)
			}
		}
	} else if _, err := tx.ExecContext(ctx, "UPDATE currencies SET rate = 1 WHERE rate IS NULL OR rate <= 0"); err != nil {
		return fmt.Errorf("repair currency rates: %w", err)
	}

	return tx.Commit()
}

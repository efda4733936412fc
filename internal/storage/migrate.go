package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema at dsn up to date and returns the
// resulting schema version. It uses its own connection so the caller's pool
// is not affected by the migrator closing it.
func RunMigrations(dsn string) (uint, error) {
	migrateDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	if err := upgradeLegacyTables(migrateDB); err != nil {
		return 0, err
	}

	driver, err := sqlite.WithInstance(migrateDB, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("create sqlite driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// legacyColumns were added to tables that files from older dashboard
// releases already have. CREATE TABLE IF NOT EXISTS leaves those tables
// alone, so the columns must exist before the first migration indexes them.
var legacyColumns = []struct {
	table, column, ddl string
}{
	{"records", "date_local", "ALTER TABLE records ADD COLUMN date_local TEXT"},
	{"currencies", "rate", "ALTER TABLE currencies ADD COLUMN rate REAL NOT NULL DEFAULT 1"},
}

// upgradeLegacyTables adds missing legacyColumns to tables that exist.
// Missing tables are left for the migrations to create.
func upgradeLegacyTables(db *sql.DB) error {
	for _, c := range legacyColumns {
		cols, err := tableColumns(db, c.table)
		if err != nil {
			return err
		}
		if len(cols) == 0 || cols[c.column] {
			continue
		}
		if _, err := db.Exec(c.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

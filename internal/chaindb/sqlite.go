package chaindb

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/goran-ethernal/ChainFilters/internal/logger"
	"github.com/goran-ethernal/ChainFilters/pkg/config"
)

const upDownSeparator = "-- +migrate Up"

// openDB opens the cache database with the configured pragmas and pool
// settings.
func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// runMigrations brings the cache schema up to date. Each migration string
// holds a Down section followed by the "-- +migrate Up" separator and the Up
// section.
func runMigrations(log *logger.Logger, db *sql.DB, migrations []string) error {
	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	for i, m := range migrations {
		splitted := strings.Split(m, upDownSeparator)
		if len(splitted) < 2 {
			return fmt.Errorf("migration %d missing '-- +migrate Up' separator", i)
		}

		downSQL := splitted[0]
		downMarker := "-- +migrate Down"
		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = strings.TrimSpace(downSQL[idx+len(downMarker):])
		} else {
			downSQL = strings.TrimSpace(downSQL)
		}

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   fmt.Sprintf("chaindb-%04d", i+1),
			Up:   []string{strings.TrimSpace(splitted[1])},
			Down: []string{downSQL},
		})
	}

	n, err := migrate.Exec(db, "sqlite3", migs, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing cache migrations: %w", err)
	}

	log.Debugf("ran %d chain cache migrations", n)
	return nil
}

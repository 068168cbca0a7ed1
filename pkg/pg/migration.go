package pg

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
)

// Migrate applies every pending goose migration found in dir.
func Migrate(cfg Config, dir string) error {
	return runGoose(cfg, func(db *sql.DB) error {
		return goose.Up(db, dir)
	})
}

// Rollback reverts the most recent migration.
func Rollback(cfg Config, dir string) error {
	return runGoose(cfg, func(db *sql.DB) error {
		return goose.Down(db, dir)
	})
}

// MigrationStatus logs the applied state of each migration in dir.
func MigrationStatus(cfg Config, dir string) error {
	return runGoose(cfg, func(db *sql.DB) error {
		return goose.Status(db, dir)
	})
}

func runGoose(cfg Config, fn func(db *sql.DB) error) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("failed to close migration connection", "error", cerr)
		}
	}()

	return fn(db)
}

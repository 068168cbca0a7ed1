package main

import (
	"os"
	"strings"

	"github.com/samueldng/cash-back-phone-link/internal/config"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
)

// main.go [up|down|status] --env=.env --dir=./migrations
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pgConf := config.Get().PostgresWrite()
	dir := getMigrationPath()

	switch command() {
	case "down":
		err = pg.Rollback(pgConf, dir)
	case "status":
		err = pg.MigrationStatus(pgConf, dir)
	case "up":
		err = pg.Migrate(pgConf, dir)
	default:
		logger.Error("migration: unknown command, expected up, down or status", "command", command())
		os.Exit(2)
	}
	if err != nil {
		logger.Error("migration: error running migrations", "command", command(), "error", err)
		os.Exit(1)
	}
}

func command() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return "up"
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--dir=") {
			s := strings.Split(v, "=")
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the migrations dir, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return "./migrations"
}

package repository

import "github.com/samueldng/cash-back-phone-link/pkg/pg"

// AutoMigrate creates the ledger tables from the entities. Postgres
// deployments use the goose migrations instead.
func AutoMigrate(db *pg.DB) error {
	return db.AutoMigrate(&CustomerEntity{}, &TransactionEntity{}, &SettingsEntity{})
}

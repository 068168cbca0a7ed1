package repository

import (
	"testing"

	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pg.DB {
	db, err := pg.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	return db
}

package pg

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite opens a sqlite database for local runs. A single connection is
// kept so that ":memory:" databases are shared by every caller.
func OpenSQLite(path string, withDebug bool) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if withDebug {
		db = db.Debug()
	}
	return New(db, db), nil
}

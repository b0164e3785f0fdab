package db

import (
	"orderengine/internal/models"
)

// AutoMigrate keeps column names and status enums stable: they are part of
// the durable contract and must not change without a migration.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.LimitOrder{},
		&models.StopLossOrder{},
		&models.DCASchedule{},
		&models.Execution{},
	)
}

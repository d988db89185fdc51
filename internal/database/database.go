package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketplace-sync-service/internal/models"
)

// Connect opens the database. A sqlite:// URL opens a local SQLite file for
// development; anything else is treated as a PostgreSQL DSN.
func Connect(databaseURL, environment string) (*gorm.DB, error) {
	logLevel := logger.Silent
	if environment == "development" {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "sqlite://") {
		dialector = sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://"))
	} else {
		dialector = postgres.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table the sync engine owns
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Connection{},
		&models.SelectedListing{},
		&models.MarketplaceOrder{},
		&models.InventoryRecord{},
		&models.SyncRun{},
	)
}

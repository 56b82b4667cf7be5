package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"expense-service/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPostgresConnection opens the database, installs plugins (such as the
// change feed) and migrates the tables this service owns.
func NewPostgresConnection(dburi string, plugins ...gorm.Plugin) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dburi), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		AllowGlobalUpdate:                        false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	for _, p := range plugins {
		if err := db.Use(p); err != nil {
			return nil, fmt.Errorf("failed to install plugin %s: %w", p.Name(), err)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	slog.Info("Database connection established successfully")
	return db, nil
}

// Migrate creates or updates the notification and participant tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Notification{},
		&models.ReceiptParticipant{},
	)
	if err != nil {
		// Tables created by the CRUD service are fine to reuse.
		if strings.Contains(err.Error(), "already exists") {
			slog.Warn("Tables already exist, continuing with existing schema", "error", err)
		} else {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return addIndexes(db)
}

func addIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		columns []string
	}{
		{"notifications", []string{"user_id", "read"}},
	}

	for _, idx := range indexes {
		indexName := fmt.Sprintf("idx_%s_%s", idx.table, strings.Join(idx.columns, "_"))
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			indexName, idx.table, strings.Join(idx.columns, ", "))
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to add index %s: %w", indexName, err)
		}
	}

	return nil
}

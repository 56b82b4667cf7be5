package main

import (
	"log"
	"log/slog"

	"expense-service/internal/config"
	"expense-service/internal/database"
	"expense-service/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logging.InitLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("Starting database migration...")

	// Connecting runs the auto-migration.
	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	slog.Info("Database migration completed successfully!")
}

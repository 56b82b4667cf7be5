package main

import (
	"fmt"
	"log"
	"log/slog"
	"time"

	"expense-service/internal/auth"
	"expense-service/internal/config"
	"expense-service/internal/database"
	"expense-service/internal/logging"
	"expense-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// seedReceipt is the shared receipt every seeded user can follow.
const seedReceipt = "1"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logging.InitLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("Starting database seeding...")

	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	participants := []models.ReceiptParticipant{
		{ReceiptID: seedReceipt, UserID: "1", Status: models.ParticipantActive},
		{ReceiptID: seedReceipt, UserID: "2", Status: models.ParticipantActive},
		{ReceiptID: seedReceipt, UserID: "3", Status: models.ParticipantPending},
	}
	if err := seedParticipants(db, participants); err != nil {
		log.Fatal("Failed to seed participants:", err)
	}

	receipt := seedReceipt
	welcome := models.Notification{
		UserID:    "1",
		Type:      models.NotificationReceiptInvite,
		Title:     "Welcome",
		Message:   "You were added to the demo receipt",
		ReceiptID: &receipt,
	}
	if err := db.Create(&welcome).Error; err != nil {
		log.Fatal("Failed to seed notification:", err)
	}

	// Print tokens so the seeded users can connect straight away.
	verifier := auth.NewJWTVerifier(cfg.JWT.Secret)
	for _, p := range participants {
		token, err := verifier.IssueToken(p.UserID, fmt.Sprintf("user%s@example.com", p.UserID), 7*24*time.Hour)
		if err != nil {
			log.Fatal("Failed to issue token:", err)
		}
		fmt.Printf("user %s (%s): %s\n", p.UserID, p.Status, token)
	}
	serviceToken, err := verifier.IssueServiceToken("seed", 7*24*time.Hour)
	if err != nil {
		log.Fatal("Failed to issue service token:", err)
	}
	fmt.Printf("service: %s\n", serviceToken)

	slog.Info("Database seeding completed successfully!")
}

func seedParticipants(db *gorm.DB, participants []models.ReceiptParticipant) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error
}

package postgres

import (
	"context"

	"expense-service/internal/models"

	"gorm.io/gorm"
)

// ParticipantRepository answers whether a user may follow a receipt's
// realtime channel.
type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db}
}

// CanSubscribe is true for active participants and for pending requesters,
// who need the channel to see their request being approved or rejected.
func (r *ParticipantRepository) CanSubscribe(ctx context.Context, userID, resourceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReceiptParticipant{}).
		Where("receipt_id = ? AND user_id = ?", resourceID, userID).
		Where("status IN ?", []models.ParticipantStatus{models.ParticipantActive, models.ParticipantPending}).
		Count(&count).Error
	return count > 0, err
}

// UserIDsForReceipt lists active participants, used for direct delivery.
func (r *ParticipantRepository) UserIDsForReceipt(ctx context.Context, resourceID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ReceiptParticipant{}).
		Where("receipt_id = ? AND status = ?", resourceID, models.ParticipantActive).
		Pluck("user_id", &ids).Error
	return ids, err
}

package models

import "time"

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantActive   ParticipantStatus = "active"
	ParticipantClosed   ParticipantStatus = "closed"
	ParticipantRejected ParticipantStatus = "rejected"
)

// ReceiptParticipant links a user to a shared receipt. Rows are owned by the
// CRUD service; this service only reads them for subscription checks.
type ReceiptParticipant struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	ReceiptID string            `gorm:"index:idx_receipt_participant,unique;not null" json:"receiptId"`
	UserID    string            `gorm:"index:idx_receipt_participant,unique;not null" json:"userId"`
	Status    ParticipantStatus `gorm:"size:32;not null" json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

/** -------------------- DTOs -------------------- */
type ResourceEventRequest struct {
	Event   string                 `json:"event" binding:"required"`
	Data    map[string]interface{} `json:"data,omitempty"`
	UserIDs []string               `json:"userIds,omitempty"`
	// NotifyParticipants sends directly to every active participant.
	NotifyParticipants bool `json:"notifyParticipants,omitempty"`
}

type ResourceEventResponse struct {
	Delivered int `json:"delivered"`
}

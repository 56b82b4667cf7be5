package models

import (
	"time"
)

type NotificationType string

const (
	NotificationReceiptInvite     NotificationType = "receipt_invite"
	NotificationJoinRequest       NotificationType = "join_request"
	NotificationJoinApproved      NotificationType = "join_approved"
	NotificationJoinRejected      NotificationType = "join_rejected"
	NotificationReceiptClosed     NotificationType = "receipt_closed"
	NotificationOwnershipTransfer NotificationType = "ownership_transferred"
	NotificationPaymentReminder   NotificationType = "payment_reminder"
)

/** --------------------ENTITIES-------------------- */
// Notification is the durable record; realtime delivery is a best-effort copy of it.
type Notification struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	UserID        string           `gorm:"index;not null" json:"userId"`
	Type          NotificationType `gorm:"size:64;not null" json:"type"`
	Title         string           `gorm:"size:255;not null" json:"title"`
	Message       string           `gorm:"type:text;not null" json:"message"`
	ReceiptID     *string          `gorm:"index" json:"receiptId,omitempty"`
	RelatedUserID *string          `json:"relatedUserId,omitempty"`
	Read          bool             `gorm:"default:false;not null" json:"read"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

/** -------------------- DTOs -------------------- */
type CreateNotificationRequest struct {
	UserID        string           `json:"userId" binding:"required"`
	Type          NotificationType `json:"type" binding:"required"`
	Title         string           `json:"title" binding:"required"`
	Message       string           `json:"message" binding:"required"`
	ReceiptID     *string          `json:"receiptId,omitempty"`
	RelatedUserID *string          `json:"relatedUserId,omitempty"`
}

type NotificationListResponse struct {
	Items  []Notification `json:"items"`
	Total  int            `json:"total"`
	Unread int            `json:"unread"`
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Notification stores a money-movement notice addressed to a buyer or vendor.
type Notification struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID                `gorm:"column:recipient_id;type:uuid;not null" json:"recipient_id"`
	Type        enums.NotificationType   `gorm:"column:type;type:notification_type;not null" json:"type"`
	Title       string                   `gorm:"column:title;not null" json:"title"`
	Message     string                   `gorm:"column:message;not null" json:"message"`
	EventID     uuid.UUID                `gorm:"column:event_id;type:uuid;not null" json:"event_id"`
	SMSSid      *string                  `gorm:"column:sms_sid" json:"sms_sid,omitempty"`
	SMSStatus   *enums.SMSDeliveryStatus `gorm:"column:sms_status" json:"sms_status,omitempty"`
	ReadAt      *time.Time               `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }

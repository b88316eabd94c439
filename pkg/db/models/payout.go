package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Payout is a vendor withdrawal of available wallet balance.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	PayoutMethodID  uuid.UUID          `gorm:"column:payout_method_id;type:uuid;not null" json:"payout_method_id"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency        enums.Currency     `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Status          enums.PayoutStatus `gorm:"column:status;type:payout_status;not null" json:"status"`
	PayoutReference string             `gorm:"column:payout_reference;not null;uniqueIndex" json:"payout_reference"`
	Notes           *string            `gorm:"column:notes" json:"notes,omitempty"`
	FailureReason   *string            `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	ProcessedBy     *uuid.UUID         `gorm:"column:processed_by;type:uuid" json:"processed_by,omitempty"`
	RequestedAt     time.Time          `gorm:"column:requested_at;not null" json:"requested_at"`
	ProcessingAt    *time.Time         `gorm:"column:processing_at" json:"processing_at,omitempty"`
	CompletedAt     *time.Time         `gorm:"column:completed_at" json:"completed_at,omitempty"`
	FailedAt        *time.Time         `gorm:"column:failed_at" json:"failed_at,omitempty"`
	CancelledAt     *time.Time         `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

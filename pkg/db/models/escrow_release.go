package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// EscrowRelease is a request to move escrowed funds to the vendor.
type EscrowRelease struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AccountID       uuid.UUID           `gorm:"column:account_id;type:uuid;not null" json:"account_id"`
	RequesterID     uuid.UUID           `gorm:"column:requester_id;type:uuid;not null" json:"requester_id"`
	ApproverID      *uuid.UUID          `gorm:"column:approver_id;type:uuid" json:"approver_id,omitempty"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Status          enums.ReleaseStatus `gorm:"column:status;type:release_status;not null" json:"status"`
	Reason          *string             `gorm:"column:reason" json:"reason,omitempty"`
	RejectionReason *string             `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	RequestedAt     time.Time           `gorm:"column:requested_at;not null" json:"requested_at"`
	ApprovedAt      *time.Time          `gorm:"column:approved_at" json:"approved_at,omitempty"`
	RejectedAt      *time.Time          `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EscrowRelease) TableName() string { return "escrow_releases" }

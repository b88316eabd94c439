package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Dispute links a buyer/vendor disagreement to the escrow account holding the funds.
type Dispute struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AccountID       uuid.UUID              `gorm:"column:account_id;type:uuid;not null" json:"account_id"`
	OpenedBy        uuid.UUID              `gorm:"column:opened_by;type:uuid;not null" json:"opened_by"`
	Reason          string                 `gorm:"column:reason;not null" json:"reason"`
	Status          enums.DisputeStatus    `gorm:"column:status;type:dispute_status;not null" json:"status"`
	Decision        *enums.DisputeDecision `gorm:"column:decision;type:dispute_decision" json:"decision,omitempty"`
	ResolvedBy      *uuid.UUID             `gorm:"column:resolved_by;type:uuid" json:"resolved_by,omitempty"`
	ResolutionNotes *string                `gorm:"column:resolution_notes" json:"resolution_notes,omitempty"`
	OpenedAt        time.Time              `gorm:"column:opened_at;not null" json:"opened_at"`
	ResolvedAt      *time.Time             `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (Dispute) TableName() string { return "disputes" }

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// EscrowTransaction is an append-only journal entry against an escrow account.
type EscrowTransaction struct {
	ID        uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AccountID uuid.UUID                   `gorm:"column:account_id;type:uuid;not null" json:"account_id"`
	Type      enums.EscrowTransactionType `gorm:"column:type;type:escrow_transaction_type;not null" json:"type"`
	Amount    decimal.Decimal             `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency  enums.Currency              `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Reference *string                     `gorm:"column:reference" json:"reference,omitempty"`
	Notes     *string                     `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (EscrowTransaction) TableName() string { return "escrow_transactions" }

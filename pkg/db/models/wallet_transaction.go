package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// WalletTransaction records a single movement between vendor wallet buckets.
type WalletTransaction struct {
	ID        uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	VendorID  uuid.UUID                   `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	Type      enums.WalletTransactionType `gorm:"column:type;type:wallet_transaction_type;not null" json:"type"`
	Amount    decimal.Decimal             `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	PayoutID  *uuid.UUID                  `gorm:"column:payout_id;type:uuid" json:"payout_id,omitempty"`
	OrderID   *uuid.UUID                  `gorm:"column:order_id;type:uuid" json:"order_id,omitempty"`
	CreatedAt time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

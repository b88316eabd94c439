package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// VendorWallet is the running balance a vendor can withdraw from.
type VendorWallet struct {
	VendorID         uuid.UUID       `gorm:"column:vendor_id;type:uuid;primaryKey" json:"vendor_id"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:numeric(12,2);not null" json:"available_balance"`
	PendingBalance   decimal.Decimal `gorm:"column:pending_balance;type:numeric(12,2);not null" json:"pending_balance"`
	TotalEarned      decimal.Decimal `gorm:"column:total_earned;type:numeric(12,2);not null" json:"total_earned"`
	TotalWithdrawn   decimal.Decimal `gorm:"column:total_withdrawn;type:numeric(12,2);not null" json:"total_withdrawn"`
	Currency         enums.Currency  `gorm:"column:currency;type:char(3);not null" json:"currency"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (VendorWallet) TableName() string { return "vendor_wallets" }

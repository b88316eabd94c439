package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// EscrowAccount holds an order's funds between payment and final settlement.
type EscrowAccount struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID          uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	BuyerID          uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	VendorID         uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	Amount           decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency         enums.Currency     `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Status           enums.EscrowStatus `gorm:"column:status;type:escrow_status;not null" json:"status"`
	Version          int                `gorm:"column:version;not null;default:1" json:"version"`
	PaymentReference *string            `gorm:"column:payment_reference" json:"payment_reference,omitempty"`
	FundedAt         *time.Time         `gorm:"column:funded_at" json:"funded_at,omitempty"`
	DisputedAt       *time.Time         `gorm:"column:disputed_at" json:"disputed_at,omitempty"`
	ResolvedAt       *time.Time         `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ReleasedAt       *time.Time         `gorm:"column:released_at" json:"released_at,omitempty"`
	RefundedAt       *time.Time         `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EscrowAccount) TableName() string { return "escrow_accounts" }

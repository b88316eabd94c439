package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Order is the slice of a marketplace order the money core reads and confirms.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID     uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	VendorID    uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	TotalAmount decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	Currency    enums.Currency    `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null" json:"status"`
	ConfirmedAt *time.Time        `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

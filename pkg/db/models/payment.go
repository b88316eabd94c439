package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// Payment records one gateway payment attempt for an order.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	BuyerID           uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	Method            enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null" json:"payment_method"`
	Provider          *string             `gorm:"column:provider" json:"provider,omitempty"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null" json:"status"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          enums.Currency      `gorm:"column:currency;type:char(3);not null" json:"currency"`
	ExternalReference *string             `gorm:"column:external_reference" json:"external_reference,omitempty"`
	PhoneNumber       *string             `gorm:"column:phone_number" json:"phone_number,omitempty"`
	ErrorMessage      *string             `gorm:"column:error_message" json:"error_message,omitempty"`
	Simulated         bool                `gorm:"column:simulated;not null;default:false" json:"simulated"`
	RefundReference   *string             `gorm:"column:refund_reference" json:"refund_reference,omitempty"`
	RefundReason      *string             `gorm:"column:refund_reason" json:"refund_reason,omitempty"`
	PaidAt            *time.Time          `gorm:"column:paid_at" json:"paid_at,omitempty"`
	RefundedAt        *time.Time          `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

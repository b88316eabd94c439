package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// PaymentStatusEvent is emitted whenever a payment moves to a new status.
type PaymentStatusEvent struct {
	PaymentID         uuid.UUID           `json:"payment_id"`
	OrderID           uuid.UUID           `json:"order_id"`
	BuyerID           uuid.UUID           `json:"buyer_id"`
	Method            enums.PaymentMethod `json:"payment_method"`
	Status            enums.PaymentStatus `json:"status"`
	Amount            decimal.Decimal     `json:"amount"`
	Currency          enums.Currency      `json:"currency"`
	ExternalReference *string             `json:"external_reference,omitempty"`
	PhoneNumber       *string             `json:"phone_number,omitempty"`
	ErrorMessage      *string             `json:"error_message,omitempty"`
	Simulated         bool                `json:"simulated,omitempty"`
	OccurredAt        time.Time           `json:"occurred_at"`
}

// EscrowEvent covers funding, release, refund and dispute holds on an escrow account.
type EscrowEvent struct {
	AccountID  uuid.UUID          `json:"account_id"`
	OrderID    uuid.UUID          `json:"order_id"`
	BuyerID    uuid.UUID          `json:"buyer_id"`
	VendorID   uuid.UUID          `json:"vendor_id"`
	Status     enums.EscrowStatus `json:"status"`
	Amount     decimal.Decimal    `json:"amount"`
	Currency   enums.Currency     `json:"currency"`
	Reference  *string            `json:"reference,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// DisputeResolvedEvent reports the decision taken on a disputed escrow account.
type DisputeResolvedEvent struct {
	DisputeID  uuid.UUID             `json:"dispute_id"`
	AccountID  uuid.UUID             `json:"account_id"`
	OrderID    uuid.UUID             `json:"order_id"`
	BuyerID    uuid.UUID             `json:"buyer_id"`
	VendorID   uuid.UUID             `json:"vendor_id"`
	Decision   enums.DisputeDecision `json:"decision"`
	Amount     decimal.Decimal       `json:"amount"`
	Currency   enums.Currency        `json:"currency"`
	ResolvedBy uuid.UUID             `json:"resolved_by"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// OrderStatusEvent is emitted when an order is confirmed or completed.
type OrderStatusEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	BuyerID     uuid.UUID         `json:"buyer_id"`
	VendorID    uuid.UUID         `json:"vendor_id"`
	Status      enums.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Currency    enums.Currency    `json:"currency"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// WalletCreditedEvent records earnings landing in a vendor wallet.
type WalletCreditedEvent struct {
	VendorID         uuid.UUID       `json:"vendor_id"`
	OrderID          *uuid.UUID      `json:"order_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         enums.Currency  `json:"currency"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// PayoutEvent is emitted on every payout lifecycle change.
type PayoutEvent struct {
	PayoutID        uuid.UUID          `json:"payout_id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	PayoutReference string             `json:"payout_reference"`
	Status          enums.PayoutStatus `json:"status"`
	Amount          decimal.Decimal    `json:"amount"`
	Currency        enums.Currency     `json:"currency"`
	FailureReason   *string            `json:"failure_reason,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

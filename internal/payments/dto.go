package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// ModeDevelopment marks results produced without reaching the gateway.
const ModeDevelopment = "development"

// CreateInput carries the data needed to record a payment attempt.
type CreateInput struct {
	OrderID     uuid.UUID
	BuyerID     uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Method      enums.PaymentMethod
	PhoneNumber string
}

// CardInput charges a tokenized card for an order.
type CardInput struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	Amount   decimal.Decimal
	Currency string
	SourceID string
}

// InitResult is what a buyer gets back from starting a payment. It is cached
// under the order so retried requests see the same answer.
type InitResult struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	Status        enums.PaymentStatus `json:"status"`
	Method        enums.PaymentMethod `json:"payment_method"`
	TransactionID string              `json:"transaction_id,omitempty"`
	ExpiresIn     int                 `json:"expires_in,omitempty"`
	Simulated     bool                `json:"simulated"`
	Mode          string              `json:"mode,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// StatusUpdate applies a gateway-reported status to a payment.
type StatusUpdate struct {
	PaymentID         uuid.UUID
	Status            enums.PaymentStatus
	ExternalReference string
	PaidAt            *time.Time
	ErrorMessage      string
}

// RefundInput returns money to the buyer. A zero Amount refunds the full payment.
type RefundInput struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
	ActorID   uuid.UUID
}

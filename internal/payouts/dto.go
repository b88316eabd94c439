package payouts

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
)

// RequestInput asks to withdraw part of the vendor's available balance.
type RequestInput struct {
	VendorID       uuid.UUID
	Amount         decimal.Decimal
	PayoutMethodID uuid.UUID
	Notes          string
}

// RequestResult is the pending payout together with the wallet after the hold.
type RequestResult struct {
	Payout *models.Payout       `json:"payout"`
	Wallet *models.VendorWallet `json:"wallet"`
}

// ProcessInput applies an operator action to a payout.
type ProcessInput struct {
	PayoutID uuid.UUID
	Action   enums.PayoutAction
	ActorID  uuid.UUID
	Reason   string
}

// CreditInput lands earnings for an order in the vendor wallet.
type CreditInput struct {
	VendorID uuid.UUID
	Amount   decimal.Decimal
	Currency enums.Currency
	OrderID  *uuid.UUID
}

// PayoutList is one page of a vendor's payouts.
type PayoutList struct {
	Payouts    []models.Payout `json:"payouts"`
	NextCursor string          `json:"next_cursor,omitempty"`
}
